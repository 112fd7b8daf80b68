package domain

// MoveTask relocates the element at source to land at target, shifting the
// elements in between by one position. The input is not modified. ok is
// false when the move is out of range or source equals target, in which case
// no write should be issued.
func MoveTask(tasks []Task, source, target int) (moved []Task, ok bool) {
	n := len(tasks)
	if source < 0 || source >= n || target < 0 || target >= n || source == target {
		return nil, false
	}
	out := make([]Task, 0, n)
	out = append(out, tasks[:source]...)
	out = append(out, tasks[source+1:]...)
	out = append(out[:target], append([]Task{tasks[source]}, out[target:]...)...)
	return out, true
}

// Renumber rewrites every task's order to its positional index. The result
// is a copy; callers persist it as one atomic batch.
func Renumber(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	for i := range out {
		out[i].Order = i
	}
	return out
}
