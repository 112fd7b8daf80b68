package api

import (
	"github.com/google/uuid"
)

// Toast kinds.
const (
	ToastInfo    = "info"
	ToastSuccess = "success"
	ToastError   = "error"
)

// defaultToastDuration is how long a toast stays up, in milliseconds.
const defaultToastDuration = 3000

// Toast is a transient notification delivered over the event stream.
// Duration zero keeps the toast up until the client dismisses it.
type Toast struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	Kind     string `json:"kind"`
	Duration int    `json:"duration"`
}

// Notifier pushes toasts to a user's connected stream clients.
type Notifier struct {
	broker *streamBroker
}

// NewNotifier creates a Notifier bound to the given broker.
func NewNotifier(broker *streamBroker) *Notifier {
	return &Notifier{broker: broker}
}

// Push sends a toast that dismisses itself after the default duration.
func (n *Notifier) Push(userID, kind, message string) {
	n.push(userID, kind, message, defaultToastDuration)
}

// PushSticky sends a toast that stays until the client dismisses it.
func (n *Notifier) PushSticky(userID, kind, message string) {
	n.push(userID, kind, message, 0)
}

func (n *Notifier) push(userID, kind, message string, duration int) {
	if n == nil || n.broker == nil || userID == "" {
		return
	}
	n.broker.toast(userID, Toast{
		ID:       uuid.NewString(),
		Message:  message,
		Kind:     kind,
		Duration: duration,
	})
}
