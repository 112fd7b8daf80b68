package domain

import (
	"sort"
	"time"
)

// Category groups tasks in the sidebar. Categories are append-ordered and
// never renumbered.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// CategoryPatch carries a partial category update. Nil fields are untouched.
type CategoryPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// DefaultPalette holds the category colors assigned round-robin when a new
// category does not specify one.
var DefaultPalette = []string{
	"#ef4444", // red
	"#f97316", // orange
	"#f59e0b", // amber
	"#22c55e", // green
	"#14b8a6", // teal
	"#3b82f6", // blue
	"#8b5cf6", // violet
	"#ec4899", // pink
}

// PaletteColor returns the default color for the n-th category.
func PaletteColor(n int) string {
	if n < 0 {
		n = -n
	}
	return DefaultPalette[n%len(DefaultPalette)]
}

// SortCategories orders categories for the sidebar, order ascending.
func SortCategories(categories []Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].Order < categories[j].Order
	})
}
