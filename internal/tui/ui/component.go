package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // digit shortcuts, drawn in NumericKeyColor
}

// Component is a page of the shell.
type Component interface {
	tview.Primitive
	// Name is the breadcrumb label.
	Name() string
	Hints() []MenuHint
	// FocusTarget is the primitive that takes focus when the page is shown.
	FocusTarget() tview.Primitive
}
