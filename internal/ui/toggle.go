package ui

import (
	"strings"

	"github.com/rotisserie/eris"
)

// View names one of the two mutually exclusive forms.
type View string

const (
	ViewLookup    View = "lookup"
	ViewDiagnosis View = "diagnosis"
)

// Views lists the toggleable views in display order.
var Views = []View{ViewLookup, ViewDiagnosis}

// ParseView maps a user supplied name onto a View.
func ParseView(name string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(name))) {
	case ViewLookup:
		return ViewLookup, nil
	case ViewDiagnosis:
		return ViewDiagnosis, nil
	default:
		return "", eris.Errorf("unknown view: %s", name)
	}
}

// Toggle tracks which form is shown. Exactly one view is selected at any time,
// and the selected view is the only visible one.
type Toggle struct {
	selected View
}

// NewToggle starts with initial selected; anything else falls back to the lookup view.
func NewToggle(initial View) Toggle {
	if initial != ViewDiagnosis {
		initial = ViewLookup
	}
	return Toggle{selected: initial}
}

// Select shows v and hides the other view.
func (t *Toggle) Select(v View) error {
	if v != ViewLookup && v != ViewDiagnosis {
		return eris.Errorf("unknown view: %s", v)
	}
	t.selected = v
	return nil
}

// Selected returns the current view.
func (t Toggle) Selected() View {
	if t.selected == "" {
		return ViewLookup
	}
	return t.selected
}

// Visible reports whether v's form is shown.
func (t Toggle) Visible(v View) bool {
	return t.Selected() == v
}
