package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// RawHTML returns a templ component that writes the provided HTML without escaping.
func RawHTML(html string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.WriteString(w, html)
		return err
	})
}

func pageTitle(title string) string {
	if title == "" {
		return DefaultTitle
	}
	return title
}

// selectedView falls back to the lookup form for anything it does not recognise.
func selectedView(selected string) string {
	if selected != diagnosisView {
		return lookupView
	}
	return selected
}

func kindClass(kind string) string {
	if kind == EntryFailure {
		return "entry-failure"
	}
	return "entry-text"
}
