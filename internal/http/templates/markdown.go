package templates

import (
	"bytes"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in the source is omitted and dangerous link schemes are dropped,
// since the renderer is not configured with html.WithUnsafe.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Markdown converts assistant replies to HTML.
func Markdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", eris.Wrap(err, "rendering markdown")
	}
	return buf.String(), nil
}
