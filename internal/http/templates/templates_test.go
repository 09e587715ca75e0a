package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
)

func TestLookupResultsRendersEmptyState(t *testing.T) {
	t.Parallel()

	body := render(t, LookupResults(nil))
	doc := parseFragment(t, body)

	if text := strings.TrimSpace(textContent(doc)); text != NoResultsMessage {
		t.Fatalf("expected exactly %q, got %q", NoResultsMessage, text)
	}
	if cards := findAll(doc, hasClass("card")); len(cards) != 0 {
		t.Fatalf("expected no cards, got %d", len(cards))
	}
}

func TestLookupResultsRendersCard(t *testing.T) {
	t.Parallel()

	body := render(t, LookupResults([]LookupCardView{{
		Name:      "Flu",
		Codes:     "J11",
		TypeLabel: ConditionLabel,
		Synonyms:  []string{"Influenza", "Grippe"},
		Links:     []LinkView{{URL: "http://x", Label: "X"}, {URL: "http://y", Label: "Y"}},
	}}))
	doc := parseFragment(t, body)

	cards := findAll(doc, hasClass("card"))
	if len(cards) != 1 {
		t.Fatalf("expected one card, got %d", len(cards))
	}

	text := textContent(cards[0])
	for _, want := range []string{"Flu", "J11", "Disease or Condition", "Influenza, Grippe", "X, Y"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected card to contain %q, got %q", want, text)
		}
	}

	anchors := findAll(cards[0], isElement("a"))
	if len(anchors) != 2 {
		t.Fatalf("expected 2 links, got %d", len(anchors))
	}
	if attr(anchors[0], "href") != "http://x" || textContent(anchors[0]) != "X" {
		t.Fatalf("unexpected first link: href=%q text=%q", attr(anchors[0], "href"), textContent(anchors[0]))
	}
	if attr(anchors[0], "target") != "_blank" {
		t.Fatalf("expected link to open in a new tab")
	}
}

func TestLookupResultsEscapesContentAndSanitizesLinks(t *testing.T) {
	t.Parallel()

	body := render(t, LookupResults([]LookupCardView{{
		Name:  "<script>alert(1)</script>",
		Links: []LinkView{{URL: "javascript:alert(1)", Label: "bad"}},
	}}))

	if strings.Contains(body, "<script>") {
		t.Fatalf("expected name to be escaped, got %q", body)
	}
	if strings.Contains(body, `href="javascript:`) {
		t.Fatalf("expected javascript URL to be sanitized, got %q", body)
	}
}

func TestDiagnosisResultsRendersCardsAndEmptyState(t *testing.T) {
	t.Parallel()

	empty := parseFragment(t, render(t, DiagnosisResults(nil)))
	if text := strings.TrimSpace(textContent(empty)); text != NoDiagnosisMessage {
		t.Fatalf("expected %q, got %q", NoDiagnosisMessage, text)
	}

	doc := parseFragment(t, render(t, DiagnosisResults([]DiagnosisCardView{
		{Name: "Flu", Description: "Viral infection", Remedies: "Rest"},
		{Name: "Cold", Description: "Mild infection", Remedies: "Fluids"},
	})))

	cards := findAll(doc, hasClass("card"))
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if text := textContent(cards[1]); !strings.Contains(text, "Possible Remedies: Fluids") {
		t.Fatalf("expected remedies in second card, got %q", text)
	}
}

func TestTogglerMarksOnlySelectedView(t *testing.T) {
	t.Parallel()

	for _, selected := range []string{lookupView, diagnosisView} {
		doc := parseFragment(t, render(t, Toggler(ToggleView{Selected: selected})))

		selectedButtons := findAll(doc, func(n *html.Node) bool { return isElement("button")(n) && hasClass("selected")(n) })
		if len(selectedButtons) != 1 {
			t.Fatalf("expected one selected button for %s, got %d", selected, len(selectedButtons))
		}

		forms := findAll(doc, isElement("form"))
		visible := 0
		for _, form := range forms {
			if !hasClass("hidden")(form) {
				visible++
				if !strings.HasPrefix(attr(form, "id"), selected) {
					t.Fatalf("expected %s form to be visible, got %s", selected, attr(form, "id"))
				}
			}
		}
		if visible != 1 {
			t.Fatalf("expected exactly one visible form, got %d", visible)
		}
	}
}

func TestTogglerPreservesTypedInput(t *testing.T) {
	t.Parallel()

	doc := parseFragment(t, render(t, Toggler(ToggleView{Selected: lookupView})))

	inputs := findAll(doc, isElement("input"))
	if len(inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(inputs))
	}
	for _, input := range inputs {
		if attr(input, "id") == "" {
			t.Fatalf("expected preserved input %q to carry an id", attr(input, "name"))
		}
		if attr(input, "hx-preserve") != "true" {
			t.Fatalf("expected input %q to be preserved across swaps", attr(input, "id"))
		}
	}
}

func TestSpinnerVisibility(t *testing.T) {
	t.Parallel()

	hidden := findAll(parseFragment(t, render(t, Spinner(false))), isElement("div"))
	shown := findAll(parseFragment(t, render(t, Spinner(true))), isElement("div"))
	if len(hidden) != 1 || len(shown) != 1 {
		t.Fatalf("expected one spinner element each, got %d and %d", len(hidden), len(shown))
	}
	if attr(hidden[0], "style") != "display: none;" || attr(shown[0], "style") != "display: block;" {
		t.Fatalf("unexpected spinner styles %q and %q", attr(hidden[0], "style"), attr(shown[0], "style"))
	}
	if attr(shown[0], "id") != SpinnerID {
		t.Fatalf("expected spinner id %q, got %q", SpinnerID, attr(shown[0], "id"))
	}
}

func TestTranscriptEntriesRenderEachKind(t *testing.T) {
	t.Parallel()

	body := render(t, TranscriptEntries([]EntryView{
		{Kind: EntryUser, Text: "fever"},
		{Kind: EntryText, Speaker: "Bot", Text: "try again"},
		{Kind: EntryMatches, Speaker: "Bot", Matches: []MatchView{{Name: "Flu", Codes: "J11", URL: "http://x"}}},
		{Kind: EntryReply, Speaker: "Gemini", HTML: "<p>Rest</p>"},
		{Kind: EntryFailure, Speaker: "Gemini", Text: "unreachable"},
	}))
	doc := parseFragment(t, body)

	entries := findAll(doc, hasClass("entry"))
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	expected := []string{
		"You: fever",
		"Bot: try again",
		"Bot: Possible diseases found:Flu (ICD-10: J11) More info",
		"Gemini: Rest",
		"Gemini: unreachable",
	}
	for i, want := range expected {
		if got := strings.TrimSpace(textContent(entries[i])); got != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, got)
		}
	}

	if !hasClass("entry-failure")(entries[4]) {
		t.Fatalf("expected failure entry to carry failure class")
	}
}

func TestChatUpdateTargetsBothPanels(t *testing.T) {
	t.Parallel()

	body := render(t, ChatUpdate(
		[]EntryView{{Kind: EntryUser, Text: "cough"}},
		[]EntryView{{Kind: EntryUser, Text: "cough"}},
	))

	for _, target := range []string{"beforeend:#" + DiagnosisMessagesID, "beforeend:#" + AssistantMessagesID} {
		if !strings.Contains(body, `hx-swap-oob="`+target+`"`) {
			t.Fatalf("expected out-of-band swap for %s, got %q", target, body)
		}
	}
}

func TestMarkdownDropsRawHTML(t *testing.T) {
	t.Parallel()

	out, err := Markdown("**Flu** is likely.\n\n<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("Markdown returned error: %v", err)
	}

	if !strings.Contains(out, "<strong>Flu</strong>") {
		t.Fatalf("expected bold markup, got %q", out)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected raw HTML to be omitted, got %q", out)
	}
}

func TestMarkdownHighlightsFencedCode(t *testing.T) {
	t.Parallel()

	out, err := Markdown("```go\nfmt.Println(\"hi\")\n```")
	if err != nil {
		t.Fatalf("Markdown returned error: %v", err)
	}

	if !strings.Contains(out, "<pre") || !strings.Contains(out, "style=") {
		t.Fatalf("expected highlighted code block, got %q", out)
	}
}

func TestHomePageRendersPanels(t *testing.T) {
	t.Parallel()

	body := render(t, HomePage(PageData{
		Toggle:      ToggleView{Selected: diagnosisView},
		ResultsHTML: `<p id="previous">Earlier</p>`,
		Diagnosis:   []EntryView{{Kind: EntryUser, Text: "hello"}},
	}))

	for _, want := range []string{`id="` + ResultsID + `"`, `id="` + DiagnosisMessagesID + `"`, `id="` + AssistantMessagesID + `"`, `id="previous"`, "You: hello"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}
}

func TestRawHTMLStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := RawHTML("<p>x</p>").Render(ctx, &buf); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

// helpers

func render(t *testing.T, component templ.Component) string {
	t.Helper()

	var buf bytes.Buffer
	if err := component.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	return buf.String()
}

func parseFragment(t *testing.T, body string) *html.Node {
	t.Helper()

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("html.Parse returned error: %v", err)
	}
	return doc
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return out
}

func isElement(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, value := range strings.Fields(attr(n, "class")) {
			if value == class {
				return true
			}
		}
		return false
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
