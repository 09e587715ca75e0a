package http

import (
	"bytes"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"medfront/app/internal/backend"
	"medfront/app/internal/chat"
	"medfront/app/internal/http/templates"
)

const (
	diagnosisSpeaker = "Bot"
	assistantSpeaker = "Gemini"

	maxFormMemory = 1 << 20
)

func lookupCards(results []backend.DiseaseLookupResult) []templates.LookupCardView {
	cards := make([]templates.LookupCardView, 0, len(results))
	for _, result := range results {
		label := templates.ConditionLabel
		if result.IsProcedure {
			label = templates.ProcedureLabel
		}

		links := make([]templates.LinkView, 0, len(result.InfoLinks))
		for _, link := range result.InfoLinks {
			links = append(links, templates.LinkView{URL: link.URL, Label: link.Label})
		}

		cards = append(cards, templates.LookupCardView{
			Name:      result.PrimaryName,
			Codes:     result.ICD10CMCodes,
			TypeLabel: label,
			Synonyms:  result.Synonyms,
			Links:     links,
		})
	}
	return cards
}

func diagnosisCards(results []backend.DiagnosisResult) []templates.DiagnosisCardView {
	cards := make([]templates.DiagnosisCardView, 0, len(results))
	for _, result := range results {
		cards = append(cards, templates.DiagnosisCardView{
			Name:        result.PrimaryName,
			Description: result.Description,
			Remedies:    result.Remedies,
		})
	}
	return cards
}

// entryViews maps stored entries onto transcript lines. Replies whose markdown
// fails to render fall back to plain text.
func entryViews(entries []chat.Entry, speaker string) []templates.EntryView {
	views := make([]templates.EntryView, 0, len(entries))
	for _, entry := range entries {
		view := templates.EntryView{Speaker: speaker, Text: entry.Text}

		switch entry.Kind {
		case chat.KindUser:
			view.Kind = templates.EntryUser
		case chat.KindMatches:
			view.Kind = templates.EntryMatches
			view.Matches = make([]templates.MatchView, 0, len(entry.Matches))
			for _, match := range entry.Matches {
				view.Matches = append(view.Matches, templates.MatchView{
					Name:  match.Name,
					Codes: match.ICD10Codes,
					URL:   match.InfoLink,
				})
			}
		case chat.KindReply:
			view.Kind = templates.EntryReply
			if html, err := templates.Markdown(entry.Text); err == nil {
				view.HTML = html
			}
		case chat.KindFailure:
			view.Kind = templates.EntryFailure
		default:
			view.Kind = templates.EntryText
		}

		views = append(views, view)
	}
	return views
}

// parseForm decodes a urlencoded or multipart request body.
func parseForm(contentType string, body []byte) (url.Values, error) {
	if strings.TrimSpace(contentType) == "" {
		values, err := url.ParseQuery(string(body))
		return values, eris.Wrap(err, "parsing form body")
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, eris.Wrap(err, "parsing content type")
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, eris.Wrap(err, "parsing form body")
		}
		return values, nil
	case "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, eris.New("multipart boundary is missing")
		}

		form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(maxFormMemory)
		if err != nil {
			return nil, eris.Wrap(err, "reading multipart form")
		}
		defer func() { _ = form.RemoveAll() }()

		return url.Values(form.Value), nil
	default:
		return nil, eris.Errorf("unsupported content type %q", mediaType)
	}
}
