package backend

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// DiseaseLookupResult is one record returned by POST /lookup.
type DiseaseLookupResult struct {
	PrimaryName  string     `json:"primary_name"`
	ICD10CMCodes string     `json:"icd10cm_codes"`
	IsProcedure  bool       `json:"is_procedure"`
	Synonyms     []string   `json:"synonyms"`
	InfoLinks    []InfoLink `json:"info_links"`
}

// InfoLink is a reference link encoded on the wire as a [url, label] pair.
type InfoLink struct {
	URL   string
	Label string
}

// UnmarshalJSON decodes the two-element array form.
func (l *InfoLink) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return eris.Wrap(err, "decoding info link pair")
	}
	if len(pair) != 2 {
		return eris.Errorf("info link must have 2 elements, got %d", len(pair))
	}

	l.URL = pair[0]
	l.Label = pair[1]
	return nil
}

// MarshalJSON encodes the link back into its [url, label] pair.
func (l InfoLink) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.URL, l.Label})
}

// DiagnosisResult is one record returned by GET /diagnosis for the symptom form.
type DiagnosisResult struct {
	PrimaryName string `json:"primary_name"`
	Description string `json:"description"`
	Remedies    string `json:"remedies"`
}

// ChatDiagnosisKind discriminates the three reply shapes of the chat diagnosis call.
type ChatDiagnosisKind string

const (
	ChatDiagnosisMatches ChatDiagnosisKind = "matches"
	ChatDiagnosisError   ChatDiagnosisKind = "error"
	ChatDiagnosisMessage ChatDiagnosisKind = "message"
)

// ChatMatch is one possible disease in a chat diagnosis reply.
type ChatMatch struct {
	Name       string `json:"name"`
	ICD10Codes string `json:"icd10_codes"`
	InfoLink   string `json:"info_link"`
}

// ChatDiagnosis is the decoded reply of GET /diagnosis?symptoms=...
// Only the field matching Kind is meaningful.
type ChatDiagnosis struct {
	Kind    ChatDiagnosisKind
	Matches []ChatMatch
	Error   string
	Message string
}

// DecodeChatDiagnosis discriminates on the JSON shape: an array is a match list,
// an object carrying "error" or "message" is the corresponding notice.
func DecodeChatDiagnosis(data []byte) (ChatDiagnosis, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ChatDiagnosis{}, eris.Wrap(err, "decoding chat diagnosis")
	}

	if first := firstToken(raw); first == '[' {
		var matches []ChatMatch
		if err := json.Unmarshal(raw, &matches); err != nil {
			return ChatDiagnosis{}, eris.Wrap(err, "decoding chat diagnosis matches")
		}
		return ChatDiagnosis{Kind: ChatDiagnosisMatches, Matches: matches}, nil
	}

	var notice struct {
		Error   *string `json:"error"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &notice); err != nil {
		return ChatDiagnosis{}, eris.Wrap(err, "decoding chat diagnosis notice")
	}

	switch {
	case notice.Error != nil && *notice.Error != "":
		return ChatDiagnosis{Kind: ChatDiagnosisError, Error: *notice.Error}, nil
	case notice.Message != nil && *notice.Message != "":
		return ChatDiagnosis{Kind: ChatDiagnosisMessage, Message: *notice.Message}, nil
	default:
		return ChatDiagnosis{}, eris.New("chat diagnosis reply has neither matches, error nor message")
	}
}

func firstToken(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return b
		}
	}
	return 0
}

// GeminiRequest is the JSON body sent to POST /gemini.
type GeminiRequest struct {
	Message string `json:"message"`
}

// GeminiResponse is the JSON reply of POST /gemini.
type GeminiResponse struct {
	Response *string `json:"response,omitempty"`
}

// NoResponseText is shown when the assistant reply is missing or blank.
const NoResponseText = "No response"

// Text returns the reply or NoResponseText when absent.
func (r GeminiResponse) Text() string {
	if r.Response == nil || *r.Response == "" {
		return NoResponseText
	}
	return *r.Response
}
