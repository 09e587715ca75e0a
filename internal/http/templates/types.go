package templates

// DefaultTitle is used by pages that do not supply their own title.
const DefaultTitle = "Symptom & Disease Lookup"

const (
	// ProcedureLabel describes a lookup record flagged as a procedure.
	ProcedureLabel = "Medical Procedure (e.g., surgery, diagnostic tests)"
	// ConditionLabel describes every other lookup record.
	ConditionLabel = "Disease or Condition"

	NoResultsMessage   = "No results found."
	NoDiagnosisMessage = "No diagnosis found."
)

const (
	lookupView    = "lookup"
	diagnosisView = "diagnosis"
)

// Entry kinds understood by TranscriptEntries.
const (
	EntryUser    = "user"
	EntryMatches = "matches"
	EntryText    = "text"
	EntryReply   = "reply"
	EntryFailure = "failure"
)

const cardClass = "bg-gray-800 p-4 mb-4 rounded-lg shadow-lg border border-gray-600 text-left"

// Error fragments carry notices, so 4xx and 5xx responses are swapped too.
const htmxConfig = `{"responseHandling":[{"code":"204","swap":false},{"code":"[23]..","swap":true},{"code":"[45]..","swap":true,"error":true}]}`

// Element identifiers shared by the page and the fragment responses.
const (
	ResultsID           = "results"
	SpinnerID           = "spinner"
	DiagnosisMessagesID = "apiMessages"
	AssistantMessagesID = "geminiMessages"
)

// ToggleView is the state of the two-form switch.
type ToggleView struct {
	Selected string
}

// LinkView is an external reference link.
type LinkView struct {
	URL   string
	Label string
}

// LookupCardView is one disease lookup card.
type LookupCardView struct {
	Name      string
	Codes     string
	TypeLabel string
	Synonyms  []string
	Links     []LinkView
}

// DiagnosisCardView is one diagnosis card.
type DiagnosisCardView struct {
	Name        string
	Description string
	Remedies    string
}

// MatchView is one possible disease inside a chat reply.
type MatchView struct {
	Name  string
	Codes string
	URL   string
}

// EntryView is one transcript line. HTML, when set, is trusted pre-rendered markup.
type EntryView struct {
	Speaker string
	Kind    string
	Text    string
	HTML    string
	Matches []MatchView
}

// PageData bundles everything the full page renders.
type PageData struct {
	Title       string
	Toggle      ToggleView
	ResultsHTML string
	Loading     bool
	Diagnosis   []EntryView
	Assistant   []EntryView
}

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	Title       string
	StatusLabel string
	Message     string
}
