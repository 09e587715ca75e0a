package ui

import "sync"

// Token identifies one submission against a Results panel.
type Token uint64

// Results is the shared results panel of the lookup and diagnosis forms.
//
// Every submission takes a token from Begin. Only the holder of the latest
// token may write the panel or stop the spinner; Clear invalidates every
// outstanding token.
type Results struct {
	mu         sync.Mutex
	generation Token
	loading    bool
	content    []byte
}

// Begin starts a submission and shows the spinner.
func (r *Results) Begin() Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.loading = true
	return r.generation
}

// Commit stores content for token and hides the spinner. It returns false,
// leaving the panel untouched, when a newer submission or a Clear happened since.
func (r *Results) Commit(token Token, content []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token != r.generation {
		return false
	}

	r.content = append([]byte(nil), content...)
	r.loading = false
	return true
}

// Fail hides the spinner for a failed submission; stale tokens are ignored.
func (r *Results) Fail(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token != r.generation {
		return false
	}

	r.loading = false
	return true
}

// Clear empties the panel and discards in-flight submissions.
func (r *Results) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	r.loading = false
	r.content = nil
}

// Current reports whether token is still the latest submission.
func (r *Results) Current(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return token == r.generation
}

// Loading reports whether the spinner is shown.
func (r *Results) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Content returns a copy of the rendered panel contents.
func (r *Results) Content() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.content...)
}
