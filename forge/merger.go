package forge

import "strings"

// Merger folds fragments into one record and, when prompt feedback is on,
// grows the prompt with keys that were generated more than once.
//
// A Merger is the explicit accumulator of a pass; it is not safe for
// concurrent use.
type Merger struct {
	record   *Record
	prompt   strings.Builder
	suffix   strings.Builder
	feedback bool
	fed      map[string]struct{}
	fedOrder []string
}

// NewMerger starts an accumulator with the given base prompt.
func NewMerger(prompt string, feedback bool) *Merger {
	m := &Merger{
		record:   NewRecord(),
		feedback: feedback,
		fed:      make(map[string]struct{}),
	}
	m.prompt.WriteString(prompt)
	return m
}

// Begin replaces the base prompt for the next job. The record, the set of
// fed-back keys and their " key: value" text carry over, so feedback from an
// earlier job reaches every later generation call.
func (m *Merger) Begin(prompt string) {
	m.prompt.Reset()
	m.prompt.WriteString(prompt)
	m.prompt.WriteString(m.suffix.String())
}

// Merge folds one fragment in key order and returns the keys that were fed
// back into the prompt by this call.
//
// Absent keys are inserted. For a present key, feedback off overwrites the
// value; feedback on keeps the first value and appends " key: value" to the
// prompt the first time the key repeats.
func (m *Merger) Merge(fragment *Record) []string {
	var fedBack []string
	fragment.Range(func(key string, value any) bool {
		if !m.record.Has(key) {
			m.record.Set(key, value)
			return true
		}
		if !m.feedback {
			m.record.Set(key, value)
			return true
		}
		if _, done := m.fed[key]; done {
			return true
		}
		m.fed[key] = struct{}{}
		m.fedOrder = append(m.fedOrder, key)
		text := " " + key + ": " + renderValue(value)
		m.prompt.WriteString(text)
		m.suffix.WriteString(text)
		fedBack = append(fedBack, key)
		return true
	})
	return fedBack
}

// Record returns the accumulated record.
func (m *Merger) Record() *Record { return m.record }

// Prompt returns the current prompt including feedback.
func (m *Merger) Prompt() string { return m.prompt.String() }

// FedBack lists every key fed back so far, in order.
func (m *Merger) FedBack() []string {
	out := make([]string, len(m.fedOrder))
	copy(out, m.fedOrder)
	return out
}

// Feedback reports whether prompt feedback is enabled.
func (m *Merger) Feedback() bool { return m.feedback }
