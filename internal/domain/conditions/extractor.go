package conditions

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type rule struct {
	label    string
	keywords []string
}

// Extractor detects chronic conditions in free text by substring matching
// against the keyword table. It holds no mutable state.
type Extractor struct {
	rules []rule
}

// NewExtractor builds an extractor from catalog entries. Entry order is the
// order in which conditions are reported.
func NewExtractor(entries []Entry) *Extractor {
	x := &Extractor{rules: make([]rule, 0, len(entries))}
	for _, e := range entries {
		r := rule{label: e.Label, keywords: make([]string, 0, len(e.Keywords))}
		for _, kw := range e.Keywords {
			r.keywords = append(r.keywords, fold(kw))
		}
		x.rules = append(x.rules, r)
	}
	return x
}

// Extract returns the ordered, duplicate-free conditions mentioned in note.
// The result is never nil.
func (x *Extractor) Extract(note string) []string {
	detected := make([]string, 0, len(x.rules))
	if note == "" {
		return detected
	}
	text := fold(note)

	for _, r := range x.rules {
		for _, kw := range r.keywords {
			if !strings.Contains(text, kw) {
				continue
			}
			if !slices.Contains(detected, r.label) {
				detected = append(detected, r.label)
			}
			break
		}
	}

	// Unqualified diabetes defaults to type 2 unless some diabetes label
	// (insipidus included) already matched.
	if !mentionsDiabetesLabel(detected) &&
		(strings.Contains(text, "diabetes") || strings.Contains(text, "diabetic")) {
		detected = append(detected, DiabetesMellitusType2)
	}

	return detected
}

func mentionsDiabetesLabel(labels []string) bool {
	for _, l := range labels {
		if strings.Contains(l, "Diabetes") {
			return true
		}
	}
	return false
}

// fold applies NFKC normalization and Unicode lower-casing. A Caser is
// stateful, so one is created per call.
func fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFKC.String(s))
}
