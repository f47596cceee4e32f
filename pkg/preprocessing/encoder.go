package preprocessing

import (
	"sort"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

// LabelEncoder maps string class labels to dense zero-based codes in sorted order.
type LabelEncoder struct {
	Classes []string
}

func FitLabelEncoder(labels []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	return &LabelEncoder{Classes: classes}
}

func (e *LabelEncoder) Encode(label string) (int, bool) {
	i := sort.SearchStrings(e.Classes, label)
	if i < len(e.Classes) && e.Classes[i] == label {
		return i, true
	}
	return 0, false
}

func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", apperrors.BadRequest("label code %d out of range", code)
	}
	return e.Classes[code], nil
}

// Mapping returns label -> code.
func (e *LabelEncoder) Mapping() map[string]int {
	m := make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		m[c] = i
	}
	return m
}
