package predict

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// UnknownCategoryError reports a categorical value outside the vocabulary
// the model was trained on.
type UnknownCategoryError struct {
	Field       string
	Value       string
	Suggestions []string
}

func (e *UnknownCategoryError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("unknown %s %q (did you mean: %s?)", e.Field, e.Value, strings.Join(e.Suggestions, ", "))
}

// LabelEncoder maps category strings to dense integer codes. Codes follow
// the sorted order of the training vocabulary.
type LabelEncoder struct {
	Field   string   `json:"field"`
	Classes []string `json:"classes"`

	index map[string]int
}

// FitLabelEncoder builds an encoder over the distinct lowercase values.
func FitLabelEncoder(field string, values []string) *LabelEncoder {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[canonical(v)] = struct{}{}
	}
	classes := make([]string, 0, len(set))
	for v := range set {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	e := &LabelEncoder{Field: field, Classes: classes}
	e.buildIndex()
	return e
}

func (e *LabelEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	type plain LabelEncoder
	if err := json.Unmarshal(data, (*plain)(e)); err != nil {
		return err
	}
	e.buildIndex()
	return nil
}

// Encode returns the code for v or an *UnknownCategoryError.
func (e *LabelEncoder) Encode(v string) (int, error) {
	code, ok := e.index[canonical(v)]
	if !ok {
		return 0, &UnknownCategoryError{Field: e.Field, Value: canonical(v), Suggestions: e.Suggest(v, 5)}
	}
	return code, nil
}

// Suggest returns up to n known classes closest to v, preferring classes
// that share its prefix, then by edit distance.
func (e *LabelEncoder) Suggest(v string, n int) []string {
	v = canonical(v)
	type scored struct {
		class  string
		prefix bool
		dist   int
	}
	ranked := make([]scored, len(e.Classes))
	for i, c := range e.Classes {
		ranked[i] = scored{
			class:  c,
			prefix: v != "" && (strings.HasPrefix(c, v) || strings.HasPrefix(v, c)),
			dist:   levenshtein(v, c),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].prefix != ranked[j].prefix {
			return ranked[i].prefix
		}
		return ranked[i].dist < ranked[j].dist
	})
	out := make([]string, 0, n)
	for _, r := range ranked {
		if len(out) == n {
			break
		}
		out = append(out, r.class)
	}
	return out
}

func canonical(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
