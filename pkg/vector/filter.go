package vector

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// RangeCond is a half-open or closed numeric range. Nil bounds are unbounded.
type RangeCond struct {
	GTE *float64
	LTE *float64
}

// Filter is the closed payload filter algebra: the conjunction (AND) of
// field-equality, field-in-set and numeric-range conditions. There is no OR
// and no negation.
type Filter struct {
	Equals map[string]interface{}
	InSet  map[string][]string
	Range  map[string]RangeCond
}

// IsEmpty reports whether the filter has no conditions.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Equals) == 0 && len(f.InSet) == 0 && len(f.Range) == 0)
}

// Matches evaluates the filter against a payload. Used by the in-memory
// store; the Qdrant gateway pushes the filter down instead.
func (f *Filter) Matches(payload map[string]interface{}) bool {
	if f.IsEmpty() {
		return true
	}
	for field, want := range f.Equals {
		got, ok := payload[field]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	for field, set := range f.InSet {
		got, ok := payload[field]
		if !ok {
			return false
		}
		s, ok := got.(string)
		if !ok {
			return false
		}
		found := false
		for _, candidate := range set {
			if s == candidate {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for field, r := range f.Range {
		got, ok := payload[field]
		if !ok {
			return false
		}
		n, ok := asFloat(got)
		if !ok {
			return false
		}
		if r.GTE != nil && n < *r.GTE {
			return false
		}
		if r.LTE != nil && n > *r.LTE {
			return false
		}
	}
	return true
}

// looseEqual compares payload values across the numeric types JSON decoding
// and Go literals produce.
func looseEqual(got, want interface{}) bool {
	if gn, ok := asFloat(got); ok {
		if wn, ok := asFloat(want); ok {
			return gn == wn
		}
		return false
	}
	return got == want
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toQdrant converts the filter to a Qdrant filter with one Must condition
// per algebra entry. Returns nil for an empty filter.
func (f *Filter) toQdrant() (*qdrant.Filter, error) {
	if f.IsEmpty() {
		return nil, nil
	}

	var must []*qdrant.Condition
	for field, want := range f.Equals {
		switch v := want.(type) {
		case string:
			must = append(must, qdrant.NewMatch(field, v))
		case bool:
			must = append(must, qdrant.NewMatchBool(field, v))
		case int:
			must = append(must, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			must = append(must, qdrant.NewMatchInt(field, v))
		case float64:
			// Qdrant has no float match; express exact floats as a
			// degenerate range.
			eq := v
			must = append(must, qdrant.NewRange(field, &qdrant.Range{Gte: &eq, Lte: &eq}))
		default:
			return nil, fmt.Errorf("unsupported equality value type %T for field %s", want, field)
		}
	}
	for field, set := range f.InSet {
		must = append(must, qdrant.NewMatchKeywords(field, set...))
	}
	for field, r := range f.Range {
		must = append(must, qdrant.NewRange(field, &qdrant.Range{Gte: r.GTE, Lte: r.LTE}))
	}

	return &qdrant.Filter{Must: must}, nil
}
