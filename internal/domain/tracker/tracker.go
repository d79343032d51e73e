// Package tracker models named per-user progress accumulators. A tracker
// holds either a single numeric running sum or a set of unique string
// tokens, never both. Historical data may contain array-valued entries;
// decoding expands them and Flatten restores the canonical shape.
package tracker

import (
	"encoding/json"
	"fmt"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
)

// Kind is the value kind a tracker accumulates.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumber
	KindString
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a single progress signal: a number or a string token.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// NumberValue builds a numeric signal.
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// StringValue builds a string-token signal.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// IsValid reports whether the value carries a known kind.
func (v Value) IsValid() bool {
	return v.Kind == KindNumber || v.Kind == KindString
}

// MarshalJSON renders the value as a bare JSON number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	default:
		return nil, shared.ErrUnknownValueKind
	}
}

// Entry is one recorded signal on a tracker.
type Entry struct {
	At    int64 // unix milliseconds
	Value Value
}

// Entries is an ordered sequence of tracker entries.
type Entries []Entry

type wireEntry struct {
	T int64           `json:"t"`
	V json.RawMessage `json:"v"`
}

// MarshalJSON renders the entry in its wire form {"t":...,"v":...}.
func (e Entry) MarshalJSON() ([]byte, error) {
	v, err := e.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEntry{T: e.At, V: v})
}

// Encode serializes entries for storage.
func Encode(es Entries) ([]byte, error) {
	if es == nil {
		es = Entries{}
	}
	return json.Marshal(es)
}

// Decode parses stored entries. Array-valued entries (a historical data
// bug) are expanded into one entry per element, preserving the timestamp;
// Flatten then restores the canonical shape.
func Decode(data []byte) (Entries, error) {
	if len(data) == 0 {
		return Entries{}, nil
	}
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, shared.WrapError("tracker", "Decode", shared.ErrInvalidFormat, "malformed tracker payload", err)
	}
	out := make(Entries, 0, len(wire))
	for _, w := range wire {
		values, err := decodeValue(w.V)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			out = append(out, Entry{At: w.T, Value: v})
		}
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) ([]Value, error) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return []Value{NumberValue(num)}, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return []Value{StringValue(str)}, nil
	}
	// Legacy shape: the whole batch was stored as one array value.
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]Value, 0, len(list))
		for _, item := range list {
			vs, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		}
		return out, nil
	}
	return nil, shared.WrapError("tracker", "Decode", shared.ErrInvalidFormat, "unknown tracker value kind",
		fmt.Errorf("value %s", string(raw)))
}

// DominantKind returns the kind of the first valid entry, or KindUnknown
// for an empty tracker.
func (es Entries) DominantKind() Kind {
	for _, e := range es {
		if e.Value.IsValid() {
			return e.Value.Kind
		}
	}
	return KindUnknown
}

// Flatten restores the canonical tracker shape: numeric trackers collapse
// to a single accumulated-sum entry carrying the latest timestamp, string
// trackers keep one entry per distinct token (first occurrence wins).
// Flatten is pure and idempotent; entries of a kind other than the
// tracker's dominant kind are dropped.
func (es Entries) Flatten() Entries {
	kind := es.DominantKind()
	switch kind {
	case KindNumber:
		var sum float64
		var latest int64
		found := false
		for _, e := range es {
			if e.Value.Kind != KindNumber {
				continue
			}
			sum += e.Value.Num
			if e.At > latest {
				latest = e.At
			}
			found = true
		}
		if !found {
			return Entries{}
		}
		return Entries{{At: latest, Value: NumberValue(sum)}}
	case KindString:
		seen := make(map[string]bool, len(es))
		out := make(Entries, 0, len(es))
		for _, e := range es {
			if e.Value.Kind != KindString || seen[e.Value.Str] {
				continue
			}
			seen[e.Value.Str] = true
			out = append(out, e)
		}
		return out
	default:
		return Entries{}
	}
}

// Sum returns the numeric accumulator value, 0 for an empty or string tracker.
func (es Entries) Sum() float64 {
	var sum float64
	for _, e := range es {
		if e.Value.Kind == KindNumber {
			sum += e.Value.Num
		}
	}
	return sum
}

// Tokens returns the distinct string tokens in insertion order.
func (es Entries) Tokens() []string {
	seen := make(map[string]bool, len(es))
	out := make([]string, 0, len(es))
	for _, e := range es {
		if e.Value.Kind != KindString || seen[e.Value.Str] {
			continue
		}
		seen[e.Value.Str] = true
		out = append(out, e.Value.Str)
	}
	return out
}

// Has reports whether a string token is already present.
func (es Entries) Has(token string) bool {
	for _, e := range es {
		if e.Value.Kind == KindString && e.Value.Str == token {
			return true
		}
	}
	return false
}

// AddNumber merges a numeric amount into the accumulator entry, creating
// it if absent, and refreshes its timestamp. The receiver must already be
// flattened.
func (es Entries) AddNumber(amount float64, now int64) Entries {
	if len(es) == 0 {
		return Entries{{At: now, Value: NumberValue(amount)}}
	}
	return Entries{{At: now, Value: NumberValue(es.Sum() + amount)}}
}

// AddTokens appends tokens not already present, skipping duplicates both
// against stored entries and within the batch itself.
func (es Entries) AddTokens(tokens []string, now int64) Entries {
	out := es
	for _, tok := range tokens {
		if out.Has(tok) {
			continue
		}
		out = append(out, Entry{At: now, Value: StringValue(tok)})
	}
	return out
}

// PartitionInput splits a caller-supplied batch into its numeric total and
// string tokens. A batch mixing both kinds is rejected: the caller cannot
// know which half would have been dropped.
func PartitionInput(values []Value) (kind Kind, sum float64, tokens []string, err error) {
	for _, v := range values {
		switch v.Kind {
		case KindNumber:
			if kind == KindString {
				return KindUnknown, 0, nil, shared.ErrMixedValueKinds
			}
			kind = KindNumber
			sum += v.Num
		case KindString:
			if kind == KindNumber {
				return KindUnknown, 0, nil, shared.ErrMixedValueKinds
			}
			kind = KindString
			tokens = append(tokens, v.Str)
		default:
			return KindUnknown, 0, nil, shared.ErrUnknownValueKind
		}
	}
	return kind, sum, tokens, nil
}
