package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind enumerates the supported question kinds.
type Kind string

const (
	KindSingleChoice Kind = "single_choice"
	KindBoolean      Kind = "boolean"
)

type valueType uint8

const (
	valueUnset valueType = iota
	valueIndex
	valueBool
)

// Value is a taker's response or a question's correct answer: an option
// index, a boolean, or unset. The zero Value is unset.
type Value struct {
	typ   valueType
	index int
	flag  bool
}

// Unset returns the empty answer.
func Unset() Value { return Value{} }

// Choice returns an option-index answer.
func Choice(index int) Value { return Value{typ: valueIndex, index: index} }

// Bool returns a boolean answer.
func Bool(b bool) Value { return Value{typ: valueBool, flag: b} }

// IsSet reports whether the value carries an answer.
func (v Value) IsSet() bool { return v.typ != valueUnset }

// Index returns the option index and whether the value is an index.
func (v Value) Index() (int, bool) { return v.index, v.typ == valueIndex }

// Boolean returns the boolean and whether the value is a boolean.
func (v Value) Boolean() (bool, bool) { return v.flag, v.typ == valueBool }

// Equal compares by exact value. An index never equals a boolean and an
// unset value equals nothing, including another unset value.
func (v Value) Equal(o Value) bool {
	if v.typ == valueUnset || v.typ != o.typ {
		return false
	}
	if v.typ == valueIndex {
		return v.index == o.index
	}
	return v.flag == o.flag
}

func (v Value) String() string {
	switch v.typ {
	case valueIndex:
		return fmt.Sprintf("%d", v.index)
	case valueBool:
		return fmt.Sprintf("%t", v.flag)
	default:
		return "unset"
	}
}

// MarshalJSON encodes unset as null, an index as a number and a boolean as a boolean.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case valueIndex:
		return json.Marshal(v.index)
	case valueBool:
		return json.Marshal(v.flag)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, a non-negative integer or a boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = Bool(b)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("answer must be an option index or a boolean: %w", err)
	}
	if n < 0 {
		return errors.New("answer index must not be negative")
	}
	*v = Choice(n)
	return nil
}

// Question is immutable for the lifetime of a session.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Kind    Kind     `json:"kind"`
	Options []string `json:"options,omitempty"`
	Correct Value    `json:"correct_answer"`
}

// Validate checks that the question is internally consistent.
func (q Question) Validate() error {
	if q.ID == "" {
		return errors.New("question id is required")
	}
	switch q.Kind {
	case KindSingleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("question %s: single choice needs at least two options", q.ID)
		}
		idx, ok := q.Correct.Index()
		if !ok {
			return fmt.Errorf("question %s: correct answer must be an option index", q.ID)
		}
		if idx >= len(q.Options) {
			return fmt.Errorf("question %s: correct index %d out of range", q.ID, idx)
		}
	case KindBoolean:
		if len(q.Options) > 0 {
			return fmt.Errorf("question %s: boolean questions take no options", q.ID)
		}
		if _, ok := q.Correct.Boolean(); !ok {
			return fmt.Errorf("question %s: correct answer must be a boolean", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
	return nil
}

// PublicQuestion is a question as shown to the taker, without the answer.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Kind    Kind     `json:"kind"`
	Options []string `json:"options,omitempty"`
}

// Public strips the correct answer.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Prompt: q.Prompt, Kind: q.Kind, Options: q.Options}
}
