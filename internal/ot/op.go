// Package ot implements operational transformation for flat text documents.
//
// Positions and lengths count Unicode scalar values (runes), both in the
// transform arithmetic and when applying an operation to content. Byte
// offsets are never used for document coordinates.
package ot

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind identifies an operation variant. The set is closed: Transform and
// Apply are total over it, and anything else is a defect in the caller.
type Kind int

const (
	KindNoop Kind = iota
	KindInsert
	KindDelete
)

// Wire names for each kind, fixed by the client protocol.
const (
	typeInsert = "insert"
	typeDelete = "delete"
	typeNoop   = "noop"
)

// ErrUnsupported reports an operation outside the closed {insert, delete,
// noop} set reaching Transform or Apply. It indicates a defect upstream,
// not a runtime condition to recover from.
var ErrUnsupported = errors.New("ot: unsupported operation kind")

// Operation is a single edit. Insert carries Pos and Text, Delete carries
// Pos and Len, Noop carries nothing. A transformed operation may degenerate
// into a Noop; once it does it stays a Noop under further transforms.
type Operation struct {
	Kind Kind
	Pos  int
	Text string
	Len  int
}

// Noop returns the empty operation.
func Noop() Operation {
	return Operation{Kind: KindNoop}
}

// NewInsert builds an insert, validating its structure.
func NewInsert(pos int, text string) (Operation, error) {
	if pos < 0 {
		return Operation{}, fmt.Errorf("insert position %d is negative", pos)
	}
	if text == "" {
		return Operation{}, errors.New("insert text is empty")
	}
	return Operation{Kind: KindInsert, Pos: pos, Text: text}, nil
}

// NewDelete builds a delete, validating its structure.
func NewDelete(pos, length int) (Operation, error) {
	if pos < 0 {
		return Operation{}, fmt.Errorf("delete position %d is negative", pos)
	}
	if length <= 0 {
		return Operation{}, fmt.Errorf("delete length %d is not positive", length)
	}
	return Operation{Kind: KindDelete, Pos: pos, Len: length}, nil
}

// IsNoop reports whether the operation has no effect.
func (op Operation) IsNoop() bool {
	return op.Kind == KindNoop
}

// textLen is the insert payload length in runes.
func (op Operation) textLen() int {
	return utf8.RuneCountInString(op.Text)
}

// Validate checks op against content without applying it. Insert positions
// range over [0, len(content)]; deletes must fall entirely inside content.
func (op Operation) Validate(content string) error {
	n := utf8.RuneCountInString(content)
	switch op.Kind {
	case KindNoop:
		return nil
	case KindInsert:
		if op.Pos < 0 || op.Pos > n {
			return fmt.Errorf("insert at %d out of bounds for length %d", op.Pos, n)
		}
		return nil
	case KindDelete:
		if op.Pos < 0 || op.Pos+op.Len > n {
			return fmt.Errorf("delete [%d,%d) out of bounds for length %d", op.Pos, op.Pos+op.Len, n)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupported, op.Kind)
	}
}

// Apply returns content with op applied, or an error if op is out of bounds.
func (op Operation) Apply(content string) (string, error) {
	if err := op.Validate(content); err != nil {
		return "", err
	}
	switch op.Kind {
	case KindNoop:
		return content, nil
	case KindInsert:
		r := []rune(content)
		return string(r[:op.Pos]) + op.Text + string(r[op.Pos:]), nil
	default:
		r := []rune(content)
		return string(r[:op.Pos]) + string(r[op.Pos+op.Len:]), nil
	}
}

// String renders a compact debug form, e.g. i(3,"foo") or d(2,4).
func (op Operation) String() string {
	switch op.Kind {
	case KindInsert:
		return fmt.Sprintf("i(%d,%q)", op.Pos, op.Text)
	case KindDelete:
		return fmt.Sprintf("d(%d,%d)", op.Pos, op.Len)
	default:
		return "noop"
	}
}

// wireOp is the JSON shape shared by the client protocol and the event log.
type wireOp struct {
	Type     string `json:"type"`
	Position int    `json:"position,omitempty"`
	Text     string `json:"text,omitempty"`
	Length   int    `json:"length,omitempty"`
}

// MarshalJSON encodes op as {"type":"insert","position":p,"text":t},
// {"type":"delete","position":p,"length":n} or {"type":"noop"}.
func (op Operation) MarshalJSON() ([]byte, error) {
	switch op.Kind {
	case KindInsert:
		return json.Marshal(wireOp{Type: typeInsert, Position: op.Pos, Text: op.Text})
	case KindDelete:
		return json.Marshal(wireOp{Type: typeDelete, Position: op.Pos, Length: op.Len})
	case KindNoop:
		return json.Marshal(wireOp{Type: typeNoop})
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupported, op.Kind)
	}
}

// UnmarshalJSON decodes the wire form, rejecting structurally invalid
// operations (empty insert text, non-positive delete length, negative
// positions, unknown types).
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := FromWire(w.Type, w.Position, w.Text, w.Length)
	if err != nil {
		return err
	}
	*op = decoded
	return nil
}

// FromWire builds an operation from protocol fields.
func FromWire(typ string, position int, text string, length int) (Operation, error) {
	switch typ {
	case typeInsert:
		return NewInsert(position, text)
	case typeDelete:
		return NewDelete(position, length)
	case typeNoop:
		return Noop(), nil
	default:
		return Operation{}, fmt.Errorf("unknown operation type %q", typ)
	}
}
