package canproto

import "fmt"

// CheckKind names which of the three generic receive checks failed.
type CheckKind int

const (
	CheckArbitrationID CheckKind = iota
	CheckLength
	CheckFilterField
)

func (k CheckKind) String() string {
	switch k {
	case CheckArbitrationID:
		return "arbitration ID"
	case CheckLength:
		return "length"
	case CheckFilterField:
		return "filter field"
	default:
		return "unknown check"
	}
}

// MessageError reports that a received frame failed one of the codec's
// generic checks: wrong arbitration ID, wrong payload length, or a
// constant "filter" field holding an unexpected value.
type MessageError struct {
	Kind  CheckKind
	Frame Frame
	msg   string
}

func (e *MessageError) Error() string {
	return e.msg
}

func idError(f Frame, want ID) error {
	return &MessageError{
		Kind:  CheckArbitrationID,
		Frame: f,
		msg:   fmt.Sprintf("canproto: expected frame with ID %#x, got %#x (data % x)", want, f.ID, f.Data),
	}
}

func lengthError(f Frame, want int) error {
	return &MessageError{
		Kind:  CheckLength,
		Frame: f,
		msg:   fmt.Sprintf("canproto: expected frame with length %d, got %d (data % x)", want, len(f.Data), f.Data),
	}
}

func filterError(f Frame, field string, want, got []byte) error {
	return &MessageError{
		Kind:  CheckFilterField,
		Frame: f,
		msg:   fmt.Sprintf("canproto: field %s is % x but expected % x (data % x)", field, got, want, f.Data),
	}
}
