package ber

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks. Every typed error below matches exactly one.
var (
	ErrFormat        = errors.New("ber: format error")
	ErrTruncated     = errors.New("ber: truncated data")
	ErrUnexpectedTag = errors.New("ber: unexpected tag")
	ErrSyntax        = errors.New("ber: syntax error")
	ErrEncode        = errors.New("ber: cannot encode")
)

// FormatError reports a malformed textual literal, such as an OID string.
type FormatError struct {
	Input  string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ber: cannot parse %q: %s", e.Input, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }
func (e *FormatError) Unwrap() error        { return e.Err }

// TruncatedDataError is returned when a length field or fixed-width read
// needs more bytes than remain in the buffer.
type TruncatedDataError struct {
	Offset int
	Need   int
	Have   int
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("ber: truncated data at offset %d: need %d bytes, have %d", e.Offset, e.Need, e.Have)
}

func (e *TruncatedDataError) Is(target error) bool { return target == ErrTruncated }

// UnexpectedTagError is returned when the tag at a structural position does
// not match the one required there.
type UnexpectedTagError struct {
	Offset   int
	Position string
	Expected TagInfo
	Actual   TagInfo
}

func (e *UnexpectedTagError) Error() string {
	pos := e.Position
	if pos == "" {
		pos = "element"
	}
	return fmt.Sprintf("ber: unexpected tag for %s at offset %d: expected %s, got %s", pos, e.Offset, e.Expected, e.Actual)
}

func (e *UnexpectedTagError) Is(target error) bool { return target == ErrUnexpectedTag }

// SyntaxError covers structurally invalid encodings that are not simple
// truncation: indefinite lengths, oversized integers, dangling OID
// continuation bits.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("ber: syntax error at offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// EncodeError is returned when a value cannot be written under the requested
// tag: a kind mismatch or a value outside the tag's range.
type EncodeError struct {
	Tag    TagInfo
	Kind   Kind
	Reason string
}

func (e *EncodeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ber: cannot encode %s value as %s: %s", e.Kind, e.Tag, e.Reason)
	}
	return fmt.Sprintf("ber: cannot encode %s value as %s", e.Kind, e.Tag)
}

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }
