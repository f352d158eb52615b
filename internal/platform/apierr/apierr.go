package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies failures by how the session pipeline must react to them.
type Kind string

const (
	BadFrame      Kind = "bad_frame"
	EmptyText     Kind = "empty_text"
	EmbedError    Kind = "embed_error"
	PersistError  Kind = "persist_error"
	DeliveryError Kind = "delivery_error"
	ChannelClosed Kind = "channel_closed"
	Fatal         Kind = "fatal"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apierr.Of(apierr.EmbedError)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of returns a sentinel for kind, for use with errors.Is.
func Of(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf reports the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
