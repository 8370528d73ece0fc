package tmpl

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that produced an Error.
type Stage string

const (
	StageLex    Stage = "lex"
	StageParse  Stage = "parse"
	StageRender Stage = "render"
)

// Sentinel errors. Every *Error unwraps to exactly one of these.
var (
	ErrUnterminatedTag = errors.New("unterminated tag")
	ErrUnknownTag      = errors.New("unrecognized tag")

	ErrUnclosedBlock   = errors.New("unclosed block")
	ErrDanglingClose   = errors.New("dangling close")
	ErrMismatchedClose = errors.New("mismatched close")

	ErrUndefined   = errors.New("undefined variable")
	ErrOutsideLoop = errors.New("loop variable outside each")
	ErrNotBool     = errors.New("flag is not boolean")
	ErrNotArray    = errors.New("value is not an array")
	ErrNotScalar   = errors.New("value is not a scalar")
	ErrNotObject   = errors.New("context is not an object")
)

// Error is returned by every stage of the engine. It carries the stage,
// the source position of the fault and a human readable message.
type Error struct {
	Stage Stage
	Pos   Pos
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s error at line %d, column %d: %s", e.Stage, e.Pos.Line, e.Pos.Column, e.Msg)
	}
	return fmt.Sprintf("%s error: %s", e.Stage, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(stage Stage, pos Pos, sentinel error, format string, args ...any) *Error {
	return &Error{
		Stage: stage,
		Pos:   pos,
		Msg:   fmt.Sprintf(format, args...),
		Err:   sentinel,
	}
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
