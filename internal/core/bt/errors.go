package bt

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTree   = errors.New("bt: empty tree")
	ErrUnknownType = errors.New("bt: unknown node type")
	ErrNilNode     = errors.New("bt: nil node descriptor")
	ErrArity       = errors.New("bt: wrong number of children")
	ErrBadKind     = errors.New("bt: invalid kind registration")
)

// CompileError locates a compilation failure in the descriptor tree. Path
// lists child positions from the root, e.g. "root/1/0".
type CompileError struct {
	Path string
	Type string
	Err  error
}

func (e *CompileError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("compile %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("compile %s (%s): %v", e.Path, e.Type, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
