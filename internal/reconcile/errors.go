package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBasenameCollision is matched by CollisionError via errors.Is
var ErrBasenameCollision = errors.New("basename collision")

// CollisionError reports distinct source paths that would land on the same
// target path.
type CollisionError struct {
	Target string
	Paths  []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("basename collision on %s: %s", e.Target, strings.Join(e.Paths, ", "))
}

// Is makes errors.Is(err, ErrBasenameCollision) work
func (e *CollisionError) Is(target error) bool {
	return target == ErrBasenameCollision
}

// StageError wraps a failed store call with the operation that failed
type StageError struct {
	Op   OpKind
	Path string
	Err  error
}

func (e *StageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsWrite reports whether the failed operation was a store write
func (e *StageError) IsWrite() bool {
	return e.Op.IsWrite()
}
