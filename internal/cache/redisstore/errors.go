package redisstore

import (
	"errors"
	"fmt"
)

// Kind separates transport failures by the policy a caller must apply:
// a failed read must never be treated as a miss, and a failed write after a
// successful upstream fetch has to reach the caller too.
type Kind uint8

const (
	KindRead Kind = iota + 1
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ErrNotFound reports a true miss, distinct from any transport failure.
var ErrNotFound = errors.New("redis: key not found")

type AdapterError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("redis %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func readErr(op string, err error) error {
	return &AdapterError{Kind: KindRead, Op: op, Err: err}
}

func writeErr(op string, err error) error {
	return &AdapterError{Kind: KindWrite, Op: op, Err: err}
}
