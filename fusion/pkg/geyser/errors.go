package geyser

import "fmt"

// ErrorKind classifies errors returned to the host.
type ErrorKind int

const (
	ErrConfigFileOpen ErrorKind = iota
	ErrConfigFileRead
	ErrUpdateAccount
	ErrUpdateSlotStatus
	ErrCustom
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConfigFileOpen:
		return "config file open"
	case ErrConfigFileRead:
		return "config file read"
	case ErrUpdateAccount:
		return "update account"
	case ErrUpdateSlotStatus:
		return "update slot status"
	default:
		return "custom"
	}
}

// Error is the error type plugins return to the host.
type Error struct {
	Kind ErrorKind
	Err  error
}

// NewError wraps err with the given kind. It returns nil for a nil err.
func NewError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("geyser plugin %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
