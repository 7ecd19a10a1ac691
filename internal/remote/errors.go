package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad matches every failure to read the shared cloud document.
	ErrLoad = errors.New("remote: cloud load failed")
	// ErrSave matches every failure to write the shared cloud document.
	ErrSave = errors.New("remote: cloud save failed")
	// ErrBackupLoad matches every failure to fetch the secondary backup document.
	ErrBackupLoad = errors.New("remote: backup fetch failed")
	// ErrBackupSave matches every failure to store the secondary backup document.
	ErrBackupSave = errors.New("remote: backup sync failed")
	// ErrWatch matches every failure to follow the change stream of the shared document.
	ErrWatch = errors.New("remote: change stream failed")
	// ErrNotConfigured indicates that no endpoint was configured for the operation.
	ErrNotConfigured = errors.New("remote: endpoint not configured")
)

// Op names the remote operation that failed.
type Op string

const (
	OpLoad       Op = "load"
	OpSave       Op = "save"
	OpBackupLoad Op = "backup.load"
	OpBackupSave Op = "backup.save"
	OpWatch      Op = "watch"
)

// Error describes a failed remote call. StatusCode is zero for transport failures.
type Error struct {
	Op         Op
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	message := e.sentinel().Error()
	if e.StatusCode != 0 {
		message = fmt.Sprintf("%s: status %d", message, e.StatusCode)
	}
	if e.Err != nil {
		message = fmt.Sprintf("%s: %v", message, e.Err)
	}
	return message
}

// Unwrap exposes the underlying transport or decoding error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the failed operation.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Op {
	case OpSave:
		return ErrSave
	case OpBackupLoad:
		return ErrBackupLoad
	case OpBackupSave:
		return ErrBackupSave
	case OpWatch:
		return ErrWatch
	default:
		return ErrLoad
	}
}

func newError(op Op, statusCode int, err error) *Error {
	return &Error{Op: op, StatusCode: statusCode, Err: err}
}
