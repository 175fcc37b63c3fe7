package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates a quiz id that has no stored record.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound indicates an attempt id that has no stored record.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrNoConnection indicates the question source was unreachable.
	ErrNoConnection = errors.New("no connection")
	// ErrTimeout indicates a connect or read deadline expired.
	ErrTimeout = errors.New("request timed out")
	// ErrInvalidQuizName rejects names shorter than MinQuizNameLength after
	// trimming.
	ErrInvalidQuizName = errors.New("quiz name too short")
)

// NetworkError is a classified failure of the question source: a server
// error carries the HTTP status code, any other API-level failure carries
// only a message.
type NetworkError struct {
	Code    int // non-zero for 5xx server errors
	Message string
}

func (e *NetworkError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
	}
	return "api error: " + e.Message
}

// StorageError wraps any persistence failure crossing the repository
// boundary.
type StorageError struct {
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Message
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage classifies err as a storage failure, preserving domain
// sentinels so errors.Is keeps working across the boundary.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrQuizNotFound) || errors.Is(err, ErrAttemptNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Message: err.Error(), Err: err}
}
