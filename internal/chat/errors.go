package chat

import "fmt"

// ValidationError reports malformed input. Never retried automatically.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ForbiddenError reports a caller that may not perform the operation.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// RoomClosedError reports a send into a closed room. It unwraps to a
// ForbiddenError.
type RoomClosedError struct {
	RoomID string
}

func (e *RoomClosedError) Error() string {
	return "종료된 상담방입니다"
}

func (e *RoomClosedError) Unwrap() error {
	return &ForbiddenError{Message: e.Error()}
}

// NotFoundError reports a missing room.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// ConflictError reports a role already held by someone else.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// StoreError wraps a backend failure. Its text is logged, never shown to
// clients.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
