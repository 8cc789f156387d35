package fault

import "fmt"

// ForbiddenError indicates the caller's role or identity does not
// permit the operation.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return e.Reason
}

// InvalidStateError indicates the entity exists but is not in a state
// the operation accepts.
type InvalidStateError struct {
	Entity string
	Detail string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Detail)
}

// PaymentRequiredError gates solution release until payment is recorded.
type PaymentRequiredError struct {
	TaskID string
}

func (e PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment required before solution release for task %s", e.TaskID)
}

func Forbidden(format string, args ...any) error {
	return ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

func InvalidState(entity, format string, args ...any) error {
	return InvalidStateError{Entity: entity, Detail: fmt.Sprintf(format, args...)}
}
