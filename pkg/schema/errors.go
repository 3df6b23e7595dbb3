package schema

import "fmt"

// Kind tags a ValidationError with the concept-level taxonomy from spec.md §7.
type Kind string

const (
	KindUnknownType        Kind = "UnknownType"
	KindNameCollision      Kind = "NameCollision"
	KindBadTopNode         Kind = "BadTopNode"
	KindBadContentExpr     Kind = "BadContentExpr"
	KindUnknownAttr        Kind = "UnknownAttr"
	KindMissingRequired    Kind = "MissingRequiredAttr"
	KindNoValidEnd         Kind = "NoValidEnd"
)

// ValidationError is a schema or input constraint violation (spec.md §7).
type ValidationError struct {
	Kind    Kind
	Subject string // node/mark/attr name the error concerns
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s] %s: %s", e.Kind, e.Subject, e.Message)
}

func newValidationErr(kind Kind, subject, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Subject: subject, Message: msg}
}
