package core

import "fmt"

// FailureKind classifies why an analysis could not produce a genuine answer.
type FailureKind string

const (
	FailureConfiguration  FailureKind = "configuration"
	FailureLimitExceeded  FailureKind = "limit_exceeded"
	FailureService        FailureKind = "service"
	FailureTimeout        FailureKind = "timeout"
	FailurePersistence    FailureKind = "persistence"
	FailureMalformedInput FailureKind = "malformed_input"
)

// Failure is a typed, non-fatal failure surfaced for logging and output.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

// NewFailure builds a failure of the given kind wrapping err.
func NewFailure(kind FailureKind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

func (f *Failure) Error() string {
	if f == nil {
		return "analysis failure"
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Reason returns the most specific human-readable cause.
func (f *Failure) Reason() string {
	if f == nil {
		return ""
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return f.Message
}
