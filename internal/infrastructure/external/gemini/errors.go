package gemini

import (
	"fmt"
	"strings"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// FailureKind classifies why one (version, model path) combination failed
type FailureKind string

const (
	KindHTTPStatus   FailureKind = "http_status"
	KindTransport    FailureKind = "transport"
	KindNoCandidates FailureKind = "no_candidates"
	KindJSONRecovery FailureKind = "json_recovery"
	KindUnauthorized FailureKind = "unauthorized"
)

// Attempt is the failure record of one combination
type Attempt struct {
	Version   string
	ModelPath string
	Kind      FailureKind
	Status    int
	Detail    string
}

func (a Attempt) String() string {
	target := a.Version + "/" + a.ModelPath
	switch a.Kind {
	case KindHTTPStatus, KindUnauthorized:
		return fmt.Sprintf("%s: %s HTTP %d: %s", target, a.Kind, a.Status, a.Detail)
	default:
		return fmt.Sprintf("%s: %s: %s", target, a.Kind, a.Detail)
	}
}

// RecognitionError aggregates every failed combination of one recognition
type RecognitionError struct {
	Attempts []Attempt
	// Cause is set when the caller's context ended the chain early
	Cause error
}

func (e *RecognitionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.String())
	}
	msg := fmt.Sprintf("vision recognition failed after %d attempt(s)", len(e.Attempts))
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "; ")
	}
	return msg
}

// Unwrap exposes entity.ErrUnauthorized for credential rejections and the context cause
func (e *RecognitionError) Unwrap() []error {
	var errs []error
	if e.Unauthorized() {
		errs = append(errs, entity.ErrUnauthorized)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Unauthorized reports whether the endpoint rejected the credential
func (e *RecognitionError) Unauthorized() bool {
	for _, a := range e.Attempts {
		if a.Kind == KindUnauthorized {
			return true
		}
	}
	return false
}

// Trail returns one line per failed attempt
func (e *RecognitionError) Trail() []string {
	trail := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		trail = append(trail, a.String())
	}
	return trail
}
