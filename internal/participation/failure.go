package participation

import (
	"errors"

	"github.com/dukerupert/missionboard/internal/mission"
	"github.com/dukerupert/missionboard/internal/missionapi"
)

// FailureKind classifies why an operation did not change state.
type FailureKind int

const (
	// Precondition failures are decided locally, before any network call.
	Precondition FailureKind = iota + 1
	// Transport failures are network errors and non-2xx responses.
	Transport
	// Rejected means the ledger answered with a status other than the one expected.
	Rejected
	// Inconsistent means local state disagreed with the ledger and was corrected.
	Inconsistent
)

func (k FailureKind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case Transport:
		return "transport"
	case Rejected:
		return "rejected"
	case Inconsistent:
		return "inconsistent"
	}
	return "unknown"
}

// Failure is a user-facing operation error.
type Failure struct {
	Kind    FailureKind
	Title   string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Kind.String() + ": " + f.Message + ": " + f.Err.Error()
	}
	return f.Kind.String() + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

func precondition(title, message string) *Failure {
	return &Failure{Kind: Precondition, Title: title, Message: message}
}

const requestFailed = "The request failed. Please try again."

func transport(title string, err error) *Failure {
	msg := requestFailed
	var apiErr *missionapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &Failure{Kind: Transport, Title: title, Message: msg, Err: err}
}

// rejected reports an unexpected attempt status, preferring the ledger's hint.
func rejected(title string, a mission.Attempt, fallback string) *Failure {
	msg := a.Hint()
	if msg == "" {
		switch a.Status {
		case mission.StatusRetry:
			msg = "Please try again."
		case mission.StatusPending:
			msg = "The mission is not complete yet."
		default:
			msg = fallback
		}
	}
	return &Failure{Kind: Rejected, Title: title, Message: msg}
}
