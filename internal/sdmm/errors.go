package sdmm

import (
	"errors"
	"fmt"
)

// Error kinds for provisioning and status computation. Callers match these
// with errors.Is; the message carried alongside is what gets shown to the
// learner.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnknownPerson      = errors.New("unknown person")
	ErrNotProvisionable   = errors.New("not provisionable")
	ErrAlreadyProvisioned = errors.New("already provisioned")
	ErrAlreadyAssigned    = errors.New("already assigned")
	ErrInsufficientGrade  = errors.New("insufficient grade")
	ErrProvisioningFailed = errors.New("provisioning failed")
)

type userError struct {
	kind error
	msg  string
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Unwrap() error { return e.kind }

func failf(kind error, format string, args ...interface{}) error {
	return &userError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// UserMessage extracts the learner-safe message from an error. Internal
// failures (store, network) fall back to a generic message so that stack
// traces and storage details never reach the UI.
func UserMessage(err error) string {
	var ue *userError
	if errors.As(err, &ue) {
		return ue.msg
	}
	return "Something went wrong; contact course staff."
}
