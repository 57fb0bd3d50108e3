package domain

import "errors"

// Failure classes shared by the portal client and the notifier. They are
// wrapped with context, so match them with errors.Is.
var (
	ErrNetwork         = errors.New("network error")
	ErrExtraction      = errors.New("extraction error")
	ErrParse           = errors.New("parse error")
	ErrAuth            = errors.New("auth error")
	ErrRemoteRejection = errors.New("remote rejection")
)

// RejectionError is a non-success answer from a remote endpoint. Text is the
// diagnostic the remote returned, already trimmed for logging.
type RejectionError struct {
	Text string
}

func (e *RejectionError) Error() string { return e.Text }

func (e *RejectionError) Unwrap() error { return ErrRemoteRejection }
