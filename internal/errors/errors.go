// Package errors defines domain-level errors used throughout the application.
// These errors represent terminal failure conditions from the review server
// API and the local SCM tools; callers match on them with errors.Is.
package errors

import (
	"errors"
)

var (
	// ErrRegistry indicates a transport or API failure while talking to the
	// review server's repository registry. It wraps the underlying HTTP or
	// API-envelope error and is never retried locally.
	ErrRegistry = errors.New("registry communication failed")

	// ErrMalformedRecord indicates a repository record that is missing an
	// expected field or link (e.g. no info link when resolving a UUID).
	// Callers scanning multiple records skip these rather than aborting.
	ErrMalformedRecord = errors.New("malformed repository record")

	// ErrInvalidRevisionSpec indicates that a user-supplied revision
	// argument could not be interpreted by the SCM tool in use.
	ErrInvalidRevisionSpec = errors.New("invalid revision spec")

	// ErrTooManyRevisions indicates that more revisions were supplied than
	// the SCM client can use to build a base..tip range.
	ErrTooManyRevisions = errors.New("too many revisions specified")

	// ErrToolMissing indicates that the SCM command line tool required for
	// the current checkout could not be found on PATH.
	ErrToolMissing = errors.New("command line tool not found")

	// ErrNotACheckout indicates that the working directory is not a
	// recognized checkout of any supported SCM tool.
	ErrNotACheckout = errors.New("not a working copy of a supported SCM tool")

	// ErrScheduledWithHistory indicates that the working copy contains files
	// scheduled for commit with copy/move history, which cannot be
	// represented in a plain diff. The user must commit or exclude them.
	ErrScheduledWithHistory = errors.New("changes scheduled with commit history")
)
