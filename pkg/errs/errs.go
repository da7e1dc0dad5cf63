// Package errs defines the error taxonomy shared across the engine.
// Low-level failures are wrapped with the failing path or hash and matched
// with errors.Is against these sentinels.
package errs

import "errors"

var (
	// ErrNotFound marks a missing ref, commit, tree, blob, or file.
	ErrNotFound = errors.New("no such file or directory")

	// ErrPermissionDenied marks a capability that is not granted or was
	// revoked externally.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRemoteConflict marks a rejected non-fast-forward ref update.
	ErrRemoteConflict = errors.New("remote ref has diverged")

	// ErrMisconfigured marks a missing credential or malformed repository URL.
	ErrMisconfigured = errors.New("misconfigured")

	// ErrTransient marks a network or storage failure worth retrying.
	ErrTransient = errors.New("transient failure")
)
