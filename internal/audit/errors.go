package audit

import "fmt"

// Kind classifies audit log failures so callers can branch on the class of
// problem without string matching.
type Kind string

const (
	// KindIO covers filesystem failures: missing paths, permissions, full
	// disks. Never recovered silently.
	KindIO Kind = "io"
	// KindParse covers a single malformed log line.
	KindParse Kind = "parse"
	// KindSchemaVersion covers a well-formed line whose schema version is
	// not understood.
	KindSchemaVersion Kind = "schema_version"
	// KindDiscovery covers a worktree whose log path cannot be resolved.
	KindDiscovery Kind = "discovery"
	// KindReconcileInput covers a file-state derivation failure.
	KindReconcileInput Kind = "reconcile_input"
)

// Error is a classified audit log error. Two Errors match under errors.Is
// when their kinds are equal, so sentinel values below work across wrapping.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrIO             = &Error{Kind: KindIO}
	ErrParse          = &Error{Kind: KindParse}
	ErrSchemaVersion  = &Error{Kind: KindSchemaVersion}
	ErrDiscovery      = &Error{Kind: KindDiscovery}
	ErrReconcileInput = &Error{Kind: KindReconcileInput}
)

func ioErr(msg string, err error) *Error {
	return &Error{Kind: KindIO, Msg: msg, Err: err}
}

func discoveryErr(msg string, err error) *Error {
	return &Error{Kind: KindDiscovery, Msg: msg, Err: err}
}

func reconcileInputErr(msg string, err error) *Error {
	return &Error{Kind: KindReconcileInput, Msg: msg, Err: err}
}
