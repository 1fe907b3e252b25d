package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/captep/studio/engine/core"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// Kind tells the caller what to do about a failed compile.
type Kind string

const (
	KindInvalid     Kind = "invalid"
	KindTransient   Kind = "transient"
	KindNeedsReauth Kind = "needs_reauth"
)

// Sentinels matched by errors.Is against a *CompileError of the same kind.
var (
	ErrInvalid        = errors.New("workflow cannot be compiled")
	ErrTransient      = errors.New("compile failed, retry later")
	ErrReauthRequired = errors.New("integrations need to be re-authorized")
)

type CompileError struct {
	Kind    Kind
	Message string
	// ConnectionIDs lists the connections to re-authorize for KindNeedsReauth.
	ConnectionIDs []core.ID
	Err           error
}

func NewCompileError(kind Kind, message string, err error) *CompileError {
	return &CompileError{Kind: kind, Message: message, Err: err}
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.ConnectionIDs) > 0 {
		ids := make([]string, len(e.ConnectionIDs))
		for i, id := range e.ConnectionIDs {
			ids[i] = id.String()
		}
		fmt.Fprintf(&b, " (connections: %s)", strings.Join(ids, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) Is(target error) bool {
	switch target {
	case ErrInvalid:
		return e.Kind == KindInvalid
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrReauthRequired:
		return e.Kind == KindNeedsReauth
	}
	return false
}

// KindOf classifies any error returned by the compile pipeline. Errors that
// carry no kind are treated as transient.
func KindOf(err error) Kind {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, ErrWorkflowNotFound) {
		return KindInvalid
	}
	return KindTransient
}
