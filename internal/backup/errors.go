package backup

import (
	"errors"
	"fmt"

	"github.com/mineops/walletback/internal/ssh"
)

// Kind classifies where in the pack/connect/upload sequence a failure happened.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindPackaging
	KindConnection
	KindAuth
	KindTransfer
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindPackaging:
		return "packaging"
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindTransfer:
		return "transfer"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// TaskError is the failure of a single host task. It never crosses the
// orchestrator boundary as a returned error; it travels inside a HostResult.
type TaskError struct {
	Kind Kind
	Host string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Host, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) Kind {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Kind
	}
	return KindUnknown
}

// classifyConnectError maps connection-phase errors onto the taxonomy:
// a missing credential is a configuration mistake, a rejected credential
// is an auth failure, anything else is the network's fault.
func classifyConnectError(err error) Kind {
	switch {
	case errors.Is(err, ssh.ErrMissingCredential), errors.Is(err, ssh.ErrAmbiguousCredential):
		return KindConfig
	case errors.Is(err, ssh.ErrAuth):
		return KindAuth
	default:
		return KindConnection
	}
}
