package interfaces

import (
	"context"

	"github.com/bushta-cyber/fastmed/pkg/types"
)

// SessionState represents the session store's lifecycle state
type SessionState string

const (
	// StateAuthenticating is the initial state while a persisted session
	// is being restored
	StateAuthenticating  SessionState = "authenticating"
	StateAuthenticated   SessionState = "authenticated"
	StateUnauthenticated SessionState = "unauthenticated"
)

// SessionStore owns the current identity and tokens. All token mutation in
// the portal is serialized through this interface; no other component
// writes session state.
type SessionStore interface {
	Login(ctx context.Context, email, password string) (*types.Session, error)
	Register(ctx context.Context, req *types.RegistrationRequest) (*types.Session, error)
	Restore(ctx context.Context) (*types.Session, error)
	Logout()

	Current() (*types.Session, bool)
	IsAuthenticated() bool
	State() SessionState
	AccessToken() string

	// HandleAuthFailure clears the session when the data source reports a
	// 401-equivalent failure
	HandleAuthFailure(err error)
}

// Storage slot names for persisted session state
const (
	SlotAccess  = "access"
	SlotRefresh = "refresh"
	SlotUser    = "user"
)

// TokenStorage is the durable local storage behind the session store.
// Writes must be atomic: a crash mid-write never leaves a partially
// written slot behind.
type TokenStorage interface {
	Read(slot string) (string, error)
	Write(slot, value string) error
	Delete(slot string) error
	Clear() error
}
