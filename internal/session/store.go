package session

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bushta-cyber/fastmed/pkg/interfaces"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// MinPasswordLength is the minimum accepted password length for registration
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// Store owns the current identity and tokens. Every state transition
// happens under one mutex, so observers never see an identity without the
// authenticated flag or vice versa. All token mutation in the portal is
// serialized through this type.
type Store struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	source  interfaces.DataSource
	storage interfaces.TokenStorage

	state   interfaces.SessionState
	session *types.Session
}

// NewStore creates a session store in the authenticating state; callers
// run Restore once at startup to resolve it.
func NewStore(source interfaces.DataSource, storage interfaces.TokenStorage, log *logger.Logger) *Store {
	return &Store{
		logger:  log,
		source:  source,
		storage: storage,
		state:   interfaces.StateAuthenticating,
	}
}

// Login authenticates against the data source and persists the session.
// A rejected credential pair or transport failure leaves the store's state
// untouched.
func (s *Store) Login(ctx context.Context, email, password string) (*types.Session, error) {
	token, identity, err := s.source.Login(ctx, email, password)
	if err != nil {
		s.logger.Auth("login", email, false)
		return nil, err
	}

	if identity == nil {
		identity, err = s.source.GetCurrentUser(ctx, token.AccessToken)
		if err != nil {
			s.logger.Auth("login", email, false)
			return nil, err
		}
	}

	sess := &types.Session{
		Identity:     identity,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    tokenExpiry(token.AccessToken),
	}

	if err := s.persist(sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = sess
	s.state = interfaces.StateAuthenticated
	s.mu.Unlock()

	s.logger.Auth("login", email, true)
	return sess, nil
}

// Register validates the request locally, then registers against the data
// source and persists the resulting session. Validation runs before any
// network call.
func (s *Store) Register(ctx context.Context, req *types.RegistrationRequest) (*types.Session, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	token, identity, err := s.source.Register(ctx, req)
	if err != nil {
		s.logger.Auth("register", req.Email, false)
		return nil, err
	}

	if identity == nil {
		identity, err = s.source.GetCurrentUser(ctx, token.AccessToken)
		if err != nil {
			s.logger.Auth("register", req.Email, false)
			return nil, err
		}
	}

	sess := &types.Session{
		Identity:     identity,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    tokenExpiry(token.AccessToken),
	}

	if err := s.persist(sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = sess
	s.state = interfaces.StateAuthenticated
	s.mu.Unlock()

	s.logger.Auth("register", req.Email, true)
	return sess, nil
}

// Restore reads the persisted session once at process start. A malformed
// or absent persisted value yields no session and clears every slot, so no
// partially written state survives.
func (s *Store) Restore(ctx context.Context) (*types.Session, error) {
	access, errA := s.storage.Read(interfaces.SlotAccess)
	refresh, errR := s.storage.Read(interfaces.SlotRefresh)
	userBlob, errU := s.storage.Read(interfaces.SlotUser)

	if errA != nil || errR != nil || errU != nil {
		s.clearAll()
		return nil, nil
	}

	if access == "" || userBlob == "" {
		s.clearAll()
		return nil, nil
	}

	var identity types.Identity
	if err := json.Unmarshal([]byte(userBlob), &identity); err != nil || identity.ID == "" || !identity.Role.Valid() {
		s.logger.Warn("Discarding corrupt persisted session")
		s.clearAll()
		return nil, nil
	}

	sess := &types.Session{
		Identity:     &identity,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    tokenExpiry(access),
	}

	if sess.Expired(time.Now()) {
		s.logger.WithUserID(identity.ID).Info("Persisted session expired")
		s.clearAll()
		return nil, nil
	}

	s.mu.Lock()
	s.session = sess
	s.state = interfaces.StateAuthenticated
	s.mu.Unlock()

	s.logger.WithUserID(identity.ID).Info("Session restored")
	return sess, nil
}

// Logout clears the persisted session synchronously. Idempotent: logging
// out with no active session is a no-op, not an error.
func (s *Store) Logout() {
	s.mu.Lock()
	hadSession := s.session != nil
	s.session = nil
	s.state = interfaces.StateUnauthenticated
	s.mu.Unlock()

	if err := s.storage.Clear(); err != nil {
		s.logger.WithError(err).Error("Failed to clear persisted session")
	}

	if hadSession {
		s.logger.Info("Logged out")
	}
}

// HandleAuthFailure clears the session when the data source reports a
// 401-equivalent failure. Any other error leaves the session alone.
func (s *Store) HandleAuthFailure(err error) {
	if !types.IsAuthFailure(err) {
		return
	}
	s.logger.Warn("Credential expiry reported by data source, clearing session")
	s.Logout()
}

// Current returns the active session, if any
func (s *Store) Current() (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.session != nil
}

// IsAuthenticated reports whether a session is active
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == interfaces.StateAuthenticated && s.session != nil
}

// State returns the store's lifecycle state
func (s *Store) State() interfaces.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// AccessToken returns the current access token, or the empty string when
// unauthenticated. Bound to the data source's bearer token provider.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// persist writes all three slots; a failed write aborts the login so the
// store is never authenticated against half-written storage.
func (s *Store) persist(sess *types.Session) error {
	blob, err := json.Marshal(sess.Identity)
	if err != nil {
		return err
	}

	if err := s.storage.Write(interfaces.SlotAccess, sess.AccessToken); err != nil {
		return err
	}
	if err := s.storage.Write(interfaces.SlotRefresh, sess.RefreshToken); err != nil {
		return err
	}
	if err := s.storage.Write(interfaces.SlotUser, string(blob)); err != nil {
		return err
	}
	return nil
}

func (s *Store) clearAll() {
	if err := s.storage.Clear(); err != nil {
		s.logger.WithError(err).Error("Failed to clear persisted session")
	}
	s.mu.Lock()
	s.session = nil
	s.state = interfaces.StateUnauthenticated
	s.mu.Unlock()
}

// validateRegistration checks required fields, the email pattern, password
// length and confirmation match, reporting every failing field at once.
func validateRegistration(req *types.RegistrationRequest) error {
	fields := map[string]interface{}{}

	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "Name is required"
	}

	if req.Email == "" {
		fields["email"] = "Email is required"
	} else if !emailPattern.MatchString(req.Email) {
		fields["email"] = "Email is invalid"
	}

	if req.Password == "" {
		fields["password"] = "Password is required"
	} else if len(req.Password) < MinPasswordLength {
		fields["password"] = "Password is too short"
	}

	if req.ConfirmPassword == "" {
		fields["confirm_password"] = "Password confirmation is required"
	} else if req.Password != req.ConfirmPassword {
		fields["confirm_password"] = "Passwords do not match"
	}

	if !req.Role.Valid() {
		fields["role"] = "Role must be patient or doctor"
	}

	if len(fields) > 0 {
		return types.NewValidationError("Registration request is invalid", fields)
	}
	return nil
}

// tokenExpiry extracts the deadline from the access token's exp claim.
// The parse is unverified: signature checks are the server's job, the
// client only needs the deadline. Tokens without an exp claim yield the
// zero time, meaning no client-side expiry.
func tokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
