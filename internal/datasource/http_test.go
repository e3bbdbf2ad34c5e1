package datasource

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bushta-cyber/fastmed/internal/apiserver"
	"github.com/bushta-cyber/fastmed/pkg/config"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// newBackend spins up the bundled portal API over the seeded in-memory
// store and returns an HTTP source pointed at it
func newBackend(t *testing.T) (*HTTPSource, func(token string)) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		JWT: config.JWTConfig{
			SecretKey:       "test-secret",
			AccessTokenTTL:  3600,
			RefreshTokenTTL: 86400,
			Issuer:          "test",
		},
		Monitoring: config.MonitoringConfig{HealthPath: "/health"},
		LogLevel:   "error",
	}

	log := logger.New("error")
	backend := httptest.NewServer(apiserver.NewServer(cfg, apiserver.NewMemoryStore(), log).Handler())
	t.Cleanup(backend.Close)

	token := ""
	source := NewHTTPSource(&config.APIConfig{BaseURL: backend.URL, TimeoutSeconds: 5}, func() string {
		return token
	}, log)
	return source, func(value string) { token = value }
}

func TestHTTPSourceLogin(t *testing.T) {
	source, _ := newBackend(t)

	token, identity, err := source.Login(context.Background(), "jane.doe@example.com", "password")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "Jane Doe", identity.Name)
	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)

	_, _, err = source.Login(context.Background(), "jane.doe@example.com", "wrong")
	require.Error(t, err)

	var portalErr *types.PortalError
	require.ErrorAs(t, err, &portalErr)
	assert.Equal(t, types.ErrCodeInvalidCredentials, portalErr.Code)
}

func TestHTTPSourceRegisterConflict(t *testing.T) {
	source, _ := newBackend(t)

	_, _, err := source.Register(context.Background(), &types.RegistrationRequest{
		Name:     "Duplicate Jane",
		Email:    "jane.doe@example.com",
		Role:     types.RolePatient,
		Password: "secret1",
	})
	require.Error(t, err)

	var portalErr *types.PortalError
	require.ErrorAs(t, err, &portalErr)
	assert.Equal(t, types.ErrCodeEmailExists, portalErr.Code)
}

func TestHTTPSourceAppointmentsRoundTrip(t *testing.T) {
	source, setToken := newBackend(t)

	token, _, err := source.Login(context.Background(), "jane.doe@example.com", "password")
	require.NoError(t, err)
	setToken(token.AccessToken)

	appointments, err := source.GetAppointments(context.Background())
	require.NoError(t, err)
	require.Len(t, appointments, 2)

	// The wire date string normalized into a local calendar day.
	for _, apt := range appointments {
		assert.Equal(t, 0, apt.Date.Hour())
		assert.NotEmpty(t, apt.StartTime)
	}

	require.NoError(t, source.CancelAppointment(context.Background(), "apt1"))

	appointments, err = source.GetAppointments(context.Background())
	require.NoError(t, err)
	for _, apt := range appointments {
		if apt.ID == "apt1" {
			assert.Equal(t, types.StatusCancelled, apt.Status)
		}
	}
}

func TestHTTPSourceUnauthorizedMapsToAuthFailure(t *testing.T) {
	source, setToken := newBackend(t)
	setToken("expired-or-garbage")

	_, err := source.GetAppointments(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsAuthFailure(err))
}

func TestHTTPSourceTransportFailure(t *testing.T) {
	log := logger.New("error")
	source := NewHTTPSource(&config.APIConfig{BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1}, func() string { return "" }, log)

	_, err := source.GetAppointments(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsType(err, types.ErrorTypeNetwork))
}

func TestHTTPSourceMessaging(t *testing.T) {
	source, setToken := newBackend(t)

	token, _, err := source.Login(context.Background(), "jane.doe@example.com", "password")
	require.NoError(t, err)
	setToken(token.AccessToken)

	conversations, err := source.GetConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)

	messages, err := source.GetMessages(context.Background(), conversations[0].ID)
	require.NoError(t, err)
	assert.Len(t, messages, 3)

	sent, err := source.SendMessage(context.Background(), "d1", "hello over the wire")
	require.NoError(t, err)
	assert.Equal(t, "p1", sent.SenderID)

	messages, err = source.GetMessages(context.Background(), conversations[0].ID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}
