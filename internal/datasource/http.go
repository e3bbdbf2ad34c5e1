package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bushta-cyber/fastmed/pkg/config"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// TokenProvider supplies the bearer token for authenticated requests;
// bound to the session store so token reads stay serialized there.
type TokenProvider func() string

// HTTPSource is the REST adapter over the portal backend. It normalizes
// wire payloads to the canonical schema and maps transport and auth
// failures to the portal error taxonomy.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	token   TokenProvider
	logger  *logger.Logger
}

// NewHTTPSource creates a REST data source
func NewHTTPSource(cfg *config.APIConfig, token TokenProvider, log *logger.Logger) *HTTPSource {
	return &HTTPSource{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		token:  token,
		logger: log,
	}
}

// Login authenticates an email/password pair
func (h *HTTPSource) Login(ctx context.Context, email, password string) (*types.AuthToken, *types.Identity, error) {
	var resp struct {
		types.AuthToken
		User *types.Identity `json:"user"`
	}

	err := h.do(ctx, http.MethodPost, "/api/auth/login/", types.Credentials{Email: email, Password: password}, &resp, false)
	if err != nil {
		if types.IsType(err, types.ErrorTypeAuthentication) {
			return nil, nil, types.NewInvalidCredentialsError()
		}
		return nil, nil, err
	}

	return &resp.AuthToken, resp.User, nil
}

// Register creates a new account
func (h *HTTPSource) Register(ctx context.Context, req *types.RegistrationRequest) (*types.AuthToken, *types.Identity, error) {
	payload := map[string]string{
		"full_name": req.Name,
		"email":     req.Email,
		"password":  req.Password,
		"role":      string(req.Role),
	}

	var resp struct {
		types.AuthToken
		User *types.Identity `json:"user"`
	}

	if err := h.do(ctx, http.MethodPost, "/api/auth/register/", payload, &resp, false); err != nil {
		return nil, nil, err
	}

	return &resp.AuthToken, resp.User, nil
}

// GetCurrentUser fetches the identity behind an access token
func (h *HTTPSource) GetCurrentUser(ctx context.Context, accessToken string) (*types.Identity, error) {
	var identity types.Identity
	if err := h.doWithToken(ctx, http.MethodGet, "/api/me/", nil, &identity, accessToken); err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetAppointments fetches the appointment snapshot for the logged-in user.
// Payloads that fail normalization are logged and excluded rather than
// failing the whole snapshot.
func (h *HTTPSource) GetAppointments(ctx context.Context) ([]*types.Appointment, error) {
	var wires []appointmentWire
	if err := h.do(ctx, http.MethodGet, "/api/appointments/", nil, &wires, true); err != nil {
		return nil, err
	}

	appointments := make([]*types.Appointment, 0, len(wires))
	for i := range wires {
		apt, err := wires[i].normalize()
		if err != nil {
			h.logger.WithError(err).Warn("Excluding malformed appointment payload")
			continue
		}
		appointments = append(appointments, apt)
	}
	return appointments, nil
}

// CancelAppointment requests cancellation of an appointment
func (h *HTTPSource) CancelAppointment(ctx context.Context, appointmentID string) error {
	return h.do(ctx, http.MethodDelete, "/api/appointments/"+appointmentID+"/", nil, nil, true)
}

// RescheduleAppointment requests new date and times for an appointment
func (h *HTTPSource) RescheduleAppointment(ctx context.Context, appointmentID, date, startTime, endTime string) error {
	payload := map[string]string{
		"date":       date,
		"start_time": startTime,
		"end_time":   endTime,
	}
	return h.do(ctx, http.MethodPatch, "/api/appointments/"+appointmentID+"/", payload, nil, true)
}

// UpdateAppointmentStatus requests a status transition
func (h *HTTPSource) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status types.AppointmentStatus) error {
	payload := map[string]string{"status": string(status)}
	return h.do(ctx, http.MethodPatch, "/api/appointments/"+appointmentID+"/", payload, nil, true)
}

// GetRecords fetches the medical record snapshot for the logged-in user
func (h *HTTPSource) GetRecords(ctx context.Context) ([]*types.MedicalRecord, error) {
	var wires []recordWire
	if err := h.do(ctx, http.MethodGet, "/api/medical-records/", nil, &wires, true); err != nil {
		return nil, err
	}

	records := make([]*types.MedicalRecord, 0, len(wires))
	for i := range wires {
		record, err := wires[i].normalize()
		if err != nil {
			h.logger.WithError(err).Warn("Excluding malformed record payload")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// GetConversations fetches the conversation snapshot
func (h *HTTPSource) GetConversations(ctx context.Context) ([]*types.Conversation, error) {
	var conversations []*types.Conversation
	if err := h.do(ctx, http.MethodGet, "/api/conversations/", nil, &conversations, true); err != nil {
		return nil, err
	}
	return conversations, nil
}

// GetMessages fetches the message snapshot for a conversation
func (h *HTTPSource) GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	var messages []*types.Message
	if err := h.do(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages/", nil, &messages, true); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage forwards a send intent. The authoritative source assigns the
// id, timestamp and read flag; the returned message becomes visible to
// threads only through the next snapshot.
func (h *HTTPSource) SendMessage(ctx context.Context, receiverID, content string) (*types.Message, error) {
	payload := map[string]string{
		"receiver_id": receiverID,
		"content":     content,
	}
	var message types.Message
	if err := h.do(ctx, http.MethodPost, "/api/messages/", payload, &message, true); err != nil {
		return nil, err
	}
	return &message, nil
}

// GetUser fetches a single user for directory display
func (h *HTTPSource) GetUser(ctx context.Context, userID string) (*types.Identity, error) {
	var identity types.Identity
	if err := h.do(ctx, http.MethodGet, "/api/users/"+userID+"/", nil, &identity, true); err != nil {
		return nil, err
	}
	return &identity, nil
}

// do performs a request against the backend. Transport failures map to
// NETWORK_ERROR; 401 maps to the error that clears the session; 409 on
// registration maps to EMAIL_EXISTS.
func (h *HTTPSource) do(ctx context.Context, method, path string, body, out interface{}, authenticated bool) error {
	token := ""
	if authenticated {
		token = h.token()
	}
	return h.doWithToken(ctx, method, path, body, out, token)
}

func (h *HTTPSource) doWithToken(ctx context.Context, method, path string, body, out interface{}, token string) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return types.NewNetworkError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewUnauthorizedError("Access token rejected by the data source")
	case resp.StatusCode == http.StatusConflict:
		return types.NewEmailExistsError("")
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(resp.Body)
		return types.NewNetworkError(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload)))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewNetworkError(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
