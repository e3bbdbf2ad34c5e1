package apiserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bushta-cyber/fastmed/pkg/config"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

func newTestServer() *Server {
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
	return NewServer(cfg, NewMemoryStore(), logger.New("error"))
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func login(t *testing.T, handler http.Handler, email string) (string, *types.Identity) {
	t.Helper()

	recorder := doRequest(t, handler, http.MethodPost, "/api/auth/login/", "", types.Credentials{
		Email:    email,
		Password: "password",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		types.AuthToken
		User *types.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.User)
	return resp.AccessToken, resp.User
}

func TestLoginEndpoint(t *testing.T) {
	handler := newTestServer().Handler()

	token, user := login(t, handler, "jane.doe@example.com")
	assert.NotEmpty(t, token)
	assert.Equal(t, "Jane Doe", user.Name)
	assert.Equal(t, types.RolePatient, user.Role)

	recorder := doRequest(t, handler, http.MethodPost, "/api/auth/login/", "", types.Credentials{
		Email:    "jane.doe@example.com",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRegisterEndpoint(t *testing.T) {
	handler := newTestServer().Handler()

	payload := map[string]string{
		"full_name": "New Patient",
		"email":     "new.patient@example.com",
		"password":  "secret1",
		"role":      "patient",
	}
	recorder := doRequest(t, handler, http.MethodPost, "/api/auth/register/", "", payload)
	require.Equal(t, http.StatusCreated, recorder.Code)

	// Duplicate email answers 409.
	recorder = doRequest(t, handler, http.MethodPost, "/api/auth/register/", "", payload)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// Missing fields answer 400.
	recorder = doRequest(t, handler, http.MethodPost, "/api/auth/register/", "", map[string]string{"email": "x@y.co"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMeEndpoint(t *testing.T) {
	handler := newTestServer().Handler()
	token, _ := login(t, handler, "jane.doe@example.com")

	recorder := doRequest(t, handler, http.MethodGet, "/api/me/", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var identity types.Identity
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &identity))
	assert.Equal(t, "p1", identity.ID)

	recorder = doRequest(t, handler, http.MethodGet, "/api/me/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = doRequest(t, handler, http.MethodGet, "/api/me/", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAppointmentsScopedToViewer(t *testing.T) {
	handler := newTestServer().Handler()

	patientToken, _ := login(t, handler, "jane.doe@example.com")
	recorder := doRequest(t, handler, http.MethodGet, "/api/appointments/", patientToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var appointments []appointmentResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &appointments))
	require.Len(t, appointments, 2)
	for _, apt := range appointments {
		assert.Equal(t, "p1", apt.PatientID)
	}

	doctorToken, _ := login(t, handler, "dr.smith@example.com")
	recorder = doRequest(t, handler, http.MethodGet, "/api/appointments/", doctorToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &appointments))
	require.Len(t, appointments, 1)
	assert.Equal(t, "d1", appointments[0].DoctorID)
}

func TestCancelAppointment(t *testing.T) {
	handler := newTestServer().Handler()
	token, _ := login(t, handler, "jane.doe@example.com")

	recorder := doRequest(t, handler, http.MethodDelete, "/api/appointments/apt1/", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var apt appointmentResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &apt))
	assert.Equal(t, string(types.StatusCancelled), apt.Status)

	// Cancelling twice is an illegal transition, distinct from the 409
	// reserved for duplicate registration.
	recorder = doRequest(t, handler, http.MethodDelete, "/api/appointments/apt1/", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	// Other viewers cannot see, let alone cancel, someone else's booking.
	otherToken, _ := login(t, handler, "robert.j@example.com")
	recorder = doRequest(t, handler, http.MethodDelete, "/api/appointments/apt3/", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRescheduleAppointment(t *testing.T) {
	handler := newTestServer().Handler()
	token, _ := login(t, handler, "jane.doe@example.com")

	payload := map[string]string{"date": "2031-01-10", "start_time": "09:00", "end_time": "09:30"}
	recorder := doRequest(t, handler, http.MethodPatch, "/api/appointments/apt1/", token, payload)
	require.Equal(t, http.StatusOK, recorder.Code)

	var apt appointmentResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &apt))
	assert.Equal(t, "2031-01-10", apt.Date)
	assert.Equal(t, "09:00", apt.StartTime)

	// A completed appointment cannot be rescheduled.
	recorder = doRequest(t, handler, http.MethodPatch, "/api/appointments/apt3/", token, payload)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	// Start must precede end.
	bad := map[string]string{"date": "2031-01-10", "start_time": "10:00", "end_time": "09:00"}
	recorder = doRequest(t, handler, http.MethodPatch, "/api/appointments/apt1/", token, bad)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStatusTransitionEndpoint(t *testing.T) {
	handler := newTestServer().Handler()
	token, _ := login(t, handler, "jane.doe@example.com")

	recorder := doRequest(t, handler, http.MethodPatch, "/api/appointments/apt1/", token, map[string]string{"status": "in-progress"})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodPatch, "/api/appointments/apt1/", token, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, recorder.Code)

	// Completed is terminal.
	recorder = doRequest(t, handler, http.MethodPatch, "/api/appointments/apt1/", token, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
}

func TestMedicalRecordsEndpoint(t *testing.T) {
	handler := newTestServer().Handler()
	token, _ := login(t, handler, "jane.doe@example.com")

	recorder := doRequest(t, handler, http.MethodGet, "/api/medical-records/", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var records []recordResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Seasonal Allergy", records[0].Diagnosis)
	assert.Equal(t, []string{"Sneezing", "Runny nose", "Itchy eyes"}, records[0].Symptoms)
}

func TestMessagingEndpoints(t *testing.T) {
	handler := newTestServer().Handler()
	token, _ := login(t, handler, "jane.doe@example.com")

	recorder := doRequest(t, handler, http.MethodGet, "/api/conversations/", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var conversations []*types.Conversation
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &conversations))
	require.Len(t, conversations, 1)
	convID := conversations[0].ID

	recorder = doRequest(t, handler, http.MethodGet, "/api/conversations/"+convID+"/messages/", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var messages []*types.Message
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &messages))
	require.Len(t, messages, 3)

	recorder = doRequest(t, handler, http.MethodPost, "/api/messages/", token, map[string]string{
		"receiver_id": "d1",
		"content":     "Thank you, doctor.",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var sent types.Message
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &sent))
	assert.Equal(t, "p1", sent.SenderID)
	assert.NotEmpty(t, sent.ID)

	recorder = doRequest(t, handler, http.MethodGet, "/api/conversations/"+convID+"/messages/", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &messages))
	assert.Len(t, messages, 4)

	// A conversation the viewer does not take part in is invisible.
	otherToken, _ := login(t, handler, "robert.j@example.com")
	recorder = doRequest(t, handler, http.MethodGet, "/api/conversations/"+convID+"/messages/", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	// Sending to an unknown receiver fails.
	recorder = doRequest(t, handler, http.MethodPost, "/api/messages/", token, map[string]string{
		"receiver_id": "ghost",
		"content":     "anyone there?",
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestUserEndpoint(t *testing.T) {
	handler := newTestServer().Handler()
	token, _ := login(t, handler, "jane.doe@example.com")

	recorder := doRequest(t, handler, http.MethodGet, "/api/users/d1/", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var user types.Identity
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &user))
	assert.Equal(t, "Dr. John Smith", user.Name)

	recorder = doRequest(t, handler, http.MethodGet, "/api/users/ghost/", token, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer().Handler()

	recorder := doRequest(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
