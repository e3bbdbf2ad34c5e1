package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bushta-cyber/fastmed/pkg/config"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

type contextKey string

const identityKey contextKey = "identity"

const wireDateLayout = "2006-01-02"

// Server is the bundled portal API. It speaks the same wire protocol the
// HTTP data source consumes, so the portal can run self-contained.
type Server struct {
	config *config.Config
	logger *logger.Logger
	store  Store
	http   *http.Server
}

// NewServer creates the portal API server over a store
func NewServer(cfg *config.Config, store Store, log *logger.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: log,
		store:  store,
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
	return s
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	if s.config.Monitoring.Enabled {
		router.Use(metricsMiddleware)
		router.Handle(s.config.Monitoring.MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc(s.config.Monitoring.HealthPath, s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/api/auth/login/", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register/", s.handleRegister).Methods(http.MethodPost)

	authed := router.PathPrefix("/api").Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/me/", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/appointments/", s.handleListAppointments).Methods(http.MethodGet)
	authed.HandleFunc("/appointments/{id}/", s.handleCancelAppointment).Methods(http.MethodDelete)
	authed.HandleFunc("/appointments/{id}/", s.handlePatchAppointment).Methods(http.MethodPatch)
	authed.HandleFunc("/medical-records/", s.handleListRecords).Methods(http.MethodGet)
	authed.HandleFunc("/conversations/", s.handleListConversations).Methods(http.MethodGet)
	authed.HandleFunc("/conversations/{id}/messages/", s.handleListMessages).Methods(http.MethodGet)
	authed.HandleFunc("/messages/", s.handleSendMessage).Methods(http.MethodPost)
	authed.HandleFunc("/users/{id}/", s.handleGetUser).Methods(http.MethodGet)

	return router
}

// Start runs the server until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.WithComponent("apiserver").Infof("Portal API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.HTTPRequest(r.Method, r.URL.Path, recorder.status, time.Since(start).Milliseconds())
	})
}

// authMiddleware verifies the bearer token and resolves its subject
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeError(w, types.NewUnauthorizedError("Missing bearer token"))
			return
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.config.JWT.SecretKey), nil
		})
		if err != nil || !token.Valid {
			s.writeError(w, types.NewUnauthorizedError("Invalid access token"))
			return
		}

		user, err := s.store.GetUser(r.Context(), claims.Subject)
		if err != nil {
			s.writeError(w, types.NewUnauthorizedError("Unknown token subject"))
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) viewer(r *http.Request) *types.Identity {
	user, _ := r.Context().Value(identityKey).(*types.Identity)
	return user
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "portal-api"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		s.writeError(w, types.NewValidationError("Invalid request body", nil))
		return
	}

	user, err := s.store.Authenticate(r.Context(), creds.Email, creds.Password)
	if err != nil {
		recordAuthAttempt("login", false)
		s.logger.Auth("login", creds.Email, false)
		s.writeError(w, err)
		return
	}

	token, err := s.issueTokens(user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	recordAuthAttempt("login", true)
	s.logger.Auth("login", creds.Email, true)
	s.writeJSON(w, http.StatusOK, loginResponse{AuthToken: *token, User: user})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string     `json:"full_name"`
		Email    string     `json:"email"`
		Password string     `json:"password"`
		Role     types.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError("Invalid request body", nil))
		return
	}

	if strings.TrimSpace(req.FullName) == "" || req.Email == "" || req.Password == "" || !req.Role.Valid() {
		s.writeError(w, types.NewValidationError("Registration request is invalid", nil))
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.FullName, req.Email, req.Password, req.Role)
	if err != nil {
		recordAuthAttempt("register", false)
		s.logger.Auth("register", req.Email, false)
		s.writeError(w, err)
		return
	}

	token, err := s.issueTokens(user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	recordAuthAttempt("register", true)
	s.logger.Auth("register", req.Email, true)
	s.writeJSON(w, http.StatusCreated, loginResponse{AuthToken: *token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.viewer(r))
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := s.store.ListAppointments(r.Context(), s.viewer(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]appointmentResponse, 0, len(appointments))
	for _, apt := range appointments {
		out = append(out, toAppointmentResponse(apt))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	s.transitionAppointment(w, r, func(apt *types.Appointment) error {
		if !apt.Status.CanTransitionTo(types.StatusCancelled) {
			return illegalTransition(apt.Status, types.StatusCancelled)
		}
		apt.Status = types.StatusCancelled
		return nil
	})
}

func (s *Server) handlePatchAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status    types.AppointmentStatus `json:"status"`
		Date      string                  `json:"date"`
		StartTime string                  `json:"start_time"`
		EndTime   string                  `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError("Invalid request body", nil))
		return
	}

	s.transitionAppointment(w, r, func(apt *types.Appointment) error {
		if req.Status != "" {
			if !apt.Status.CanTransitionTo(req.Status) {
				return illegalTransition(apt.Status, req.Status)
			}
			apt.Status = req.Status
			return nil
		}

		if apt.Status != types.StatusScheduled {
			return illegalTransition(apt.Status, apt.Status)
		}
		date, err := time.ParseInLocation(wireDateLayout, req.Date, time.Local)
		if err != nil {
			return types.NewValidationError("Invalid reschedule date", map[string]interface{}{"date": req.Date})
		}
		if req.StartTime == "" || req.EndTime == "" || req.StartTime >= req.EndTime {
			return types.NewValidationError("Start time must be before end time", nil)
		}
		apt.Date = date
		apt.StartTime = req.StartTime
		apt.EndTime = req.EndTime
		return nil
	})
}

// transitionAppointment loads, mutates and stores an appointment the
// viewer owns
func (s *Server) transitionAppointment(w http.ResponseWriter, r *http.Request, mutate func(*types.Appointment) error) {
	id := mux.Vars(r)["id"]

	apt, err := s.store.GetAppointment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !apt.OwnedBy(s.viewer(r)) {
		s.writeError(w, types.NewNotFoundError("appointment", id))
		return
	}

	if err := mutate(apt); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.UpdateAppointment(r.Context(), apt); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAppointmentResponse(apt))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecords(r.Context(), s.viewer(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations(r.Context(), s.viewer(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conversations, err := s.store.ListConversations(r.Context(), s.viewer(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	participant := false
	for _, conv := range conversations {
		if conv.ID == id {
			participant = true
			break
		}
	}
	if !participant {
		s.writeError(w, types.NewNotFoundError("conversation", id))
		return
	}

	messages, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverID string `json:"receiver_id"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError("Invalid request body", nil))
		return
	}
	if req.ReceiverID == "" || strings.TrimSpace(req.Content) == "" {
		s.writeError(w, types.NewValidationError("Receiver and content are required", nil))
		return
	}
	if _, err := s.store.GetUser(r.Context(), req.ReceiverID); err != nil {
		s.writeError(w, err)
		return
	}

	msg := &types.Message{
		ID:         uuid.New().String(),
		SenderID:   s.viewer(r).ID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Timestamp:  time.Now(),
	}
	if err := s.store.InsertMessage(r.Context(), msg); err != nil {
		s.writeError(w, err)
		return
	}

	messagesSentTotal.Inc()
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) issueTokens(userID string) (*types.AuthToken, error) {
	accessTTL := time.Duration(s.config.JWT.AccessTokenTTL) * time.Second
	refreshTTL := time.Duration(s.config.JWT.RefreshTokenTTL) * time.Second

	access, err := s.signToken(userID, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(userID, refreshTTL)
	if err != nil {
		return nil, err
	}

	return &types.AuthToken{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTTL.Seconds()),
	}, nil
}

func (s *Server) signToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.config.JWT.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(s.config.JWT.SecretKey))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps the portal error taxonomy to HTTP statuses. Illegal
// appointment transitions answer 422, keeping 409 reserved for duplicate
// registration, which is how clients tell the two apart.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var portalErr *types.PortalError
	if errors.As(err, &portalErr) {
		switch portalErr.Type {
		case types.ErrorTypeValidation:
			status = http.StatusBadRequest
		case types.ErrorTypeAuthentication:
			status = http.StatusUnauthorized
		case types.ErrorTypeNotFound:
			status = http.StatusNotFound
		case types.ErrorTypeConflict:
			if portalErr.Code == types.ErrCodeEmailExists {
				status = http.StatusConflict
			} else {
				status = http.StatusUnprocessableEntity
			}
		}
		s.writeJSON(w, status, map[string]interface{}{
			"error": portalErr.Message,
			"code":  portalErr.Code,
		})
		return
	}

	s.logger.WithError(err).Error("Request failed")
	s.writeJSON(w, status, map[string]interface{}{
		"error": "Internal server error",
		"code":  "INTERNAL_ERROR",
	})
}

func illegalTransition(from, to types.AppointmentStatus) error {
	return &types.PortalError{
		Type:    types.ErrorTypeConflict,
		Code:    types.ErrCodeIllegalTransition,
		Message: "Illegal appointment status transition",
		Details: map[string]interface{}{"from": from, "to": to},
	}
}

type loginResponse struct {
	types.AuthToken
	User *types.Identity `json:"user"`
}

// appointmentResponse is the wire shape consumed by portal clients: the
// date travels as a calendar-day string, not a timestamp
type appointmentResponse struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes,omitempty"`
}

func toAppointmentResponse(apt *types.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:        apt.ID,
		PatientID: apt.PatientID,
		DoctorID:  apt.DoctorID,
		Date:      apt.Date.Format(wireDateLayout),
		StartTime: apt.StartTime,
		EndTime:   apt.EndTime,
		Status:    string(apt.Status),
		Type:      string(apt.Type),
		Reason:    apt.Reason,
		Notes:     apt.Notes,
	}
}

type recordResponse struct {
	ID            string               `json:"id"`
	PatientID     string               `json:"patient_id"`
	DoctorID      string               `json:"doctor_id"`
	Date          string               `json:"date"`
	Diagnosis     string               `json:"diagnosis"`
	Symptoms      []string             `json:"symptoms"`
	Notes         string               `json:"notes"`
	Prescriptions []types.Prescription `json:"prescriptions,omitempty"`
}

func toRecordResponse(record *types.MedicalRecord) recordResponse {
	return recordResponse{
		ID:            record.ID,
		PatientID:     record.PatientID,
		DoctorID:      record.DoctorID,
		Date:          record.Date.Format(wireDateLayout),
		Diagnosis:     record.Diagnosis,
		Symptoms:      record.Symptoms,
		Notes:         record.Notes,
		Prescriptions: record.Prescriptions,
	}
}
