package portal

import (
	"context"
	"sync"

	"github.com/bushta-cyber/fastmed/internal/appointments"
	"github.com/bushta-cyber/fastmed/internal/messaging"
	"github.com/bushta-cyber/fastmed/internal/records"
	"github.com/bushta-cyber/fastmed/internal/session"
	"github.com/bushta-cyber/fastmed/pkg/interfaces"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

const (
	resourceAppointments  = "appointments"
	resourceConversations = "conversations"
	resourceRecords       = "records"
	resourceMessages      = "messages:"
)

// Service is the portal facade. It owns the fetched snapshots, serializes
// overlapping refreshes through the request tracker, and delegates all
// derivation to the view engines. Snapshots are replaced wholesale; the
// service never edits a fetched record in place.
type Service struct {
	logger   *logger.Logger
	source   interfaces.DataSource
	sessions *session.Store
	tracker  *requestTracker

	appointmentView *appointments.View
	threads         *messaging.Engine
	recordIndex     *records.Index

	mu            sync.RWMutex
	appointments  []*types.Appointment
	conversations []*types.Conversation
	messages      map[string][]*types.Message
	medRecords    []*types.MedicalRecord
	directory     map[string]*types.Identity
}

// NewService wires the facade over a data source and session store
func NewService(source interfaces.DataSource, sessions *session.Store, log *logger.Logger) *Service {
	s := &Service{
		logger:    log,
		source:    source,
		sessions:  sessions,
		tracker:   newRequestTracker(),
		messages:  map[string][]*types.Message{},
		directory: map[string]*types.Identity{},
	}
	s.appointmentView = appointments.NewView(log)
	s.threads = messaging.NewEngine(s, log)
	s.recordIndex = records.NewIndex(log)
	return s
}

// Sessions exposes the session store for login/logout flows
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// RefreshAppointments fetches a new appointment snapshot. A response
// superseded by a newer refresh is discarded and reported as stale.
func (s *Service) RefreshAppointments(ctx context.Context) ([]*types.Appointment, error) {
	token := s.tracker.Begin(resourceAppointments)

	snapshot, err := s.source.GetAppointments(ctx)
	if err != nil {
		s.sessions.HandleAuthFailure(err)
		return nil, err
	}
	if !s.tracker.Accept(resourceAppointments, token) {
		return nil, types.NewStaleResponseError(resourceAppointments)
	}

	s.mu.Lock()
	s.appointments = snapshot
	s.mu.Unlock()
	return snapshot, nil
}

// Appointments derives the filtered, ordered appointment view for the
// current identity from the last snapshot
func (s *Service) Appointments(filter interfaces.AppointmentFilter) []*types.Appointment {
	identity := s.identity()

	s.mu.RLock()
	snapshot := s.appointments
	s.mu.RUnlock()

	return s.appointmentView.DeriveView(snapshot, identity, filter)
}

// AppointmentActions classifies the actions the UI may offer
func (s *Service) AppointmentActions(apt *types.Appointment) interfaces.AppointmentActions {
	return s.appointmentView.ActionsFor(apt)
}

// CancelAppointment forwards a cancel intent, then re-fetches the snapshot
// so the view reflects the authoritative outcome
func (s *Service) CancelAppointment(ctx context.Context, appointmentID string) error {
	if err := s.source.CancelAppointment(ctx, appointmentID); err != nil {
		s.sessions.HandleAuthFailure(err)
		return err
	}
	_, err := s.RefreshAppointments(ctx)
	return err
}

// RescheduleAppointment forwards a reschedule intent and re-fetches
func (s *Service) RescheduleAppointment(ctx context.Context, appointmentID, date, startTime, endTime string) error {
	if err := s.source.RescheduleAppointment(ctx, appointmentID, date, startTime, endTime); err != nil {
		s.sessions.HandleAuthFailure(err)
		return err
	}
	_, err := s.RefreshAppointments(ctx)
	return err
}

// UpdateAppointmentStatus forwards a status transition and re-fetches
func (s *Service) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status types.AppointmentStatus) error {
	if err := s.source.UpdateAppointmentStatus(ctx, appointmentID, status); err != nil {
		s.sessions.HandleAuthFailure(err)
		return err
	}
	_, err := s.RefreshAppointments(ctx)
	return err
}

// RefreshConversations fetches a new conversation snapshot and primes the
// directory cache with every participant it mentions
func (s *Service) RefreshConversations(ctx context.Context) ([]*types.Conversation, error) {
	token := s.tracker.Begin(resourceConversations)

	snapshot, err := s.source.GetConversations(ctx)
	if err != nil {
		s.sessions.HandleAuthFailure(err)
		return nil, err
	}
	if !s.tracker.Accept(resourceConversations, token) {
		return nil, types.NewStaleResponseError(resourceConversations)
	}

	s.mu.Lock()
	s.conversations = snapshot
	s.mu.Unlock()

	for _, conv := range snapshot {
		for _, participant := range conv.Participants {
			s.resolveUser(ctx, participant)
		}
	}
	return snapshot, nil
}

// Conversations derives the visible, optionally searched conversation list
func (s *Service) Conversations(search string) []*types.Conversation {
	identity := s.identity()

	s.mu.RLock()
	snapshot := s.conversations
	s.mu.RUnlock()

	return s.threads.VisibleConversations(snapshot, identity, search)
}

// RefreshMessages fetches a conversation's message snapshot. Each
// conversation tracks its own in-flight request, so refreshing one thread
// never invalidates another.
func (s *Service) RefreshMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	resource := resourceMessages + conversationID
	token := s.tracker.Begin(resource)

	snapshot, err := s.source.GetMessages(ctx, conversationID)
	if err != nil {
		s.sessions.HandleAuthFailure(err)
		return nil, err
	}
	if !s.tracker.Accept(resource, token) {
		return nil, types.NewStaleResponseError(resource)
	}

	s.mu.Lock()
	s.messages[conversationID] = snapshot
	s.mu.Unlock()
	return snapshot, nil
}

// Thread derives the ordered, day-grouped thread for a conversation
func (s *Service) Thread(conversationID string) ([]interfaces.ThreadEntry, error) {
	identity := s.identity()

	s.mu.RLock()
	conv := s.findConversation(conversationID)
	msgs := s.messages[conversationID]
	s.mu.RUnlock()

	if conv == nil {
		return nil, types.NewNotFoundError("conversation", conversationID)
	}
	return s.threads.Thread(conv, msgs, identity), nil
}

// Unread reports the unread count for a conversation as seen by the
// current identity
func (s *Service) Unread(conversationID string) int {
	identity := s.identity()

	s.mu.RLock()
	conv := s.findConversation(conversationID)
	msgs := s.messages[conversationID]
	s.mu.RUnlock()

	if conv == nil {
		return 0
	}
	return s.threads.UnreadFor(conv, msgs, identity)
}

// OtherParticipantName resolves the display name of the conversation's
// other participant
func (s *Service) OtherParticipantName(conversationID string) (string, error) {
	identity := s.identity()

	s.mu.RLock()
	conv := s.findConversation(conversationID)
	s.mu.RUnlock()

	if conv == nil {
		return "", types.NewNotFoundError("conversation", conversationID)
	}

	otherID, err := s.threads.OtherParticipant(conv, identity)
	if err != nil {
		return "", err
	}
	if user, ok := s.LookupUser(otherID); ok {
		return user.Name, nil
	}
	return otherID, nil
}

// SendMessage forwards a send intent, then re-fetches the conversation
// list and the affected thread. The sent message only becomes visible
// through those snapshots.
func (s *Service) SendMessage(ctx context.Context, receiverID, content string) error {
	sent, err := s.source.SendMessage(ctx, receiverID, content)
	if err != nil {
		s.sessions.HandleAuthFailure(err)
		return err
	}

	if _, err := s.RefreshConversations(ctx); err != nil && !types.IsStale(err) {
		return err
	}

	s.mu.RLock()
	var convID string
	for _, conv := range s.conversations {
		if conv.MatchesPair(sent.SenderID, sent.ReceiverID) {
			convID = conv.ID
			break
		}
	}
	s.mu.RUnlock()

	if convID == "" {
		return nil
	}
	if _, err := s.RefreshMessages(ctx, convID); err != nil && !types.IsStale(err) {
		return err
	}
	return nil
}

// RefreshRecords fetches a new medical record snapshot
func (s *Service) RefreshRecords(ctx context.Context) ([]*types.MedicalRecord, error) {
	token := s.tracker.Begin(resourceRecords)

	snapshot, err := s.source.GetRecords(ctx)
	if err != nil {
		s.sessions.HandleAuthFailure(err)
		return nil, err
	}
	if !s.tracker.Accept(resourceRecords, token) {
		return nil, types.NewStaleResponseError(resourceRecords)
	}

	s.mu.Lock()
	s.medRecords = snapshot
	s.mu.Unlock()
	return snapshot, nil
}

// Records derives the visible, optionally searched record list
func (s *Service) Records(query string) []*types.MedicalRecord {
	identity := s.identity()

	s.mu.RLock()
	snapshot := s.medRecords
	s.mu.RUnlock()

	return s.recordIndex.DeriveView(snapshot, identity, query)
}

// ActivePrescriptions filters a record's prescriptions to the active ones
func (s *Service) ActivePrescriptions(record *types.MedicalRecord) []types.Prescription {
	return s.recordIndex.ActivePrescriptions(record)
}

// LookupUser implements interfaces.UserDirectory from the cache. The cache
// is primed by conversation refreshes and the session identity; it never
// blocks on the network.
func (s *Service) LookupUser(userID string) (*types.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.directory[userID]
	return user, ok
}

// resolveUser fills the directory cache, fetching on a miss. Lookup
// failures are logged and skipped; a thread renders with the raw id
// rather than failing.
func (s *Service) resolveUser(ctx context.Context, userID string) {
	s.mu.RLock()
	_, cached := s.directory[userID]
	s.mu.RUnlock()
	if cached {
		return
	}

	if sess, ok := s.sessions.Current(); ok && sess.Identity.ID == userID {
		s.mu.Lock()
		s.directory[userID] = sess.Identity
		s.mu.Unlock()
		return
	}

	user, err := s.source.GetUser(ctx, userID)
	if err != nil {
		s.logger.WithUserID(userID).WithError(err).Warn("Failed to resolve user for directory")
		return
	}

	s.mu.Lock()
	s.directory[userID] = user
	s.mu.Unlock()
}

// findConversation must be called with s.mu held
func (s *Service) findConversation(conversationID string) *types.Conversation {
	for _, conv := range s.conversations {
		if conv.ID == conversationID {
			return conv
		}
	}
	return nil
}

func (s *Service) identity() *types.Identity {
	if sess, ok := s.sessions.Current(); ok {
		return sess.Identity
	}
	return nil
}
