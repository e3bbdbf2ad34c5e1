package interfaces

import (
	"context"

	"github.com/bushta-cyber/fastmed/pkg/types"
)

// DataSource defines the interface to the authoritative backend. The view
// layer only ever reads snapshots from it and issues mutation intents; it
// never mutates domain records locally.
type DataSource interface {
	// Authentication
	Login(ctx context.Context, email, password string) (*types.AuthToken, *types.Identity, error)
	Register(ctx context.Context, req *types.RegistrationRequest) (*types.AuthToken, *types.Identity, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*types.Identity, error)

	// Appointments
	GetAppointments(ctx context.Context) ([]*types.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) error
	RescheduleAppointment(ctx context.Context, appointmentID string, date, startTime, endTime string) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID string, status types.AppointmentStatus) error

	// Medical records
	GetRecords(ctx context.Context) ([]*types.MedicalRecord, error)

	// Messaging
	GetConversations(ctx context.Context) ([]*types.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error)
	SendMessage(ctx context.Context, receiverID, content string) (*types.Message, error)

	// Directory
	GetUser(ctx context.Context, userID string) (*types.Identity, error)
}

// UserDirectory resolves user ids to identities for display purposes
type UserDirectory interface {
	LookupUser(userID string) (*types.Identity, bool)
}
