package interfaces

import (
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// AppointmentFilter selects the temporal slice of an appointment view
type AppointmentFilter string

const (
	FilterAll      AppointmentFilter = "all"
	FilterUpcoming AppointmentFilter = "upcoming"
	FilterToday    AppointmentFilter = "today"
	FilterPast     AppointmentFilter = "past"
)

// AppointmentActions classifies what the UI may offer for an appointment
type AppointmentActions struct {
	CanJoin        bool `json:"can_join"`
	JoinEmphasized bool `json:"join_emphasized"`
	CanReschedule  bool `json:"can_reschedule"`
	CanCancel      bool `json:"can_cancel"`
}

// AppointmentView derives render-ready appointment sequences from a snapshot
type AppointmentView interface {
	DeriveView(appointments []*types.Appointment, identity *types.Identity, filter AppointmentFilter) []*types.Appointment
	ActionsFor(apt *types.Appointment) AppointmentActions
}

// ThreadEntry is one message in a rendered thread, annotated for layout
type ThreadEntry struct {
	Message         *types.Message  `json:"message"`
	Sender          *types.Identity `json:"sender,omitempty"`
	IsOwn           bool            `json:"is_own"`
	ShowDateDivider bool            `json:"show_date_divider"`
}

// ConversationEngine derives the visible conversation list and ordered,
// day-grouped threads for the current identity
type ConversationEngine interface {
	VisibleConversations(all []*types.Conversation, identity *types.Identity, search string) []*types.Conversation
	OtherParticipant(conv *types.Conversation, identity *types.Identity) (string, error)
	Thread(conv *types.Conversation, messages []*types.Message, identity *types.Identity) []ThreadEntry
	UnreadFor(conv *types.Conversation, messages []*types.Message, identity *types.Identity) int
}

// RecordIndex derives the visible medical record subset for an identity
type RecordIndex interface {
	DeriveView(records []*types.MedicalRecord, identity *types.Identity, query string) []*types.MedicalRecord
	ActivePrescriptions(record *types.MedicalRecord) []types.Prescription
}
