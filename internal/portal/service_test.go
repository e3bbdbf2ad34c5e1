package portal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bushta-cyber/fastmed/internal/datasource"
	"github.com/bushta-cyber/fastmed/internal/session"
	"github.com/bushta-cyber/fastmed/pkg/interfaces"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// MockDataSource mocks the data source for failure-path tests
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) Login(ctx context.Context, email, password string) (*types.AuthToken, *types.Identity, error) {
	args := m.Called(ctx, email, password)
	var token *types.AuthToken
	var identity *types.Identity
	if args.Get(0) != nil {
		token = args.Get(0).(*types.AuthToken)
	}
	if args.Get(1) != nil {
		identity = args.Get(1).(*types.Identity)
	}
	return token, identity, args.Error(2)
}

func (m *MockDataSource) Register(ctx context.Context, req *types.RegistrationRequest) (*types.AuthToken, *types.Identity, error) {
	args := m.Called(ctx, req)
	return nil, nil, args.Error(2)
}

func (m *MockDataSource) GetCurrentUser(ctx context.Context, accessToken string) (*types.Identity, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Identity), args.Error(1)
}

func (m *MockDataSource) GetAppointments(ctx context.Context) ([]*types.Appointment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Appointment), args.Error(1)
}

func (m *MockDataSource) CancelAppointment(ctx context.Context, appointmentID string) error {
	return m.Called(ctx, appointmentID).Error(0)
}

func (m *MockDataSource) RescheduleAppointment(ctx context.Context, appointmentID, date, startTime, endTime string) error {
	return m.Called(ctx, appointmentID, date, startTime, endTime).Error(0)
}

func (m *MockDataSource) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status types.AppointmentStatus) error {
	return m.Called(ctx, appointmentID, status).Error(0)
}

func (m *MockDataSource) GetRecords(ctx context.Context) ([]*types.MedicalRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.MedicalRecord), args.Error(1)
}

func (m *MockDataSource) GetConversations(ctx context.Context) ([]*types.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Conversation), args.Error(1)
}

func (m *MockDataSource) GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Message), args.Error(1)
}

func (m *MockDataSource) SendMessage(ctx context.Context, receiverID, content string) (*types.Message, error) {
	args := m.Called(ctx, receiverID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Message), args.Error(1)
}

func (m *MockDataSource) GetUser(ctx context.Context, userID string) (*types.Identity, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Identity), args.Error(1)
}

func newFixtureService(t *testing.T) (*Service, *datasource.Fixture) {
	t.Helper()
	log := logger.New("error")
	storage, err := session.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	fixture := datasource.NewFixture(log)
	sessions := session.NewStore(fixture, storage, log)
	svc := NewService(fixture, sessions, log)

	_, err = sessions.Login(context.Background(), "jane.doe@example.com", datasource.DemoPassword)
	require.NoError(t, err)
	return svc, fixture
}

func newMockService(t *testing.T, source *MockDataSource) *Service {
	t.Helper()
	log := logger.New("error")
	storage, err := session.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewStore(source, storage, log)
	return NewService(source, sessions, log)
}

func loginMockService(t *testing.T, svc *Service, source *MockDataSource) {
	t.Helper()
	token := &types.AuthToken{AccessToken: "access", RefreshToken: "refresh"}
	identity := &types.Identity{ID: "p1", Name: "Jane Doe", Role: types.RolePatient}
	source.On("Login", mock.Anything, "jane.doe@example.com", "password").Return(token, identity, nil).Once()

	_, err := svc.Sessions().Login(context.Background(), "jane.doe@example.com", "password")
	require.NoError(t, err)
}

func TestAppointmentFlow(t *testing.T) {
	svc, _ := newFixtureService(t)
	ctx := context.Background()

	_, err := svc.RefreshAppointments(ctx)
	require.NoError(t, err)

	upcoming := svc.Appointments(interfaces.FilterUpcoming)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "apt1", upcoming[0].ID)

	actions := svc.AppointmentActions(upcoming[0])
	assert.True(t, actions.CanCancel)

	// Cancelling re-fetches; the derived view reflects the new status
	// without any local mutation.
	require.NoError(t, svc.CancelAppointment(ctx, "apt1"))
	assert.Empty(t, svc.Appointments(interfaces.FilterUpcoming))

	all := svc.Appointments(interfaces.FilterAll)
	for _, apt := range all {
		if apt.ID == "apt1" {
			assert.Equal(t, types.StatusCancelled, apt.Status)
		}
	}
}

func TestRescheduleFlow(t *testing.T) {
	svc, _ := newFixtureService(t)
	ctx := context.Background()

	_, err := svc.RefreshAppointments(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.RescheduleAppointment(ctx, "apt1", "2031-01-10", "09:00", "09:30"))

	upcoming := svc.Appointments(interfaces.FilterUpcoming)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "09:00", upcoming[0].StartTime)
	assert.Equal(t, 2031, upcoming[0].Date.Year())
}

func TestRefreshDiscardsSupersededResponse(t *testing.T) {
	source := new(MockDataSource)
	svc := newMockService(t, source)
	loginMockService(t, svc, source)

	seeded := []*types.Appointment{{ID: "kept", PatientID: "p1", Status: types.StatusScheduled}}
	stale := []*types.Appointment{{ID: "stale", PatientID: "p1", Status: types.StatusScheduled}}

	source.On("GetAppointments", mock.Anything).Return(seeded, nil).Once()
	_, err := svc.RefreshAppointments(context.Background())
	require.NoError(t, err)

	// A newer refresh begins while this response is in flight; the older
	// response must be discarded, not merged.
	source.On("GetAppointments", mock.Anything).Return(stale, nil).Run(func(args mock.Arguments) {
		svc.tracker.Begin(resourceAppointments)
	}).Once()

	_, err = svc.RefreshAppointments(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsStale(err))

	// The snapshot still holds the accepted response.
	result := svc.Appointments(interfaces.FilterAll)
	require.Len(t, result, 1)
	assert.Equal(t, "kept", result[0].ID)
}

func TestAuthFailureClearsSession(t *testing.T) {
	source := new(MockDataSource)
	svc := newMockService(t, source)
	loginMockService(t, svc, source)

	require.True(t, svc.Sessions().IsAuthenticated())

	source.On("GetAppointments", mock.Anything).Return(nil, types.NewUnauthorizedError("token expired")).Once()

	_, err := svc.RefreshAppointments(context.Background())
	require.Error(t, err)
	assert.False(t, svc.Sessions().IsAuthenticated())
}

func TestNetworkFailureKeepsSession(t *testing.T) {
	source := new(MockDataSource)
	svc := newMockService(t, source)
	loginMockService(t, svc, source)

	source.On("GetAppointments", mock.Anything).Return(nil, types.NewNetworkError(assert.AnError)).Once()

	_, err := svc.RefreshAppointments(context.Background())
	require.Error(t, err)
	assert.True(t, svc.Sessions().IsAuthenticated())
}

func TestConversationFlow(t *testing.T) {
	svc, _ := newFixtureService(t)
	ctx := context.Background()

	_, err := svc.RefreshConversations(ctx)
	require.NoError(t, err)

	visible := svc.Conversations("")
	require.Len(t, visible, 1)
	assert.Equal(t, "conv1", visible[0].ID)

	name, err := svc.OtherParticipantName("conv1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. John Smith", name)

	// Search against the counterpart's name.
	assert.Len(t, svc.Conversations("smith"), 1)
	assert.Empty(t, svc.Conversations("williams"))

	_, err = svc.RefreshMessages(ctx, "conv1")
	require.NoError(t, err)

	thread, err := svc.Thread("conv1")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.True(t, thread[0].ShowDateDivider)
	assert.Equal(t, 1, svc.Unread("conv1"))
}

func TestSendMessageRefreshesThread(t *testing.T) {
	svc, _ := newFixtureService(t)
	ctx := context.Background()

	_, err := svc.RefreshConversations(ctx)
	require.NoError(t, err)
	_, err = svc.RefreshMessages(ctx, "conv1")
	require.NoError(t, err)

	before, err := svc.Thread("conv1")
	require.NoError(t, err)

	require.NoError(t, svc.SendMessage(ctx, "d1", "How should I adjust the dose?"))

	after, err := svc.Thread("conv1")
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)

	last := after[len(after)-1]
	assert.True(t, last.IsOwn)
	assert.Equal(t, "How should I adjust the dose?", last.Message.Content)
}

func TestRecordsFlow(t *testing.T) {
	svc, _ := newFixtureService(t)
	ctx := context.Background()

	_, err := svc.RefreshRecords(ctx)
	require.NoError(t, err)

	visible := svc.Records("")
	require.Len(t, visible, 1)
	assert.Equal(t, "rec1", visible[0].ID)

	assert.Len(t, svc.Records("allergy"), 1)
	assert.Empty(t, svc.Records("hypertension"))

	active := svc.ActivePrescriptions(visible[0])
	require.Len(t, active, 1)
	assert.Equal(t, "Loratadine", active[0].MedicationName)
}

func TestThreadUnknownConversation(t *testing.T) {
	svc, _ := newFixtureService(t)

	_, err := svc.Thread("missing")
	require.Error(t, err)
	assert.True(t, types.IsType(err, types.ErrorTypeNotFound))
	assert.Equal(t, 0, svc.Unread("missing"))
}
