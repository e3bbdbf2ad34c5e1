package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

func TestFixtureLoginAndTokenRoundTrip(t *testing.T) {
	fixture := NewFixture(logger.New("error"))

	token, identity, err := fixture.Login(context.Background(), "jane.doe@example.com", DemoPassword)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "p1", identity.ID)

	// The minted access token resolves back to the same identity.
	resolved, err := fixture.GetCurrentUser(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, resolved.ID)

	_, err = fixture.GetCurrentUser(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, types.IsAuthFailure(err))
}

func TestFixtureLoginRejectsWrongPassword(t *testing.T) {
	fixture := NewFixture(logger.New("error"))

	_, _, err := fixture.Login(context.Background(), "jane.doe@example.com", "nope")
	require.Error(t, err)

	var portalErr *types.PortalError
	require.ErrorAs(t, err, &portalErr)
	assert.Equal(t, types.ErrCodeInvalidCredentials, portalErr.Code)
}

func TestFixtureStatusTransitions(t *testing.T) {
	fixture := NewFixture(logger.New("error"))
	ctx := context.Background()

	// apt1 is scheduled: cancelling works once.
	require.NoError(t, fixture.CancelAppointment(ctx, "apt1"))

	err := fixture.CancelAppointment(ctx, "apt1")
	require.Error(t, err)
	var portalErr *types.PortalError
	require.ErrorAs(t, err, &portalErr)
	assert.Equal(t, types.ErrCodeIllegalTransition, portalErr.Code)

	// apt3 is completed: no transition out of a terminal status.
	err = fixture.UpdateAppointmentStatus(ctx, "apt3", types.StatusInProgress)
	assert.Error(t, err)

	err = fixture.CancelAppointment(ctx, "missing")
	require.Error(t, err)
	assert.True(t, types.IsType(err, types.ErrorTypeNotFound))
}

func TestFixtureSendMessage(t *testing.T) {
	fixture := NewFixture(logger.New("error"))
	ctx := context.Background()

	// Sending requires an authenticated viewer.
	_, err := fixture.SendMessage(ctx, "d1", "hello")
	require.Error(t, err)

	_, _, err = fixture.Login(ctx, "jane.doe@example.com", DemoPassword)
	require.NoError(t, err)

	sent, err := fixture.SendMessage(ctx, "d1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "p1", sent.SenderID)
	assert.NotEmpty(t, sent.ID)
	assert.False(t, sent.Timestamp.IsZero())

	messages, err := fixture.GetMessages(ctx, "conv1")
	require.NoError(t, err)
	assert.Equal(t, sent.ID, messages[len(messages)-1].ID)

	// First contact with a new counterpart creates its conversation.
	_, err = fixture.SendMessage(ctx, "d2", "new thread")
	require.NoError(t, err)

	conversations, err := fixture.GetConversations(ctx)
	require.NoError(t, err)
	found := false
	for _, conv := range conversations {
		if conv.MatchesPair("p1", "d2") {
			found = true
		}
	}
	assert.True(t, found)
}
