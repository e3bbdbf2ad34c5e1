package messaging

import (
	"sort"
	"strings"
	"time"

	"github.com/bushta-cyber/fastmed/pkg/interfaces"
	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// Engine derives the visible conversation list and ordered, day-grouped
// threads for the current identity. Derivations are pure over the snapshot;
// sending a message is an intent forwarded upstream, never applied locally.
type Engine struct {
	logger    *logger.Logger
	directory interfaces.UserDirectory
}

// NewEngine creates a new conversation engine
func NewEngine(directory interfaces.UserDirectory, log *logger.Logger) *Engine {
	return &Engine{
		logger:    log,
		directory: directory,
	}
}

// VisibleConversations returns the conversations the identity participates
// in, optionally filtered by a case-insensitive substring match against the
// other participant's display name. Conversations with no counterpart are
// logged and excluded rather than failing the whole view.
func (e *Engine) VisibleConversations(all []*types.Conversation, identity *types.Identity, search string) []*types.Conversation {
	if identity == nil {
		return nil
	}

	needle := strings.ToLower(strings.TrimSpace(search))

	result := make([]*types.Conversation, 0, len(all))
	for _, conv := range all {
		if !conv.HasParticipant(identity.ID) {
			continue
		}

		otherID, err := e.OtherParticipant(conv, identity)
		if err != nil {
			e.logger.WithConversationID(conv.ID).Warn("Excluding conversation without counterpart")
			continue
		}

		if needle != "" {
			other, ok := e.directory.LookupUser(otherID)
			if !ok || !strings.Contains(strings.ToLower(other.Name), needle) {
				continue
			}
		}

		result = append(result, conv)
	}

	return result
}

// OtherParticipant resolves the counterpart's user id relative to the
// viewer. A conversation must have exactly one counterpart; anything else
// is a data invariant violation.
func (e *Engine) OtherParticipant(conv *types.Conversation, identity *types.Identity) (string, error) {
	for _, id := range conv.Participants {
		if id != identity.ID {
			return id, nil
		}
	}
	return "", types.NewMalformedConversationError(conv.ID)
}

// Thread assembles the ordered message sequence for a conversation:
// messages whose unordered sender/receiver pair matches the conversation's
// participants, sorted by timestamp (stable, preserving arrival order for
// equal timestamps), each annotated with its sender, ownership and whether
// a day divider renders before it.
func (e *Engine) Thread(conv *types.Conversation, messages []*types.Message, identity *types.Identity) []interfaces.ThreadEntry {
	if conv == nil || identity == nil {
		return nil
	}

	selected := make([]*types.Message, 0, len(messages))
	for _, msg := range messages {
		if conv.MatchesPair(msg.SenderID, msg.ReceiverID) {
			selected = append(selected, msg)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})

	entries := make([]interfaces.ThreadEntry, 0, len(selected))
	for i, msg := range selected {
		sender, _ := e.directory.LookupUser(msg.SenderID)

		divider := i == 0 || !sameCalendarDay(msg.Timestamp, selected[i-1].Timestamp)

		entries = append(entries, interfaces.ThreadEntry{
			Message:         msg,
			Sender:          sender,
			IsOwn:           msg.SenderID == identity.ID,
			ShowDateDivider: divider,
		})
	}

	return entries
}

// UnreadFor recomputes the unread count for the viewer: messages in the
// conversation addressed to them and not yet read. The snapshot's stored
// UnreadCount is capped at this number so it never overstates reality.
func (e *Engine) UnreadFor(conv *types.Conversation, messages []*types.Message, identity *types.Identity) int {
	unread := 0
	for _, msg := range messages {
		if conv.MatchesPair(msg.SenderID, msg.ReceiverID) && msg.ReceiverID == identity.ID && !msg.Read {
			unread++
		}
	}

	if conv.UnreadCount < unread {
		return conv.UnreadCount
	}
	return unread
}

// sameCalendarDay compares two timestamps by local calendar day with
// hours, minutes and seconds zeroed
func sameCalendarDay(a, b time.Time) bool {
	al, bl := a.Local(), b.Local()
	ay, am, ad := al.Date()
	by, bm, bd := bl.Date()
	return ay == by && am == bm && ad == bd
}
