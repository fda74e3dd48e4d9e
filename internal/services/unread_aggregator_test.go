package services

import (
	"context"
	"math/rand"
	"testing"

	agora_errors "agora-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnreadCounts_Sparse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	withBob := f.direct(t, f.alice, f.bob)
	withCarol := f.direct(t, f.alice, f.carol)

	f.send(t, withBob, f.bob, "one")
	f.send(t, withBob, f.bob, "two")
	f.send(t, withCarol, f.alice, "mine does not count")

	counts, err := f.unread.GetUnreadCounts(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{withBob: 2}, counts)

	counts, err = f.unread.GetUnreadCounts(ctx, f.carol)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{withCarol: 1}, counts)

	counts, err = f.unread.GetUnreadCounts(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestCountForConversation_RequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.direct(t, f.alice, f.bob)
	f.send(t, convID, f.alice, "x")

	n, err := f.unread.CountForConversation(ctx, convID, f.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.unread.CountForConversation(ctx, convID, f.carol)
	assert.ErrorIs(t, err, agora_errors.ErrForbidden)
}

// Replays a random workload and checks the aggregate against a full scan.
func TestGetUnreadCounts_MatchesScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	users := []uuid.UUID{f.alice, f.bob, f.carol}
	group, err := f.convs.CreateGroupConversation(ctx, f.alice, "all", "", []uuid.UUID{f.bob, f.carol})
	require.NoError(t, err)
	convs := []uuid.UUID{
		f.direct(t, f.alice, f.bob),
		f.direct(t, f.bob, f.carol),
		group.Conversation.ID,
	}
	members := map[uuid.UUID][]uuid.UUID{
		convs[0]: {f.alice, f.bob},
		convs[1]: {f.bob, f.carol},
		convs[2]: users,
	}

	sent := make(map[uuid.UUID][]uuid.UUID)
	for i := 0; i < 300; i++ {
		conv := convs[rng.Intn(len(convs))]
		who := members[conv][rng.Intn(len(members[conv]))]
		switch op := rng.Intn(10); {
		case op < 6:
			m := f.send(t, conv, who, "m")
			sent[conv] = append(sent[conv], m.ID)
		case op < 8 && len(sent[conv]) > 0:
			id := sent[conv][rng.Intn(len(sent[conv]))]
			_, err := f.messages.MarkMessageSeen(ctx, id, conv, who)
			require.NoError(t, err)
		case op < 9:
			_, err := f.messages.MarkConversationRead(ctx, conv, who)
			require.NoError(t, err)
		case len(sent[conv]) > 0:
			id := sent[conv][rng.Intn(len(sent[conv]))]
			_, err := f.messages.DeleteMessage(ctx, who, id, nil)
			if err != nil {
				assert.ErrorIs(t, err, agora_errors.ErrForbidden)
			}
		}
	}

	for _, u := range users {
		want := make(map[uuid.UUID]int)
		for _, conv := range convs {
			n := 0
			for _, m := range f.mem.Messages(conv) {
				if m.UnreadFor(u) && containsUser(members[conv], u) {
					n++
				}
			}
			if n > 0 {
				want[conv] = n
			}
		}
		got, err := f.unread.GetUnreadCounts(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func containsUser(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
