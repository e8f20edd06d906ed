package invitation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/internal/session"
	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/database/memstore"
	"github.com/karaoke-session-system/pkg/logger"
	"github.com/karaoke-session-system/pkg/models"
	"github.com/karaoke-session-system/pkg/redis"
)

type fixture struct {
	store       *memstore.Store
	sessions    *session.Service
	invitations *Service
	session     *models.Session
	host        *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	sessions := session.NewService(store, redis.NewCache(nil), nil, logger.NewNop())

	f := &fixture{
		store:       store,
		sessions:    sessions,
		invitations: NewService(store, sessions, "https://karaoke.example.com/", nil, logger.NewNop()),
		host:        &models.User{ID: uuid.New(), DisplayName: "Host"},
	}
	require.NoError(t, store.CreateUser(ctx, f.host))
	s, err := sessions.CreateSession(ctx, "Friday Night", f.host.ID)
	require.NoError(t, err)
	f.session = s
	return f
}

func (f *fixture) user(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.New(), DisplayName: "Guest"}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func intPtr(n int) *int { return &n }

func TestGenerateShareableLink(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "https://karaoke.example.com/join/ABCD2345", f.invitations.GenerateShareableLink("ABCD2345"))
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	outsider := f.user(t)

	testCases := []struct {
		name     string
		inviter  uuid.UUID
		uses     *int
		expires  *time.Time
		expected error
	}{
		{"zero uses", f.host.ID, intPtr(0), nil, apperrors.ErrInvalidArgument},
		{"past expiry", f.host.ID, nil, &past, apperrors.ErrInvalidArgument},
		{"not a member", outsider.ID, nil, nil, apperrors.ErrForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.invitations.Issue(ctx, f.session.ID, tc.inviter, tc.uses, tc.expires)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestRedeemJoinsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.user(t)

	inv, err := f.invitations.Issue(ctx, f.session.ID, f.host.ID, intPtr(2), nil)
	require.NoError(t, err)
	assert.Len(t, inv.InvitationCode, 10)

	redemption, err := f.invitations.Redeem(ctx, " "+inv.InvitationCode+" ", guest.ID)
	require.NoError(t, err)
	assert.Equal(t, f.session.ID, redemption.Session.ID)
	require.NotNil(t, redemption.Participant.InvitedBy)
	assert.Equal(t, f.host.ID, *redemption.Participant.InvitedBy)
	assert.Equal(t, 1, *redemption.Invitation.UsesRemaining)

	member, err := f.sessions.IsMember(ctx, f.session.ID, guest.ID)
	require.NoError(t, err)
	assert.True(t, member)

	// Redeeming again as a member does not use up the invitation.
	again, err := f.invitations.Redeem(ctx, inv.InvitationCode, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, *again.Invitation.UsesRemaining)
}

func TestRedeemExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.invitations.Issue(ctx, f.session.ID, f.host.ID, intPtr(1), nil)
	require.NoError(t, err)

	_, err = f.invitations.Redeem(ctx, inv.InvitationCode, f.user(t).ID)
	require.NoError(t, err)

	_, err = f.invitations.Redeem(ctx, inv.InvitationCode, f.user(t).ID)
	assert.ErrorIs(t, err, apperrors.ErrExhausted)
}

func TestRedeemExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(time.Hour)
	inv, err := f.invitations.Issue(ctx, f.session.ID, f.host.ID, nil, &expires)
	require.NoError(t, err)

	f.invitations.now = func() time.Time { return expires.Add(time.Minute) }
	_, err = f.invitations.Redeem(ctx, inv.InvitationCode, f.user(t).ID)
	assert.ErrorIs(t, err, apperrors.ErrExpired)
}

func TestRedeemUnknownOrClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.invitations.Redeem(ctx, "NOPE", f.user(t).ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.invitations.Redeem(ctx, "  ", f.user(t).ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	inv, err := f.invitations.Issue(ctx, f.session.ID, f.host.ID, nil, nil)
	require.NoError(t, err)
	_, err = f.sessions.CloseSession(ctx, f.session.ID, f.host.ID)
	require.NoError(t, err)

	_, err = f.invitations.Redeem(ctx, inv.InvitationCode, f.user(t).ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConcurrentRedemptionsRespectUses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const uses = 3

	inv, err := f.invitations.Issue(ctx, f.session.ID, f.host.ID, intPtr(uses), nil)
	require.NoError(t, err)

	guests := make([]*models.User, 10)
	for i := range guests {
		guests[i] = f.user(t)
	}

	var ok, exhausted int32
	var wg sync.WaitGroup
	for _, g := range guests {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := f.invitations.Redeem(ctx, inv.InvitationCode, userID)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorIs(t, err, apperrors.ErrExhausted):
				atomic.AddInt32(&exhausted, 1)
			}
		}(g.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(uses), ok)
	assert.Equal(t, int32(len(guests)-uses), exhausted)

	count, err := f.sessions.CountParticipants(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, uses+1, count)
}
