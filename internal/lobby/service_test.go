package lobby

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(events ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) take() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.events
	n.events = nil
	return out
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	notifier := &recordingNotifier{}
	return &fixture{
		svc:      NewService(store, store, notifier, zap.NewNop()),
		store:    store,
		notifier: notifier,
	}
}

func actor(uid string) Actor {
	return Actor{UID: uid, Name: "user-" + uid, AvatarID: 3}
}

func details(max int) Details {
	return Details{
		Title:       "Hack the Campus",
		Description: "48h hackathon, need a designer",
		Category:    models.CategoryHackathon,
		Location:    "Library",
		Skill:       models.SkillIntermediate,
		EventDate:   "2026-11-20T18:30",
		MaxPlayers:  max,
	}
}

func (f *fixture) create(t *testing.T, host string, max int) *models.Lobby {
	t.Helper()
	l, err := f.svc.Create(context.Background(), actor(host), details(max))
	require.NoError(t, err)
	f.notifier.take()
	return l
}

// addMember runs the request/accept flow for uid.
func (f *fixture) addMember(t *testing.T, id uint, host, uid string) *models.Lobby {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.RequestJoin(ctx, id, actor(uid), "let me in"))
	l, err := f.svc.AcceptRequest(ctx, id, actor(host), uid)
	require.NoError(t, err)
	f.notifier.take()
	return l
}

func (f *fixture) successCount(t *testing.T) int64 {
	t.Helper()
	n, err := f.svc.SuccessfulSquads(context.Background())
	require.NoError(t, err)
	return n
}

func assertInvariants(t *testing.T, l *models.Lobby) {
	t.Helper()
	seen := map[string]bool{}
	for _, p := range l.Players {
		assert.False(t, seen[p.UID], "duplicate player %s", p.UID)
		seen[p.UID] = true
	}
	for _, r := range l.Requests {
		assert.False(t, seen[r.UID], "request from player %s", r.UID)
	}
	assert.True(t, seen[l.HostID], "host %s not among players", l.HostID)
}

func TestCreate_HostIsSolePlayer(t *testing.T) {
	f := newFixture(t)

	l, err := f.svc.Create(context.Background(), actor("alice"), details(4))
	require.NoError(t, err)

	assert.NotZero(t, l.ID)
	assert.Equal(t, "alice", l.HostID)
	assert.Equal(t, "user-alice", l.HostName)
	require.Len(t, l.Players, 1)
	assert.Equal(t, models.LobbyPlayer{LobbyID: l.ID, UID: "alice", Name: "user-alice", AvatarID: 3}, l.Players[0])
	assert.Empty(t, l.Requests)
	assert.False(t, l.HasReachedMax)
	assert.Equal(t, StateOpen, StateOf(l))
	assert.Equal(t, time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC), *l.EventDate)
	assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())
}

func TestCreate_CapacityOneCountsImmediately(t *testing.T) {
	f := newFixture(t)

	l, err := f.svc.Create(context.Background(), actor("solo"), details(1))
	require.NoError(t, err)

	assert.True(t, l.HasReachedMax)
	assert.Equal(t, StateFull, StateOf(l))
	assert.Equal(t, int64(1), f.successCount(t))
	assert.Equal(t, []string{EventLobbiesUpdated, EventStatsUpdated}, f.notifier.take())
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(d *Details){
		"missing title":  func(d *Details) { d.Title = "   " },
		"markup only":    func(d *Details) { d.Title = "<img src=x>" },
		"bad category":   func(d *Details) { d.Category = "knitting" },
		"bad skill":      func(d *Details) { d.Skill = "Legend" },
		"zero capacity":  func(d *Details) { d.MaxPlayers = 0 },
		"huge capacity":  func(d *Details) { d.MaxPlayers = 1000 },
		"bad event date": func(d *Details) { d.EventDate = "next friday" },
		"long title":     func(d *Details) { d.Title = strings.Repeat("a", 121) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := details(4)
			mutate(&d)
			_, err := f.svc.Create(ctx, actor("alice"), d)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	lobbies, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, lobbies)
	assert.Empty(t, f.notifier.take())
}

func TestCreate_StripsMarkup(t *testing.T) {
	f := newFixture(t)
	d := details(3)
	d.Title = "<b>Footy</b> & friends"
	d.Description = "<script>steal()</script>Bring boots"

	l, err := f.svc.Create(context.Background(), actor("alice"), d)
	require.NoError(t, err)

	assert.Equal(t, "Footy & friends", l.Title)
	assert.Equal(t, "Bring boots", l.Description)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 4)
	f.addMember(t, l.ID, "alice", "bob")

	t.Run("non host is rejected", func(t *testing.T) {
		_, err := f.svc.Update(ctx, l.ID, actor("bob"), details(5))
		assert.ErrorIs(t, err, ErrNotHost)
		assert.Empty(t, f.notifier.take())
	})

	t.Run("missing lobby", func(t *testing.T) {
		_, err := f.svc.Update(ctx, 999, actor("alice"), details(5))
		assert.ErrorIs(t, err, ErrLobbyNotFound)
	})

	t.Run("host overwrites details and contact", func(t *testing.T) {
		host := actor("alice")
		host.Contact = models.HostMeta{Phone: "555-0100", Email: "alice@uni.edu"}
		d := details(6)
		d.Title = "Renamed"
		d.Skill = models.SkillPro

		got, err := f.svc.Update(ctx, l.ID, host, d)
		require.NoError(t, err)

		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, models.SkillPro, got.Skill)
		assert.Equal(t, 6, got.MaxPlayers)
		assert.Equal(t, host.Contact, got.HostMeta)
		assert.Len(t, got.Players, 2)
		assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())
	})

	t.Run("lowering capacity to membership counts success", func(t *testing.T) {
		got, err := f.svc.Update(ctx, l.ID, actor("alice"), details(2))
		require.NoError(t, err)

		assert.True(t, got.HasReachedMax)
		assert.Equal(t, int64(1), f.successCount(t))
		assert.Equal(t, []string{EventLobbiesUpdated, EventStatsUpdated}, f.notifier.take())
	})
}

func TestRequestJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 4)

	require.NoError(t, f.svc.RequestJoin(ctx, l.ID, actor("bob"), "<i>hi</i> there"))
	assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())

	got, err := f.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, got.Requests, 1)
	assert.Equal(t, "bob", got.Requests[0].UID)
	assert.Equal(t, "hi there", got.Requests[0].Message)
	assert.Equal(t, 3, got.Requests[0].AvatarID)

	err = f.svc.RequestJoin(ctx, l.ID, actor("bob"), "again")
	assert.ErrorIs(t, err, ErrRequestAlreadySent)
	assert.Equal(t, "Request already sent", apperr.Message(err))

	err = f.svc.RequestJoin(ctx, l.ID, actor("alice"), "")
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	err = f.svc.RequestJoin(ctx, 404, actor("carol"), "")
	assert.ErrorIs(t, err, ErrLobbyNotFound)
	assert.Empty(t, f.notifier.take())
}

func TestAcceptRequest_FillsLobbyAndCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 3)
	f.addMember(t, l.ID, "alice", "bob")

	require.NoError(t, f.svc.RequestJoin(ctx, l.ID, actor("carol"), ""))
	f.notifier.take()

	got, err := f.svc.AcceptRequest(ctx, l.ID, actor("alice"), "carol")
	require.NoError(t, err)

	assert.Len(t, got.Players, 3)
	assert.Empty(t, got.Requests)
	assert.True(t, got.HasReachedMax)
	assert.Equal(t, StateFull, StateOf(got))
	assert.Equal(t, int64(1), f.successCount(t))
	assert.Equal(t, []string{EventLobbiesUpdated, EventStatsUpdated}, f.notifier.take())
	assertInvariants(t, got)
}

func TestAcceptRequest_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 3)
	require.NoError(t, f.svc.RequestJoin(ctx, l.ID, actor("bob"), ""))

	_, err := f.svc.AcceptRequest(ctx, l.ID, actor("alice"), "nobody")
	assert.ErrorIs(t, err, ErrRequestNotFound)

	_, err = f.svc.AcceptRequest(ctx, l.ID, actor("bob"), "bob")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = f.svc.AcceptRequest(ctx, 77, actor("alice"), "bob")
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestRejectRequest_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 3)
	require.NoError(t, f.svc.RequestJoin(ctx, l.ID, actor("bob"), ""))
	f.notifier.take()

	require.NoError(t, f.svc.RejectRequest(ctx, l.ID, actor("alice"), "bob"))
	assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())
	after, err := f.svc.Get(ctx, l.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RejectRequest(ctx, l.ID, actor("alice"), "bob"))
	again, err := f.svc.Get(ctx, l.ID)
	require.NoError(t, err)

	assert.Equal(t, after, again)
	assert.Empty(t, again.Requests)
	assert.Len(t, again.Players, 1)
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 2)
	require.NoError(t, f.svc.RequestJoin(ctx, l.ID, actor("bob"), "pending"))
	f.notifier.take()

	got, err := f.svc.Join(ctx, l.ID, actor("bob"))
	require.NoError(t, err)
	assert.Len(t, got.Players, 2)
	assert.Empty(t, got.Requests, "direct join drops the pending request")
	assert.True(t, got.HasReachedMax)
	assert.Equal(t, []string{EventLobbiesUpdated, EventStatsUpdated}, f.notifier.take())

	_, err = f.svc.Join(ctx, l.ID, actor("bob"))
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, err = f.svc.Join(ctx, l.ID, actor("carol"))
	assert.ErrorIs(t, err, ErrLobbyFull)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("host of a crowded lobby must transfer first", func(t *testing.T) {
		f := newFixture(t)
		l := f.create(t, "alice", 5)
		f.addMember(t, l.ID, "alice", "bob")
		before := f.addMember(t, l.ID, "alice", "carol")

		_, err := f.svc.Leave(ctx, l.ID, actor("alice"))
		assert.ErrorIs(t, err, ErrHostMustTransfer)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

		after, err := f.svc.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Players, after.Players)
		assert.Equal(t, "alice", after.HostID)
		assert.Empty(t, f.notifier.take())
	})

	t.Run("sole host disbands", func(t *testing.T) {
		f := newFixture(t)
		l := f.create(t, "alice", 5)

		state, err := f.svc.Leave(ctx, l.ID, actor("alice"))
		require.NoError(t, err)
		assert.Equal(t, StateDisbanded, state)
		assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())

		_, err = f.svc.Get(ctx, l.ID)
		assert.ErrorIs(t, err, ErrLobbyNotFound)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("member leaves", func(t *testing.T) {
		f := newFixture(t)
		l := f.create(t, "alice", 5)
		f.addMember(t, l.ID, "alice", "bob")

		state, err := f.svc.Leave(ctx, l.ID, actor("bob"))
		require.NoError(t, err)
		assert.Equal(t, StateOpen, state)

		got, err := f.svc.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.Len(t, got.Players, 1)
		assertInvariants(t, got)
	})

	t.Run("stranger", func(t *testing.T) {
		f := newFixture(t)
		l := f.create(t, "alice", 5)

		_, err := f.svc.Leave(ctx, l.ID, actor("mallory"))
		assert.ErrorIs(t, err, ErrNotMember)
	})
}

func TestKick_KeepsSuccessHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 2)
	full := f.addMember(t, l.ID, "alice", "bob")
	require.True(t, full.HasReachedMax)
	require.Equal(t, int64(1), f.successCount(t))

	got, err := f.svc.Kick(ctx, l.ID, actor("alice"), "bob")
	require.NoError(t, err)
	assert.Len(t, got.Players, 1)
	assert.True(t, got.HasReachedMax, "success flag is sticky")
	assert.Equal(t, StateOpen, StateOf(got))
	assert.Equal(t, int64(1), f.successCount(t), "kick never decrements")
	assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())

	refilled := f.addMember(t, l.ID, "alice", "carol")
	assert.Equal(t, StateFull, StateOf(refilled))
	assert.Equal(t, int64(1), f.successCount(t), "refill is not counted twice")
}

func TestKick_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 4)
	f.addMember(t, l.ID, "alice", "bob")

	_, err := f.svc.Kick(ctx, l.ID, actor("bob"), "alice")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = f.svc.Kick(ctx, l.ID, actor("alice"), "alice")
	assert.ErrorIs(t, err, ErrKickHost)

	_, err = f.svc.Kick(ctx, l.ID, actor("alice"), "ghost")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestKick_DropsStrayRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 4)
	require.NoError(t, f.svc.RequestJoin(ctx, l.ID, actor("bob"), ""))

	got, err := f.svc.Kick(ctx, l.ID, actor("alice"), "bob")
	require.NoError(t, err)
	assert.Empty(t, got.Requests)
}

func TestTransferHost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := actor("alice")
	host.Contact = models.HostMeta{Email: "alice@uni.edu"}
	l, err := f.svc.Create(ctx, host, details(4))
	require.NoError(t, err)
	assert.Equal(t, "alice@uni.edu", l.HostMeta.Email)
	f.addMember(t, l.ID, "alice", "bob")

	_, err = f.svc.TransferHost(ctx, l.ID, actor("bob"), "bob")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = f.svc.TransferHost(ctx, l.ID, actor("alice"), "carol")
	assert.ErrorIs(t, err, ErrNewHostNotFound)

	_, err = f.svc.TransferHost(ctx, l.ID, actor("alice"), "alice")
	assert.ErrorIs(t, err, ErrAlreadyHost)

	got, err := f.svc.TransferHost(ctx, l.ID, actor("alice"), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.HostID)
	assert.Equal(t, "user-bob", got.HostName)
	assert.Equal(t, models.HostMeta{}, got.HostMeta)
	assertInvariants(t, got)

	// the former host is now a regular member and may leave
	state, err := f.svc.Leave(ctx, l.ID, actor("alice"))
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)
}

func TestDisband(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "alice", 4)
	f.addMember(t, l.ID, "alice", "bob")

	err := f.svc.Disband(ctx, l.ID, actor("bob"))
	assert.ErrorIs(t, err, ErrNotHost)

	require.NoError(t, f.svc.Disband(ctx, l.ID, actor("alice")))
	assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())

	_, err = f.svc.Get(ctx, l.ID)
	assert.ErrorIs(t, err, ErrLobbyNotFound)

	err = f.svc.Disband(ctx, l.ID, actor("alice"))
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestPurgeUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hosted := f.create(t, "alice", 4)
	joined := f.create(t, "bob", 2)
	f.addMember(t, joined.ID, "bob", "alice")
	requested := f.create(t, "carol", 4)
	require.NoError(t, f.svc.RequestJoin(ctx, requested.ID, actor("alice"), ""))
	untouched := f.create(t, "dave", 4)
	f.notifier.take()
	require.Equal(t, int64(1), f.successCount(t))

	require.NoError(t, f.svc.PurgeUser(ctx, "alice"))
	assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())

	_, err := f.svc.Get(ctx, hosted.ID)
	assert.ErrorIs(t, err, ErrLobbyNotFound)

	got, err := f.svc.Get(ctx, joined.ID)
	require.NoError(t, err)
	assert.Len(t, got.Players, 1)
	assert.True(t, got.HasReachedMax)

	got, err = f.svc.Get(ctx, requested.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Requests)

	_, err = f.svc.Get(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.successCount(t))
}

func TestPurgeStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := details(4)
	old.EventDate = "2020-01-01"
	stale, err := f.svc.Create(ctx, actor("alice"), old)
	require.NoError(t, err)
	undated := details(4)
	undated.EventDate = ""
	keep, err := f.svc.Create(ctx, actor("bob"), undated)
	require.NoError(t, err)
	f.notifier.take()

	n, err := f.svc.PurgeStale(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{EventLobbiesUpdated}, f.notifier.take())

	_, err = f.svc.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrLobbyNotFound)
	_, err = f.svc.Get(ctx, keep.ID)
	assert.NoError(t, err)

	n, err = f.svc.PurgeStale(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.notifier.take())
}

func TestList_NewestFirst(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "alice", 4)
	second := f.create(t, "bob", 4)

	lobbies, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, lobbies, 2)
	assert.Equal(t, second.ID, lobbies[0].ID)
	assert.Equal(t, first.ID, lobbies[1].ID)
}

func TestConcurrentAcceptsCountOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.create(t, "host", 3)
	uids := []string{"a", "b", "c", "d", "e"}
	for _, uid := range uids {
		require.NoError(t, f.svc.RequestJoin(ctx, l.ID, actor(uid), ""))
	}

	var wg sync.WaitGroup
	for _, uid := range uids {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			_, _ = f.svc.AcceptRequest(ctx, l.ID, actor("host"), uid)
		}(uid)
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, got.Players, 6)
	assertInvariants(t, got)
	assert.Equal(t, int64(1), f.successCount(t))
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) Mutate(context.Context, uint, func(*models.Lobby) (Mutation, error)) (*models.Lobby, error) {
	return nil, errors.New("connection reset by peer")
}

func TestStoreFailureBecomesStorageError(t *testing.T) {
	mem := NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewService(failingStore{mem}, mem, notifier, zap.NewNop())

	_, err := svc.Kick(context.Background(), 1, actor("alice"), "bob")
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Equal(t, "internal server error", apperr.Message(err))
	assert.Empty(t, notifier.take())
}
