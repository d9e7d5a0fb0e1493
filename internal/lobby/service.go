// Package lobby implements the squad lifecycle: creation, join requests,
// membership changes, host hand-over and the global success counter.
package lobby

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/models"
	"clanforge/backend/internal/textutil"
)

// Events broadcast to connected clients. They carry no payload; clients
// re-fetch state when they receive one.
const (
	EventLobbiesUpdated = "lobbies_updated"
	EventStatsUpdated   = "stats_updated"
)

const (
	maxTitleLen       = 120
	maxDescriptionLen = 2000
	maxMessageLen     = 500
	maxCapacity       = 100
)

var (
	ErrNotHost            = apperr.Authorization("Not authorized")
	ErrAlreadyJoined      = apperr.Conflict("Already joined")
	ErrRequestAlreadySent = apperr.Conflict("Request already sent")
	ErrHostMustTransfer   = apperr.Conflict("You must make another member the leader before leaving.")
	ErrLobbyFull          = apperr.Conflict("Lobby is full")
	ErrRequestNotFound    = apperr.NotFound("Request not found")
	ErrNotMember          = apperr.NotFound("You are not a member of this lobby")
	ErrMemberNotFound     = apperr.NotFound("Member not found in this lobby")
	ErrNewHostNotFound    = apperr.NotFound("New host not found in lobby")
	ErrKickHost           = apperr.Validation("Host cannot kick themselves")
	ErrAlreadyHost        = apperr.Validation("You are already the host")
)

// Notifier fans events out to connected clients. Notify must not block.
type Notifier interface {
	Notify(events ...string)
}

// Recorder observes operation outcomes.
type Recorder interface {
	RecordOperation(op string, err error)
	RecordSuccessfulSquad()
}

// Actor is the verified principal performing an operation, with the profile
// snapshot that gets copied into the lobby.
type Actor struct {
	UID      string
	Name     string
	AvatarID int
	// Contact is the host contact snapshot. It is empty unless the user made
	// their contact details public.
	Contact models.HostMeta
}

// Details are the descriptive fields of a lobby as submitted by the host.
type Details struct {
	Title       string
	Description string
	Category    models.Category
	Location    string
	Skill       models.SkillLevel
	EventDate   string
	MaxPlayers  int
}

// Service implements the lobby operations on top of a Store.
type Service struct {
	store    Store
	counter  Counter
	notifier Notifier
	recorder Recorder
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(store Store, counter Counter, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		counter:  counter,
		notifier: notifier,
		logger:   logger,
	}
}

// WithRecorder attaches a metrics recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// List returns every lobby, newest first.
func (s *Service) List(ctx context.Context) ([]models.Lobby, error) {
	lobbies, err := s.store.List(ctx)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	return lobbies, nil
}

// Get returns a single lobby.
func (s *Service) Get(ctx context.Context, id uint) (*models.Lobby, error) {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return l, nil
}

// SuccessfulSquads returns the number of lobbies that ever reached capacity.
func (s *Service) SuccessfulSquads(ctx context.Context) (int64, error) {
	n, err := s.counter.SuccessfulSquads(ctx)
	if err != nil {
		return 0, s.wrap("stats", err)
	}
	return n, nil
}

// Create persists a new lobby hosted by actor, who becomes its only player.
func (s *Service) Create(ctx context.Context, actor Actor, d Details) (l *models.Lobby, err error) {
	defer s.observe("create", &err)

	l = &models.Lobby{}
	if err := applyDetails(l, d); err != nil {
		return nil, err
	}
	l.HostID = actor.UID
	l.HostName = actor.Name
	l.HostMeta = actor.Contact
	l.Players = []models.LobbyPlayer{{UID: actor.UID, Name: actor.Name, AvatarID: actor.AvatarID}}
	l.Requests = []models.LobbyRequest{}

	counted := settle(l)
	if err := s.store.Create(ctx, l, counted); err != nil {
		return nil, s.wrap("create", err)
	}

	s.logger.Info("lobby created",
		zap.Uint("lobby_id", l.ID),
		zap.String("host_id", actor.UID),
		zap.Int("max_players", l.MaxPlayers),
	)
	s.changed(counted)
	return l, nil
}

// Update overwrites the descriptive fields of a lobby. Only the host may
// update; players and requests are left untouched.
func (s *Service) Update(ctx context.Context, id uint, actor Actor, d Details) (l *models.Lobby, err error) {
	defer s.observe("update", &err)

	// Validate before taking the lock.
	var probe models.Lobby
	if err := applyDetails(&probe, d); err != nil {
		return nil, err
	}

	var counted bool
	l, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if l.HostID != actor.UID {
			return Mutation{}, ErrNotHost
		}
		copyDetails(l, &probe)
		l.HostMeta = actor.Contact
		counted = settle(l)
		return Mutation{Change: Save, CountSuccess: counted}, nil
	})
	if err != nil {
		return nil, s.wrap("update", err)
	}

	s.logger.Info("lobby updated", zap.Uint("lobby_id", id), zap.String("host_id", actor.UID))
	s.changed(counted)
	return l, nil
}

// RequestJoin records a pending join request from actor.
func (s *Service) RequestJoin(ctx context.Context, id uint, actor Actor, message string) (err error) {
	defer s.observe("request", &err)

	message = textutil.Clean(message)
	if utf8.RuneCountInString(message) > maxMessageLen {
		return apperr.Validation("message is too long")
	}

	_, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if playerIndex(l, actor.UID) >= 0 {
			return Mutation{}, ErrAlreadyJoined
		}
		if requestIndex(l, actor.UID) >= 0 {
			return Mutation{}, ErrRequestAlreadySent
		}
		l.Requests = append(l.Requests, models.LobbyRequest{
			LobbyID:  l.ID,
			UID:      actor.UID,
			Name:     actor.Name,
			AvatarID: actor.AvatarID,
			Message:  message,
		})
		return Mutation{Change: Save}, nil
	})
	if err != nil {
		return s.wrap("request", err)
	}

	s.logger.Info("join requested", zap.Uint("lobby_id", id), zap.String("uid", actor.UID))
	s.changed(false)
	return nil
}

// AcceptRequest moves a pending request into the players list.
func (s *Service) AcceptRequest(ctx context.Context, id uint, actor Actor, requestUID string) (l *models.Lobby, err error) {
	defer s.observe("accept", &err)

	var counted bool
	l, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if l.HostID != actor.UID {
			return Mutation{}, ErrNotHost
		}
		i := requestIndex(l, requestUID)
		if i < 0 {
			return Mutation{}, ErrRequestNotFound
		}
		req := l.Requests[i]
		removeRequest(l, requestUID)
		if playerIndex(l, req.UID) < 0 {
			l.Players = append(l.Players, models.LobbyPlayer{
				LobbyID:  l.ID,
				UID:      req.UID,
				Name:     req.Name,
				AvatarID: req.AvatarID,
			})
		}
		counted = settle(l)
		return Mutation{Change: Save, CountSuccess: counted}, nil
	})
	if err != nil {
		return nil, s.wrap("accept", err)
	}

	s.logger.Info("join request accepted",
		zap.Uint("lobby_id", id),
		zap.String("uid", requestUID),
		zap.Bool("reached_max", counted),
	)
	s.changed(counted)
	return l, nil
}

// RejectRequest drops a pending request. Rejecting a request that does not
// exist is not an error.
func (s *Service) RejectRequest(ctx context.Context, id uint, actor Actor, requestUID string) (err error) {
	defer s.observe("reject", &err)

	var removed bool
	_, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if l.HostID != actor.UID {
			return Mutation{}, ErrNotHost
		}
		if removed = removeRequest(l, requestUID); !removed {
			return Mutation{Change: Keep}, nil
		}
		return Mutation{Change: Save}, nil
	})
	if err != nil {
		return s.wrap("reject", err)
	}

	if removed {
		s.logger.Info("join request rejected", zap.Uint("lobby_id", id), zap.String("uid", requestUID))
		s.changed(false)
	}
	return nil
}

// Join adds actor directly as a player, without a request.
func (s *Service) Join(ctx context.Context, id uint, actor Actor) (l *models.Lobby, err error) {
	defer s.observe("join", &err)

	var counted bool
	l, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if playerIndex(l, actor.UID) >= 0 {
			return Mutation{}, ErrAlreadyJoined
		}
		if StateOf(l) == StateFull {
			return Mutation{}, ErrLobbyFull
		}
		removeRequest(l, actor.UID)
		l.Players = append(l.Players, models.LobbyPlayer{
			LobbyID:  l.ID,
			UID:      actor.UID,
			Name:     actor.Name,
			AvatarID: actor.AvatarID,
		})
		counted = settle(l)
		return Mutation{Change: Save, CountSuccess: counted}, nil
	})
	if err != nil {
		return nil, s.wrap("join", err)
	}

	s.logger.Info("lobby joined", zap.Uint("lobby_id", id), zap.String("uid", actor.UID))
	s.changed(counted)
	return l, nil
}

// Leave removes actor from the lobby. A host can only leave when they are the
// last player, which disbands the lobby.
func (s *Service) Leave(ctx context.Context, id uint, actor Actor) (state State, err error) {
	defer s.observe("leave", &err)

	l, err := s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if playerIndex(l, actor.UID) < 0 {
			return Mutation{}, ErrNotMember
		}
		if l.HostID == actor.UID {
			if len(l.Players) > 1 {
				return Mutation{}, ErrHostMustTransfer
			}
			return Mutation{Change: Remove}, nil
		}
		removePlayer(l, actor.UID)
		if len(l.Players) == 0 {
			return Mutation{Change: Remove}, nil
		}
		return Mutation{Change: Save}, nil
	})
	if err != nil {
		return "", s.wrap("leave", err)
	}

	state = StateOf(l)
	s.logger.Info("lobby left",
		zap.Uint("lobby_id", id),
		zap.String("uid", actor.UID),
		zap.String("state", string(state)),
	)
	s.changed(false)
	return state, nil
}

// Kick removes a member (and any stray request of theirs). The success
// counter is never decremented.
func (s *Service) Kick(ctx context.Context, id uint, actor Actor, targetUID string) (l *models.Lobby, err error) {
	defer s.observe("kick", &err)

	l, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if l.HostID != actor.UID {
			return Mutation{}, ErrNotHost
		}
		if targetUID == l.HostID {
			return Mutation{}, ErrKickHost
		}
		kicked := removePlayer(l, targetUID)
		dropped := removeRequest(l, targetUID)
		if !kicked && !dropped {
			return Mutation{}, ErrMemberNotFound
		}
		return Mutation{Change: Save}, nil
	})
	if err != nil {
		return nil, s.wrap("kick", err)
	}

	s.logger.Info("member kicked", zap.Uint("lobby_id", id), zap.String("uid", targetUID))
	s.changed(false)
	return l, nil
}

// TransferHost hands leadership to another player. The contact snapshot is
// cleared; the new host has to opt in again through an update.
func (s *Service) TransferHost(ctx context.Context, id uint, actor Actor, newHostUID string) (l *models.Lobby, err error) {
	defer s.observe("transfer", &err)

	l, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if l.HostID != actor.UID {
			return Mutation{}, ErrNotHost
		}
		if newHostUID == l.HostID {
			return Mutation{}, ErrAlreadyHost
		}
		i := playerIndex(l, newHostUID)
		if i < 0 {
			return Mutation{}, ErrNewHostNotFound
		}
		l.HostID = l.Players[i].UID
		l.HostName = l.Players[i].Name
		l.HostMeta = models.HostMeta{}
		return Mutation{Change: Save}, nil
	})
	if err != nil {
		return nil, s.wrap("transfer", err)
	}

	s.logger.Info("host transferred",
		zap.Uint("lobby_id", id),
		zap.String("from", actor.UID),
		zap.String("to", newHostUID),
	)
	s.changed(false)
	return l, nil
}

// Disband deletes the lobby. Only the host may disband.
func (s *Service) Disband(ctx context.Context, id uint, actor Actor) (err error) {
	defer s.observe("disband", &err)

	_, err = s.store.Mutate(ctx, id, func(l *models.Lobby) (Mutation, error) {
		if l.HostID != actor.UID {
			return Mutation{}, ErrNotHost
		}
		return Mutation{Change: Remove}, nil
	})
	if err != nil {
		return s.wrap("disband", err)
	}

	s.logger.Info("lobby disbanded", zap.Uint("lobby_id", id), zap.String("host_id", actor.UID))
	s.changed(false)
	return nil
}

// PurgeUser removes every trace of a deleted account: hosted lobbies are
// deleted, memberships and requests elsewhere are dropped. Success counts are
// left as they are.
func (s *Service) PurgeUser(ctx context.Context, uid string) (err error) {
	defer s.observe("purge_user", &err)

	n, err := s.store.PurgeUser(ctx, uid)
	if err != nil {
		return s.wrap("purge_user", err)
	}
	if n > 0 {
		s.logger.Info("user purged from lobbies", zap.String("uid", uid), zap.Int64("lobbies", n))
		s.changed(false)
	}
	return nil
}

// PurgeStale deletes lobbies whose event date is before cutoff.
func (s *Service) PurgeStale(ctx context.Context, cutoff time.Time) (n int64, err error) {
	defer s.observe("purge_stale", &err)

	n, err = s.store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, s.wrap("purge_stale", err)
	}
	if n > 0 {
		s.logger.Info("stale lobbies deleted", zap.Int64("count", n), zap.Time("cutoff", cutoff))
		s.changed(false)
	}
	return n, nil
}

func (s *Service) changed(counted bool) {
	if counted {
		if s.recorder != nil {
			s.recorder.RecordSuccessfulSquad()
		}
		s.notifier.Notify(EventLobbiesUpdated, EventStatsUpdated)
		return
	}
	s.notifier.Notify(EventLobbiesUpdated)
}

func (s *Service) observe(op string, err *error) {
	if s.recorder != nil {
		s.recorder.RecordOperation(op, *err)
	}
}

// wrap passes classified errors through and turns everything else into a
// storage error.
func (s *Service) wrap(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Error("lobby store failure", zap.String("op", op), zap.Error(err))
	return apperr.Storage(err)
}

func applyDetails(l *models.Lobby, d Details) error {
	title := textutil.Clean(d.Title)
	if title == "" {
		return apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return apperr.Validation("title is too long")
	}
	description := textutil.Clean(d.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return apperr.Validation("description is too long")
	}
	if !validCategory(d.Category) {
		return apperr.Validation("category is invalid")
	}
	if !validSkill(d.Skill) {
		return apperr.Validation("skill is invalid")
	}
	if d.MaxPlayers < 1 || d.MaxPlayers > maxCapacity {
		return apperr.Validation("maxPlayers must be between 1 and 100")
	}
	eventDate, err := ParseEventDate(d.EventDate)
	if err != nil {
		return err
	}

	l.Title = title
	l.Description = description
	l.Category = d.Category
	l.Location = textutil.Clean(d.Location)
	l.Skill = d.Skill
	l.EventDate = eventDate
	l.MaxPlayers = d.MaxPlayers
	return nil
}

func copyDetails(dst, src *models.Lobby) {
	dst.Title = src.Title
	dst.Description = src.Description
	dst.Category = src.Category
	dst.Location = src.Location
	dst.Skill = src.Skill
	dst.EventDate = src.EventDate
	dst.MaxPlayers = src.MaxPlayers
}

func validCategory(c models.Category) bool {
	switch c {
	case models.CategoryHackathon, models.CategoryGaming, models.CategorySports,
		models.CategoryJamming, models.CategoryProject, models.CategoryStudy,
		models.CategoryCreative:
		return true
	}
	return false
}

func validSkill(s models.SkillLevel) bool {
	switch s {
	case models.SkillBeginner, models.SkillIntermediate, models.SkillAdvanced, models.SkillPro:
		return true
	}
	return false
}
