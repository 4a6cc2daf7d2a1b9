package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/visitor-identity/internal/domain"
	"github.com/spec-kit/visitor-identity/internal/events"
	"github.com/spec-kit/visitor-identity/internal/id"
	"github.com/spec-kit/visitor-identity/internal/repository"
	apperrors "github.com/spec-kit/visitor-identity/pkg/util"
)

// SessionService owns the single live session and mediates every write into
// the registry, keeping the currentUser projection and the users slot in step.
type SessionService struct {
	mu         sync.Mutex
	users      repository.UserRegistry
	sessions   repository.SessionRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	newID      func() (string, error)

	current *domain.SessionView
}

// SessionDependencies encapsulates collaborators of the session service.
type SessionDependencies struct {
	UserRepo    repository.UserRegistry
	SessionRepo repository.SessionRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
	NewID       func() (string, error)
}

// NewSessionService builds the service in the Anonymous state. Call Start to
// bootstrap the owner and restore a persisted session.
func NewSessionService(deps SessionDependencies) *SessionService {
	s := &SessionService{
		users:      deps.UserRepo,
		sessions:   deps.SessionRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Now,
		newID:      deps.NewID,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = id.New
	}
	return s
}

// Start bootstraps the owner account and then restores any persisted session.
func (s *SessionService) Start(ctx context.Context, owner repository.OwnerAccount) error {
	if _, err := s.users.Bootstrap(ctx, owner); err != nil {
		return fmt.Errorf("bootstrap owner: %w", err)
	}
	return s.Restore(ctx)
}

// Current returns a copy of the live session, or nil when anonymous.
func (s *SessionService) Current() *domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	view := s.current.Clone()
	return &view
}

// Authenticated reports whether a session is live.
func (s *SessionService) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Restore re-attaches the session persisted in the store. A reference to a
// record that no longer exists is cleared and the service stays anonymous.
// LoginCount is not incremented.
func (s *SessionService) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.sessions.Load(ctx)
	if err != nil {
		return err
	}
	if stored == nil {
		s.current = nil
		return s.sessions.Clear(ctx)
	}

	now := s.now()
	active := true
	rec, err := s.users.Update(ctx, stored.ID, domain.UserPatch{LastLoginAt: &now, IsActive: &active})
	if err != nil {
		return err
	}
	if rec == nil {
		s.logger.Info("stored session references a missing user; clearing", zap.String("user_id", stored.ID))
		s.current = nil
		return s.sessions.Clear(ctx)
	}

	if err := s.adopt(ctx, *rec); err != nil {
		return err
	}
	s.publish(ctx, events.EventRestored, rec.ID, nil)
	return nil
}

// Login authenticates by exact email and secret. A mismatch returns
// ErrInvalidCredentials and touches nothing.
func (s *SessionService) Login(ctx context.Context, email, secret string) (*domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.users.Authenticate(ctx, email, secret)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.deactivatePrevious(ctx, rec.ID); err != nil {
		return nil, err
	}

	now := s.now()
	count := rec.LoginCount + 1
	active := true
	updated, err := s.users.Update(ctx, rec.ID, domain.UserPatch{
		LoginCount:  &count,
		LastLoginAt: &now,
		IsActive:    &active,
		Activity:    "Logged in",
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.adopt(ctx, *updated); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventLoggedIn, updated.ID, nil)
	return s.snapshot(), nil
}

// Signup creates a non-owner account and opens a session for it.
func (s *SessionService) Signup(ctx context.Context, email, secret, name string) (*domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.ErrDuplicateEmail
	}

	userID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	now := s.now()
	rec := domain.UserRecord{
		ID:          userID,
		Name:        name,
		Email:       email,
		Secret:      secret,
		IsOwner:     false,
		LoginCount:  1,
		CreatedAt:   now,
		LastLoginAt: now,
		IsActive:    true,
	}
	if err := s.users.Insert(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.deactivatePrevious(ctx, userID); err != nil {
		return nil, err
	}
	// The creation entry goes through the registry so it shares the activity format.
	created, err := s.users.AppendActivity(ctx, userID, "Account created")
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("user %s vanished after insert", userID)
	}

	if err := s.adopt(ctx, *created); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventSignedUp, userID, nil)
	return s.snapshot(), nil
}

// Logout closes the session. Logging out while anonymous is OutcomeUnchanged.
func (s *SessionService) Logout(ctx context.Context) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return domain.OutcomeUnchanged, nil
	}

	userID := s.current.ID
	inactive := false
	if _, err := s.users.Update(ctx, userID, domain.UserPatch{IsActive: &inactive}); err != nil {
		return "", err
	}
	if err := s.sessions.Clear(ctx); err != nil {
		return "", err
	}
	s.current = nil
	s.publish(ctx, events.EventLoggedOut, userID, nil)
	return domain.OutcomeOK, nil
}

// UpdateProfile merges name, age and occupation into the session and its record.
func (s *SessionService) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return domain.OutcomeForbidden, nil
	}

	outcome, err := s.apply(ctx, update.Patch())
	if err != nil || !outcome.Applied() {
		return outcome, err
	}
	s.publish(ctx, events.EventProfileUpdated, s.current.ID, events.ProfilePayload{Fields: profileFields(update)})
	return outcome, nil
}

// AddActivity prepends a timestamped entry to the current user's log.
func (s *SessionService) AddActivity(ctx context.Context, message string) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return domain.OutcomeForbidden, nil
	}
	if message == "" {
		return domain.OutcomeUnchanged, nil
	}
	return s.apply(ctx, domain.UserPatch{Activity: message})
}

// IncrementLoginCount bumps the current user's login counter by one.
func (s *SessionService) IncrementLoginCount(ctx context.Context) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return domain.OutcomeForbidden, nil
	}
	count := s.current.LoginCount + 1
	return s.apply(ctx, domain.UserPatch{LoginCount: &count})
}

// MakeOwner grants owner rights to targetID. Only an owner session may do so.
func (s *SessionService) MakeOwner(ctx context.Context, targetID string) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsOwner {
		return domain.OutcomeForbidden, nil
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return "", err
	}
	if target == nil {
		return domain.OutcomeNotFound, nil
	}
	if target.IsOwner {
		return domain.OutcomeUnchanged, nil
	}

	owner := true
	if _, err := s.users.Update(ctx, targetID, domain.UserPatch{IsOwner: &owner}); err != nil {
		return "", err
	}
	actorID := s.current.ID
	if _, err := s.apply(ctx, domain.UserPatch{Activity: fmt.Sprintf("Made user %s an owner", target.Name)}); err != nil {
		return "", err
	}
	s.publish(ctx, events.EventOwnerGranted, actorID, events.TargetPayload{TargetID: targetID, TargetName: target.Name})
	return domain.OutcomeOK, nil
}

// DeleteUser removes targetID. Only an owner may delete, and never themselves.
func (s *SessionService) DeleteUser(ctx context.Context, targetID string) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || !s.current.IsOwner || targetID == s.current.ID {
		return domain.OutcomeForbidden, nil
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return "", err
	}
	if target == nil {
		return domain.OutcomeNotFound, nil
	}

	if _, err := s.users.Delete(ctx, targetID); err != nil {
		return "", err
	}
	actorID := s.current.ID
	if _, err := s.apply(ctx, domain.UserPatch{Activity: "Deleted user account: " + target.Name}); err != nil {
		return "", err
	}
	s.publish(ctx, events.EventUserDeleted, actorID, events.TargetPayload{TargetID: targetID, TargetName: target.Name})
	return domain.OutcomeOK, nil
}

// ListUsers returns every registry record without secrets, in insertion order.
func (s *SessionService) ListUsers(ctx context.Context) ([]domain.SessionView, error) {
	return s.users.List(ctx)
}

// ActivitiesOf returns the target's log, newest first; empty when absent.
func (s *SessionService) ActivitiesOf(ctx context.Context, targetID string) ([]string, error) {
	rec, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.ActivityLog == nil {
		return []string{}, nil
	}
	return rec.ActivityLog, nil
}

// apply is the single write path for changes to the session's own record: it
// patches the registry, then rebuilds and persists the view from what the
// registry stored. A record deleted underneath the session ends the session.
// Callers hold s.mu and have checked s.current != nil.
func (s *SessionService) apply(ctx context.Context, patch domain.UserPatch) (domain.Outcome, error) {
	rec, err := s.users.Update(ctx, s.current.ID, patch)
	if err != nil {
		return "", err
	}
	if rec == nil {
		s.logger.Warn("session user no longer in registry; dropping session", zap.String("user_id", s.current.ID))
		s.current = nil
		if err := s.sessions.Clear(ctx); err != nil {
			return "", err
		}
		return domain.OutcomeNotFound, nil
	}
	if err := s.adopt(ctx, *rec); err != nil {
		return "", err
	}
	return domain.OutcomeOK, nil
}

// adopt makes rec the live session and persists its view.
func (s *SessionService) adopt(ctx context.Context, rec domain.UserRecord) error {
	view := rec.View()
	if err := s.sessions.Save(ctx, view); err != nil {
		return err
	}
	s.current = &view
	return nil
}

// deactivatePrevious clears IsActive for a different user whose session is
// being replaced.
func (s *SessionService) deactivatePrevious(ctx context.Context, nextID string) error {
	if s.current == nil || s.current.ID == nextID {
		return nil
	}
	inactive := false
	if _, err := s.users.Update(ctx, s.current.ID, domain.UserPatch{IsActive: &inactive}); err != nil {
		return err
	}
	s.publish(ctx, events.EventLoggedOut, s.current.ID, nil)
	s.current = nil
	return nil
}

func (s *SessionService) snapshot() *domain.SessionView {
	if s.current == nil {
		return nil
	}
	view := s.current.Clone()
	return &view
}

func (s *SessionService) publish(ctx context.Context, eventType events.EventType, actorID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	eventID, err := s.newID()
	if err != nil {
		s.logger.Warn("generate event id", zap.Error(err))
	}
	event := events.Event{
		ID:        eventID,
		Type:      eventType,
		ActorID:   actorID,
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func profileFields(update domain.ProfileUpdate) []string {
	var fields []string
	if update.Name != nil {
		fields = append(fields, "name")
	}
	if update.Age != nil {
		fields = append(fields, "age")
	}
	if update.Occupation != nil {
		fields = append(fields, "work")
	}
	return fields
}
