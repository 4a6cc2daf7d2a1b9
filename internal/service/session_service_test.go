package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/visitor-identity/internal/domain"
	"github.com/spec-kit/visitor-identity/internal/events"
	"github.com/spec-kit/visitor-identity/internal/id"
	"github.com/spec-kit/visitor-identity/internal/kvstore"
	"github.com/spec-kit/visitor-identity/internal/repository"
	apperrors "github.com/spec-kit/visitor-identity/pkg/util"
)

var testOwner = repository.OwnerAccount{Email: "owner@example.test", Name: "Owner", Secret: "owner-secret"}

type fixture struct {
	store    *kvstore.MemStore
	users    repository.UserRegistry
	sessions repository.SessionRepository
	svc      *SessionService
	clock    *stepClock
	events   []events.Event
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: kvstore.NewMemStore(),
		clock: &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.start(t)
	return f
}

// start builds a fresh service over the fixture's store, like a process restart.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	nextID := id.Sequence("id")
	f.users = repository.NewUserRegistry(repository.RegistryDependencies{
		Store:      f.store,
		Now:        f.clock.Now,
		NewID:      nextID,
		FormatTime: func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	})
	f.sessions = repository.NewSessionRepository(f.store, nil)

	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range events.AllTypes {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.events = append(f.events, e)
			return nil
		})
	}

	f.svc = NewSessionService(SessionDependencies{
		UserRepo:    f.users,
		SessionRepo: f.sessions,
		Dispatcher:  dispatcher,
		Now:         f.clock.Now,
		NewID:       nextID,
	})
	if err := f.svc.Start(context.Background(), testOwner); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func (f *fixture) record(t *testing.T, email string) *domain.UserRecord {
	t.Helper()
	rec, err := f.users.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if rec == nil {
		t.Fatalf("no record for %s", email)
	}
	return rec
}

func (f *fixture) storedSession(t *testing.T) *domain.SessionView {
	t.Helper()
	v, err := f.sessions.Load(context.Background())
	if err != nil {
		t.Fatalf("Load session failed: %v", err)
	}
	return v
}

func (f *fixture) loginOwner(t *testing.T) *domain.SessionView {
	t.Helper()
	v, err := f.svc.Login(context.Background(), testOwner.Email, testOwner.Secret)
	if err != nil {
		t.Fatalf("owner login failed: %v", err)
	}
	return v
}

func TestSignup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	view, err := f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	rec := f.record(t, "a@x.com")
	if rec.IsOwner || rec.LoginCount != 1 || !rec.IsActive {
		t.Errorf("unexpected record flags: %+v", rec)
	}
	if len(rec.ActivityLog) != 1 || !strings.HasPrefix(rec.ActivityLog[0], "Account created at ") {
		t.Errorf("unexpected activity: %v", rec.ActivityLog)
	}
	if !rec.CreatedAt.Equal(rec.LastLoginAt) {
		t.Errorf("Expected createdAt == lastLoginAt, got %v / %v", rec.CreatedAt, rec.LastLoginAt)
	}
	if view.ID != rec.ID || view.Name != "Alice" {
		t.Errorf("session does not mirror record: %+v", view)
	}

	stored := f.storedSession(t)
	if stored == nil || stored.ID != rec.ID {
		t.Errorf("Expected persisted session for %s, got %+v", rec.ID, stored)
	}
	raw, _ := f.store.Get(ctx, repository.CurrentUserKey)
	if strings.Contains(string(raw), `"password"`) {
		t.Errorf("session slot contains secret: %s", raw)
	}
}

func TestSignup_DuplicateEmailLeavesRegistryUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Signup(ctx, "a@x.com", "p", "Alice"); err != nil {
		t.Fatal(err)
	}
	before, _ := f.users.List(ctx)
	alice := f.record(t, "a@x.com")

	_, err := f.svc.Signup(ctx, "a@x.com", "other", "Mallory")
	if !errors.Is(err, apperrors.ErrDuplicateEmail) {
		t.Fatalf("Expected ErrDuplicateEmail, got %v", err)
	}

	after, _ := f.users.List(ctx)
	if len(after) != len(before) {
		t.Errorf("record count changed: %d -> %d", len(before), len(after))
	}
	again := f.record(t, "a@x.com")
	if again.Name != alice.Name || again.Secret != alice.Secret || again.LoginCount != alice.LoginCount {
		t.Errorf("existing record changed: %+v -> %+v", alice, again)
	}
	if cur := f.svc.Current(); cur == nil || cur.ID != alice.ID {
		t.Errorf("Expected Alice's session to survive, got %+v", cur)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	_, _ = f.svc.Logout(ctx)
	before := f.record(t, "a@x.com")

	view, err := f.svc.Login(ctx, "a@x.com", "p")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	after := f.record(t, "a@x.com")
	if after.LoginCount != before.LoginCount+1 {
		t.Errorf("Expected loginCount %d, got %d", before.LoginCount+1, after.LoginCount)
	}
	if len(after.ActivityLog) != len(before.ActivityLog)+1 {
		t.Errorf("Expected one new activity entry, got %v", after.ActivityLog)
	}
	if !strings.HasPrefix(after.ActivityLog[0], "Logged in at ") {
		t.Errorf("Expected login entry first, got %q", after.ActivityLog[0])
	}
	if !after.IsActive || !after.LastLoginAt.After(before.LastLoginAt) {
		t.Errorf("Expected active record with newer lastLogin: %+v", after)
	}
	if view.LoginCount != after.LoginCount {
		t.Errorf("session loginCount %d != record %d", view.LoginCount, after.LoginCount)
	}
}

func TestLogin_WrongSecret(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	_, _ = f.svc.Logout(ctx)
	before := f.record(t, "a@x.com")

	for _, creds := range [][2]string{{"a@x.com", "wrong"}, {"nobody@x.com", "p"}, {"A@x.com", "p"}} {
		view, err := f.svc.Login(ctx, creds[0], creds[1])
		if !errors.Is(err, apperrors.ErrInvalidCredentials) {
			t.Errorf("%v: expected ErrInvalidCredentials, got %v", creds, err)
		}
		if view != nil {
			t.Errorf("%v: expected no session, got %+v", creds, view)
		}
	}

	after := f.record(t, "a@x.com")
	if after.LoginCount != before.LoginCount || after.IsActive != before.IsActive ||
		len(after.ActivityLog) != len(before.ActivityLog) {
		t.Errorf("failed login changed state: %+v -> %+v", before, after)
	}
	if f.svc.Authenticated() {
		t.Error("Expected anonymous after failed login")
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")

	outcome, err := f.svc.Logout(ctx)
	if err != nil || outcome != domain.OutcomeOK {
		t.Fatalf("Logout: %v, %v", outcome, err)
	}
	if rec := f.record(t, "a@x.com"); rec.IsActive {
		t.Error("Expected isActive=false after logout")
	}
	if f.storedSession(t) != nil {
		t.Error("Expected no persisted session after logout")
	}
	if f.svc.Current() != nil {
		t.Error("Expected anonymous after logout")
	}

	outcome, err = f.svc.Logout(ctx)
	if err != nil || outcome != domain.OutcomeUnchanged {
		t.Errorf("second Logout: expected Unchanged, got %v, %v", outcome, err)
	}
}

func TestScenario_SignupLoginLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Signup(ctx, "a@x.com", "p", "Alice"); err != nil {
		t.Fatal(err)
	}
	users, _ := f.users.List(ctx)
	nonOwners := 0
	for _, u := range users {
		if !u.IsOwner {
			nonOwners++
		}
	}
	if nonOwners != 1 || f.record(t, "a@x.com").LoginCount != 1 {
		t.Fatalf("after signup: nonOwners=%d", nonOwners)
	}

	if _, err := f.svc.Login(ctx, "a@x.com", "p"); err != nil {
		t.Fatal(err)
	}
	alice := f.record(t, "a@x.com")
	if alice.LoginCount != 2 || len(alice.ActivityLog) != 2 || !strings.HasPrefix(alice.ActivityLog[0], "Logged in") {
		t.Fatalf("after login: %+v", alice)
	}

	if _, err := f.svc.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if f.storedSession(t) != nil || f.record(t, "a@x.com").IsActive {
		t.Fatal("after logout: session or active flag left behind")
	}
}

func TestLogin_ReplacesPreviousSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")

	if _, err := f.svc.Login(ctx, testOwner.Email, testOwner.Secret); err != nil {
		t.Fatal(err)
	}
	if f.record(t, "a@x.com").IsActive {
		t.Error("Expected previous user to be marked inactive")
	}
	if !f.record(t, testOwner.Email).IsActive {
		t.Error("Expected owner to be active")
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	before := f.record(t, "a@x.com")

	f.start(t)

	cur := f.svc.Current()
	if cur == nil || cur.ID != before.ID {
		t.Fatalf("Expected restored session for Alice, got %+v", cur)
	}
	after := f.record(t, "a@x.com")
	if after.LoginCount != before.LoginCount {
		t.Errorf("restore changed loginCount: %d -> %d", before.LoginCount, after.LoginCount)
	}
	if !after.IsActive || !after.LastLoginAt.After(before.LastLoginAt) {
		t.Errorf("Expected restore to refresh lastLogin and isActive: %+v", after)
	}
	if !cur.LastLoginAt.Equal(after.LastLoginAt) {
		t.Errorf("session lastLogin %v != record %v", cur.LastLoginAt, after.LastLoginAt)
	}
}

func TestRestore_MissingRecordClearsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	view, _ := f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	if _, err := f.users.Delete(ctx, view.ID); err != nil {
		t.Fatal(err)
	}

	f.start(t)

	if f.svc.Current() != nil {
		t.Error("Expected anonymous after restoring a deleted user")
	}
	if f.storedSession(t) != nil {
		t.Error("Expected stale session reference to be cleared")
	}
}

func TestRestore_MalformedSessionSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_ = f.store.Set(ctx, repository.CurrentUserKey, []byte("{{{"))

	f.start(t)

	if f.svc.Current() != nil {
		t.Error("Expected anonymous")
	}
	if _, err := f.store.Get(ctx, repository.CurrentUserKey); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Errorf("Expected malformed slot cleared, got %v", err)
	}
}

func TestBootstrap_SingleOwnerAcrossRestarts(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.start(t)

	users, _ := f.users.List(context.Background())
	count := 0
	for _, u := range users {
		if u.Email == testOwner.Email {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one owner record, got %d", count)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	outcome, _ := f.svc.UpdateProfile(ctx, domain.ProfileUpdate{})
	if outcome != domain.OutcomeForbidden {
		t.Errorf("Expected Forbidden while anonymous, got %v", outcome)
	}

	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	name, age, work := "Alicia", 30, "Engineer"
	outcome, err := f.svc.UpdateProfile(ctx, domain.ProfileUpdate{Name: &name, Age: &age, Occupation: &work})
	if err != nil || outcome != domain.OutcomeOK {
		t.Fatalf("UpdateProfile: %v, %v", outcome, err)
	}

	rec := f.record(t, "a@x.com")
	cur := f.svc.Current()
	stored := f.storedSession(t)
	for label, v := range map[string]*domain.SessionView{"current": cur, "stored": stored} {
		if v.Name != "Alicia" || v.Age == nil || *v.Age != 30 || v.Occupation == nil || *v.Occupation != "Engineer" {
			t.Errorf("%s session not updated: %+v", label, v)
		}
	}
	if rec.Name != "Alicia" || rec.Email != "a@x.com" || rec.Secret != "p" || rec.IsOwner {
		t.Errorf("unexpected record after update: %+v", rec)
	}
}

func TestAddActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if outcome, _ := f.svc.AddActivity(ctx, "Viewed dashboard"); outcome != domain.OutcomeForbidden {
		t.Errorf("Expected Forbidden while anonymous, got %v", outcome)
	}

	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	for i := 1; i <= 25; i++ {
		if _, err := f.svc.AddActivity(ctx, fmt.Sprintf("step %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	rec := f.record(t, "a@x.com")
	cur := f.svc.Current()
	if len(rec.ActivityLog) != domain.MaxActivityEntries || len(cur.ActivityLog) != domain.MaxActivityEntries {
		t.Fatalf("Expected %d entries, got record=%d session=%d", domain.MaxActivityEntries, len(rec.ActivityLog), len(cur.ActivityLog))
	}
	for i := range rec.ActivityLog {
		if rec.ActivityLog[i] != cur.ActivityLog[i] {
			t.Errorf("entry %d differs: %q vs %q", i, rec.ActivityLog[i], cur.ActivityLog[i])
		}
	}
	if !strings.HasPrefix(rec.ActivityLog[0], "step 25 at ") || !strings.HasPrefix(rec.ActivityLog[19], "step 6 at ") {
		t.Errorf("unexpected ordering: first=%q last=%q", rec.ActivityLog[0], rec.ActivityLog[19])
	}

	if outcome, _ := f.svc.AddActivity(ctx, ""); outcome != domain.OutcomeUnchanged {
		t.Errorf("Expected Unchanged for empty message, got %v", outcome)
	}
}

func TestIncrementLoginCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if outcome, _ := f.svc.IncrementLoginCount(ctx); outcome != domain.OutcomeForbidden {
		t.Errorf("Expected Forbidden while anonymous, got %v", outcome)
	}

	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	if outcome, err := f.svc.IncrementLoginCount(ctx); err != nil || outcome != domain.OutcomeOK {
		t.Fatalf("IncrementLoginCount: %v, %v", outcome, err)
	}
	if rec := f.record(t, "a@x.com"); rec.LoginCount != 2 || f.svc.Current().LoginCount != 2 {
		t.Errorf("Expected loginCount 2, got record=%d", rec.LoginCount)
	}
}

func TestMakeOwner_ByOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	f.loginOwner(t)
	ownerBefore := f.record(t, testOwner.Email)

	outcome, err := f.svc.MakeOwner(ctx, alice.ID)
	if err != nil || outcome != domain.OutcomeOK {
		t.Fatalf("MakeOwner: %v, %v", outcome, err)
	}

	if !f.record(t, "a@x.com").IsOwner {
		t.Error("Expected Alice to be owner")
	}
	ownerAfter := f.record(t, testOwner.Email)
	if len(ownerAfter.ActivityLog) != len(ownerBefore.ActivityLog)+1 {
		t.Fatalf("Expected one new owner activity, got %v", ownerAfter.ActivityLog)
	}
	if !strings.HasPrefix(ownerAfter.ActivityLog[0], "Made user Alice an owner at ") {
		t.Errorf("unexpected owner activity: %q", ownerAfter.ActivityLog[0])
	}
	if f.svc.Current().ActivityLog[0] != ownerAfter.ActivityLog[0] {
		t.Error("session activity not refreshed")
	}

	outcome, _ = f.svc.MakeOwner(ctx, alice.ID)
	if outcome != domain.OutcomeUnchanged {
		t.Errorf("Expected Unchanged for existing owner, got %v", outcome)
	}
	outcome, _ = f.svc.MakeOwner(ctx, "ghost")
	if outcome != domain.OutcomeNotFound {
		t.Errorf("Expected NotFound for missing target, got %v", outcome)
	}
	if got := f.record(t, testOwner.Email); len(got.ActivityLog) != len(ownerAfter.ActivityLog) {
		t.Error("no-op MakeOwner calls should not log activity")
	}
}

func TestMakeOwner_ByNonOwnerIsForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob, _ := f.svc.Signup(ctx, "b@x.com", "p", "Bob")
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")

	before, _ := f.users.List(ctx)
	outcome, err := f.svc.MakeOwner(ctx, bob.ID)
	if err != nil || outcome != domain.OutcomeForbidden {
		t.Fatalf("Expected Forbidden, got %v, %v", outcome, err)
	}
	after, _ := f.users.List(ctx)
	for i := range before {
		if before[i].IsOwner != after[i].IsOwner {
			t.Errorf("isOwner changed for %s", before[i].Email)
		}
	}

	_, _ = f.svc.Logout(ctx)
	if outcome, _ := f.svc.MakeOwner(ctx, bob.ID); outcome != domain.OutcomeForbidden {
		t.Errorf("Expected Forbidden while anonymous, got %v", outcome)
	}
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	owner := f.loginOwner(t)

	outcome, err := f.svc.DeleteUser(ctx, owner.ID)
	if err != nil || outcome != domain.OutcomeForbidden {
		t.Errorf("self-delete: expected Forbidden, got %v, %v", outcome, err)
	}
	if rec, _ := f.users.FindByID(ctx, owner.ID); rec == nil {
		t.Fatal("owner record removed by self-delete")
	}

	outcome, err = f.svc.DeleteUser(ctx, alice.ID)
	if err != nil || outcome != domain.OutcomeOK {
		t.Fatalf("DeleteUser: %v, %v", outcome, err)
	}
	if rec, _ := f.users.FindByID(ctx, alice.ID); rec != nil {
		t.Error("Expected Alice to be deleted")
	}
	if first := f.record(t, testOwner.Email).ActivityLog[0]; !strings.HasPrefix(first, "Deleted user account: Alice at ") {
		t.Errorf("unexpected owner activity: %q", first)
	}

	outcome, _ = f.svc.DeleteUser(ctx, alice.ID)
	if outcome != domain.OutcomeNotFound {
		t.Errorf("second delete: expected NotFound, got %v", outcome)
	}
}

func TestDeleteUser_ByNonOwnerIsForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.record(t, testOwner.Email)
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")

	if outcome, _ := f.svc.DeleteUser(ctx, owner.ID); outcome != domain.OutcomeForbidden {
		t.Errorf("Expected Forbidden, got %v", outcome)
	}
	if rec, _ := f.users.FindByID(ctx, owner.ID); rec == nil {
		t.Error("owner deleted by non-owner")
	}
}

func TestSessionDroppedWhenRecordVanishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.svc.Signup(ctx, "a@x.com", "p", "Alice")

	// Another writer removes the record underneath the live session.
	_, _ = f.users.Delete(ctx, alice.ID)

	outcome, err := f.svc.AddActivity(ctx, "Edited project")
	if err != nil || outcome != domain.OutcomeNotFound {
		t.Fatalf("Expected NotFound, got %v, %v", outcome, err)
	}
	if f.svc.Current() != nil || f.storedSession(t) != nil {
		t.Error("Expected session to be dropped")
	}
}

func TestListUsersAndActivitiesOf(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.svc.Signup(ctx, "a@x.com", "p", "Alice")

	users, err := f.svc.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Email != testOwner.Email || users[1].Email != "a@x.com" {
		t.Errorf("unexpected user list: %+v", users)
	}

	acts, _ := f.svc.ActivitiesOf(ctx, alice.ID)
	if len(acts) != 1 {
		t.Errorf("Expected 1 activity, got %v", acts)
	}
	acts, _ = f.svc.ActivitiesOf(ctx, "ghost")
	if acts == nil || len(acts) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", acts)
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.Signup(ctx, "a@x.com", "p", "Alice")

	cur := f.svc.Current()
	cur.Name = "tampered"
	cur.ActivityLog[0] = "tampered"

	again := f.svc.Current()
	if again.Name != "Alice" || again.ActivityLog[0] == "tampered" {
		t.Errorf("Current leaked internal state: %+v", again)
	}
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.svc.Signup(ctx, "a@x.com", "p", "Alice")
	f.loginOwner(t)
	_, _ = f.svc.MakeOwner(ctx, alice.ID)
	_, _ = f.svc.Logout(ctx)

	var types []events.EventType
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	want := []events.EventType{
		events.EventSignedUp,
		events.EventLoggedOut, // Alice replaced by the owner
		events.EventLoggedIn,
		events.EventOwnerGranted,
		events.EventLoggedOut,
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, types)
	}
	granted := f.events[3].Payload.(events.TargetPayload)
	if granted.TargetID != alice.ID || granted.TargetName != "Alice" {
		t.Errorf("unexpected payload: %+v", granted)
	}
}
