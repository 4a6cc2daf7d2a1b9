package repository

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/visitor-identity/internal/domain"
	"github.com/spec-kit/visitor-identity/internal/id"
	"github.com/spec-kit/visitor-identity/internal/kvstore"
	apperrors "github.com/spec-kit/visitor-identity/pkg/util"
)

// UsersKey is the store slot holding the ordered registry.
const UsersKey = "users"

// DefaultTimeLayout renders activity timestamps like an en-US locale string.
const DefaultTimeLayout = "1/2/2006, 3:04:05 PM"

// FormatLocal renders t in the process's local zone with DefaultTimeLayout.
func FormatLocal(t time.Time) string {
	return t.Local().Format(DefaultTimeLayout)
}

// OwnerAccount describes the bootstrap owner record.
type OwnerAccount struct {
	Email  string
	Name   string
	Secret string
}

// UserRegistry is the canonical store of user records. Lookups return a nil
// record, not an error, when nothing matches; errors are store failures only.
type UserRegistry interface {
	Bootstrap(ctx context.Context, owner OwnerAccount) (bool, error)
	FindByEmail(ctx context.Context, email string) (*domain.UserRecord, error)
	FindByID(ctx context.Context, id string) (*domain.UserRecord, error)
	Authenticate(ctx context.Context, email, secret string) (*domain.UserRecord, error)
	Insert(ctx context.Context, record domain.UserRecord) error
	Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.UserRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]domain.SessionView, error)
	AppendActivity(ctx context.Context, id, message string) (*domain.UserRecord, error)
}

// RegistryDependencies bundles collaborators of the registry.
type RegistryDependencies struct {
	Store      kvstore.Store
	Logger     *zap.Logger
	Now        func() time.Time
	NewID      func() (string, error)
	FormatTime func(time.Time) string
}

type userRegistry struct {
	store      kvstore.Store
	logger     *zap.Logger
	now        func() time.Time
	newID      func() (string, error)
	formatTime func(time.Time) string
}

// NewUserRegistry returns a registry persisted in the users slot of deps.Store.
func NewUserRegistry(deps RegistryDependencies) UserRegistry {
	r := &userRegistry{
		store:      deps.Store,
		logger:     deps.Logger,
		now:        deps.Now,
		newID:      deps.NewID,
		formatTime: deps.FormatTime,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = id.New
	}
	if r.formatTime == nil {
		r.formatTime = FormatLocal
	}
	return r
}

func (r *userRegistry) Bootstrap(ctx context.Context, owner OwnerAccount) (bool, error) {
	users, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	if indexByEmail(users, owner.Email) >= 0 {
		return false, nil
	}

	ownerID, err := r.newID()
	if err != nil {
		return false, fmt.Errorf("generate owner id: %w", err)
	}
	now := r.now()
	users = append(users, domain.UserRecord{
		ID:          "owner-" + ownerID,
		Name:        owner.Name,
		Email:       owner.Email,
		Secret:      owner.Secret,
		IsOwner:     true,
		ActivityLog: []string{r.activityEntry("Owner account created", now)},
		CreatedAt:   now,
		LastLoginAt: now,
	})
	if err := r.save(ctx, users); err != nil {
		return false, err
	}
	r.logger.Info("owner account bootstrapped", zap.String("email", owner.Email))
	return true, nil
}

func (r *userRegistry) FindByEmail(ctx context.Context, email string) (*domain.UserRecord, error) {
	users, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return recordAt(users, indexByEmail(users, email)), nil
}

func (r *userRegistry) FindByID(ctx context.Context, id string) (*domain.UserRecord, error) {
	users, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return recordAt(users, indexByID(users, id)), nil
}

func (r *userRegistry) Authenticate(ctx context.Context, email, secret string) (*domain.UserRecord, error) {
	user, err := r.FindByEmail(ctx, email)
	if err != nil || user == nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(user.Secret), []byte(secret)) != 1 {
		return nil, nil
	}
	return user, nil
}

func (r *userRegistry) Insert(ctx context.Context, record domain.UserRecord) error {
	users, err := r.load(ctx)
	if err != nil {
		return err
	}
	if indexByEmail(users, record.Email) >= 0 {
		return apperrors.ErrDuplicateEmail
	}
	record.ActivityLog = domain.TrimActivity(record.ActivityLog)
	return r.save(ctx, append(users, record.Clone()))
}

func (r *userRegistry) Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.UserRecord, error) {
	var entry string
	if patch.Activity != "" {
		entry = r.activityEntry(patch.Activity, r.now())
	}
	return r.mutate(ctx, id, func(u *domain.UserRecord) {
		patch.Apply(u)
		if entry != "" {
			u.ActivityLog = domain.PrependActivity(u.ActivityLog, entry)
		}
	})
}

func (r *userRegistry) Delete(ctx context.Context, id string) (bool, error) {
	users, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	idx := indexByID(users, id)
	if idx < 0 {
		return false, nil
	}
	users = append(users[:idx], users[idx+1:]...)
	if err := r.save(ctx, users); err != nil {
		return false, err
	}
	return true, nil
}

func (r *userRegistry) List(ctx context.Context) ([]domain.SessionView, error) {
	users, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.SessionView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views, nil
}

func (r *userRegistry) AppendActivity(ctx context.Context, id, message string) (*domain.UserRecord, error) {
	return r.Update(ctx, id, domain.UserPatch{Activity: message})
}

// mutate applies fn to the record with id and saves. A missing id is a no-op
// reported by a nil record.
func (r *userRegistry) mutate(ctx context.Context, id string, fn func(*domain.UserRecord)) (*domain.UserRecord, error) {
	users, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexByID(users, id)
	if idx < 0 {
		return nil, nil
	}
	fn(&users[idx])
	if err := r.save(ctx, users); err != nil {
		return nil, err
	}
	return recordAt(users, idx), nil
}

func (r *userRegistry) activityEntry(message string, at time.Time) string {
	return fmt.Sprintf("%s at %s", message, r.formatTime(at))
}

// load reads the users slot. A missing or undecodable slot is an empty registry.
func (r *userRegistry) load(ctx context.Context) ([]domain.UserRecord, error) {
	raw, err := r.store.Get(ctx, UsersKey)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}

	var users []domain.UserRecord
	if err := json.Unmarshal(raw, &users); err != nil {
		r.logger.Warn("users slot is malformed; treating registry as empty", zap.Error(err))
		return nil, nil
	}
	return users, nil
}

func (r *userRegistry) save(ctx context.Context, users []domain.UserRecord) error {
	if users == nil {
		users = []domain.UserRecord{}
	}
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	if err := r.store.Set(ctx, UsersKey, raw); err != nil {
		return fmt.Errorf("write users: %w", err)
	}
	return nil
}

func indexByEmail(users []domain.UserRecord, email string) int {
	for i := range users {
		if users[i].Email == email {
			return i
		}
	}
	return -1
}

func indexByID(users []domain.UserRecord, id string) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

func recordAt(users []domain.UserRecord, idx int) *domain.UserRecord {
	if idx < 0 {
		return nil
	}
	rec := users[idx].Clone()
	return &rec
}
