package domain

import "time"

// MaxActivityEntries bounds every user's activity log.
const MaxActivityEntries = 20

// UserRecord is one durable entry in the registry, secret included.
type UserRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Secret      string    `json:"password"`
	Age         *int      `json:"age,omitempty"`
	Occupation  *string   `json:"work,omitempty"`
	IsOwner     bool      `json:"isOwner"`
	LoginCount  int       `json:"loginCount"`
	ActivityLog []string  `json:"activities"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLogin"`
	IsActive    bool      `json:"isActive"`
}

// SessionView is the secret-free projection of a UserRecord handed to callers.
type SessionView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Age         *int      `json:"age,omitempty"`
	Occupation  *string   `json:"work,omitempty"`
	IsOwner     bool      `json:"isOwner"`
	LoginCount  int       `json:"loginCount"`
	ActivityLog []string  `json:"activities"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLogin"`
	IsActive    bool      `json:"isActive"`
}

// View strips the secret. Slices and pointers are copied so the view never
// aliases registry state.
func (u UserRecord) View() SessionView {
	return SessionView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Age:         cloneInt(u.Age),
		Occupation:  cloneString(u.Occupation),
		IsOwner:     u.IsOwner,
		LoginCount:  u.LoginCount,
		ActivityLog: cloneLog(u.ActivityLog),
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		IsActive:    u.IsActive,
	}
}

// Clone returns a deep copy of the view.
func (v SessionView) Clone() SessionView {
	out := v
	out.Age = cloneInt(v.Age)
	out.Occupation = cloneString(v.Occupation)
	out.ActivityLog = cloneLog(v.ActivityLog)
	return out
}

// Clone returns a deep copy.
func (u UserRecord) Clone() UserRecord {
	out := u
	out.Age = cloneInt(u.Age)
	out.Occupation = cloneString(u.Occupation)
	out.ActivityLog = cloneLog(u.ActivityLog)
	return out
}

// UserPatch lists the mutable fields of a record. Nil fields are left alone.
// ID, Email and Secret are deliberately absent. Activity, when set, is
// timestamped by the registry and left-pushed onto the log after the other
// fields are merged.
type UserPatch struct {
	Activity    string
	Name        *string
	Age         *int
	Occupation  *string
	IsOwner     *bool
	LoginCount  *int
	ActivityLog []string
	LastLoginAt *time.Time
	IsActive    *bool
}

// Apply merges the patch into the record.
func (p UserPatch) Apply(u *UserRecord) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Age != nil {
		u.Age = cloneInt(p.Age)
	}
	if p.Occupation != nil {
		u.Occupation = cloneString(p.Occupation)
	}
	if p.IsOwner != nil {
		u.IsOwner = *p.IsOwner
	}
	if p.LoginCount != nil {
		u.LoginCount = *p.LoginCount
	}
	if p.ActivityLog != nil {
		u.ActivityLog = TrimActivity(cloneLog(p.ActivityLog))
	}
	if p.LastLoginAt != nil {
		u.LastLoginAt = *p.LastLoginAt
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
}

// ProfileUpdate is the subset of fields a user may change about themselves.
type ProfileUpdate struct {
	Name       *string `json:"name,omitempty"`
	Age        *int    `json:"age,omitempty"`
	Occupation *string `json:"work,omitempty"`
}

// Patch converts the update into a registry patch.
func (p ProfileUpdate) Patch() UserPatch {
	return UserPatch{Name: p.Name, Age: p.Age, Occupation: p.Occupation}
}

// PrependActivity left-pushes entry and keeps the newest MaxActivityEntries.
func PrependActivity(log []string, entry string) []string {
	out := make([]string, 0, len(log)+1)
	out = append(out, entry)
	out = append(out, log...)
	return TrimActivity(out)
}

// TrimActivity truncates a newest-first log to MaxActivityEntries.
func TrimActivity(log []string) []string {
	if len(log) > MaxActivityEntries {
		return log[:MaxActivityEntries]
	}
	return log
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneLog(log []string) []string {
	if log == nil {
		return nil
	}
	return append([]string(nil), log...)
}
