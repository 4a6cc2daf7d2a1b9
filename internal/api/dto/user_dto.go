package dto

import "github.com/spec-kit/visitor-identity/internal/domain"

// SignupRequest payload for new accounts.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileRequest carries the profile fields to change. Absent fields are kept.
type ProfileRequest struct {
	Name *string `json:"name"`
	Age  *int    `json:"age"`
	Work *string `json:"work"`
}

// Update converts the request into a domain update.
func (r ProfileRequest) Update() domain.ProfileUpdate {
	return domain.ProfileUpdate{Name: r.Name, Age: r.Age, Occupation: r.Work}
}

// ActivityRequest appends a message to the caller's activity log.
type ActivityRequest struct {
	Message string `json:"message"`
}

// SessionResponse is returned by signup and login.
type SessionResponse struct {
	User domain.SessionView  `json:"user"`
	Auth domain.SessionToken `json:"auth"`
}

// OutcomeResponse reports the result of a state-changing call.
type OutcomeResponse struct {
	Outcome domain.Outcome      `json:"outcome"`
	User    *domain.SessionView `json:"user,omitempty"`
}

// ActivitiesResponse lists a user's activity log, newest first.
type ActivitiesResponse struct {
	UserID     string   `json:"user_id"`
	Activities []string `json:"activities"`
}
