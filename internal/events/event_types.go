package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSignedUp       EventType = "session_signed_up"
	EventLoggedIn       EventType = "session_logged_in"
	EventRestored       EventType = "session_restored"
	EventLoggedOut      EventType = "session_logged_out"
	EventProfileUpdated EventType = "profile_updated"
	EventOwnerGranted   EventType = "owner_granted"
	EventUserDeleted    EventType = "user_deleted"
)

// AllTypes lists every event type in emission-independent order.
var AllTypes = []EventType{
	EventSignedUp,
	EventLoggedIn,
	EventRestored,
	EventLoggedOut,
	EventProfileUpdated,
	EventOwnerGranted,
	EventUserDeleted,
}

// Event represents a session lifecycle change emitted by the session service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TargetPayload names the user an owner action was applied to.
type TargetPayload struct {
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`
}

// ProfilePayload lists the profile fields that were supplied.
type ProfilePayload struct {
	Fields []string `json:"fields"`
}
