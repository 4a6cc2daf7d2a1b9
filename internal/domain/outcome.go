package domain

// Outcome reports what a no-op-capable operation actually did.
type Outcome string

const (
	OutcomeOK        Outcome = "OK"
	OutcomeForbidden Outcome = "FORBIDDEN"
	OutcomeNotFound  Outcome = "NOT_FOUND"
	OutcomeUnchanged Outcome = "UNCHANGED"
)

// Applied reports whether state was mutated.
func (o Outcome) Applied() bool {
	return o == OutcomeOK
}
