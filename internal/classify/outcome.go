package classify

import "time"

// Outcome is the result of classifying one post. The set of variants is
// closed: only this package can implement it, and every consumer handles all
// of them through Handler.
type Outcome interface {
	// Accept calls the Handler method for the concrete variant.
	Accept(h Handler)
	Kind() Kind
	isOutcome()
}

// Handler has one method per Outcome variant. Adding a variant adds a method
// here, which breaks every handler that does not cover it.
type Handler interface {
	WithinGracePeriod(o WithinGracePeriod)
	ValidSchedule(o ValidSchedule)
	PastSchedule(o PastSchedule)
	InvalidFormat(o InvalidFormat)
}

type Kind string

const (
	KindGrace   Kind = "within_grace_period"
	KindValid   Kind = "valid_schedule"
	KindPast    Kind = "past_schedule"
	KindInvalid Kind = "invalid_format"
)

// WithinGracePeriod means the post is too young to classify.
type WithinGracePeriod struct {
	Age time.Duration
}

// ValidSchedule means the title holds a date strictly after now.
type ValidSchedule struct {
	At time.Time
}

// PastSchedule means the title holds a date at or before now.
type PastSchedule struct {
	At time.Time
}

// InvalidFormat means the title does not match, or its date does not parse.
// Reason is ErrNoMatch or a *DateError.
type InvalidFormat struct {
	Reason error
}

func (o WithinGracePeriod) Accept(h Handler) { h.WithinGracePeriod(o) }
func (o ValidSchedule) Accept(h Handler)     { h.ValidSchedule(o) }
func (o PastSchedule) Accept(h Handler)      { h.PastSchedule(o) }
func (o InvalidFormat) Accept(h Handler)     { h.InvalidFormat(o) }

func (WithinGracePeriod) Kind() Kind { return KindGrace }
func (ValidSchedule) Kind() Kind     { return KindValid }
func (PastSchedule) Kind() Kind      { return KindPast }
func (InvalidFormat) Kind() Kind     { return KindInvalid }

func (WithinGracePeriod) isOutcome() {}
func (ValidSchedule) isOutcome()     {}
func (PastSchedule) isOutcome()      {}
func (InvalidFormat) isOutcome()     {}
