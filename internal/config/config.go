// Package config holds the static settings the pipeline is initialised
// with. Settings are loaded once at startup from CUE files and treated as
// immutable for the lifetime of the process; anything malformed is a fatal
// configuration error, never a per-change failure.
package config

import (
	"fmt"

	"github.com/openchw/sentry/internal/messages"
	"github.com/openchw/sentry/internal/record"
	"github.com/openchw/sentry/internal/validation"
)

// Settings is the full configuration surface the pipeline consumes.
type Settings struct {
	// ContactTypes lists the configured contact type ids. Defaults to the
	// hardcoded place/person hierarchy when absent.
	ContactTypes []record.ContactType `json:"contact_types,omitempty"`

	// ScheduleMorningHours and ScheduleEveningHours bound the sendable
	// window (local hour of day, inclusive). Defaults: 0 and 23.
	ScheduleMorningHours int `json:"schedule_morning_hours,omitempty"`
	ScheduleEveningHours int `json:"schedule_evening_hours,omitempty"`

	// Muting configures the muting transition; nil disables it.
	Muting *MutingConfig `json:"muting,omitempty"`
}

// MutingConfig is the muting transition's configuration block.
// MuteForms is required; everything else is optional.
type MutingConfig struct {
	MuteForms   []string            `json:"mute_forms"`
	UnmuteForms []string            `json:"unmute_forms,omitempty"`
	Messages    []messages.Template `json:"messages,omitempty"`
	Validations *validation.Config  `json:"validations,omitempty"`
}

// Error is a fatal configuration error raised during startup.
type Error struct {
	Message string
}

// Error implements the error interface. The "Configuration error" prefix is
// load-bearing: operators grep for it to separate deploy problems from
// runtime ones.
func (e *Error) Error() string {
	return fmt.Sprintf("Configuration error: %s", e.Message)
}

// NewError creates a configuration error.
func NewError(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Normalize applies defaults. Call once after loading.
//
// An evening hour of zero means "unset" and falls back to 23, mirroring the
// window test's `hour <= until` semantics where 0 would make the window
// empty.
func (s *Settings) Normalize() {
	if len(s.ContactTypes) == 0 {
		s.ContactTypes = record.DefaultContactTypes
	}
	if s.ScheduleEveningHours == 0 {
		s.ScheduleEveningHours = 23
	}
}

// Validate checks invariants that CUE decoding cannot express.
func (s *Settings) Validate() error {
	if s.ScheduleMorningHours < 0 || s.ScheduleMorningHours > 23 {
		return NewError("schedule_morning_hours out of range: %d", s.ScheduleMorningHours)
	}
	if s.ScheduleEveningHours < 0 || s.ScheduleEveningHours > 23 {
		return NewError("schedule_evening_hours out of range: %d", s.ScheduleEveningHours)
	}
	if s.ScheduleEveningHours < s.ScheduleMorningHours {
		return NewError("sendable window is empty: %d..%d",
			s.ScheduleMorningHours, s.ScheduleEveningHours)
	}
	return nil
}
