package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Plausibility bounds for sensor values. Readings outside these ranges are
// treated as implausible (sensor fault) and classify the unit as warning,
// never as critical, until a plausible reading arrives.
const (
	MinPlausibleTempC    = -60.0
	MaxPlausibleTempC    = 60.0
	MinPlausibleHumidity = 0.0
	MaxPlausibleHumidity = 100.0
)

// validate is the shared go-playground validator instance. Struct tag rules
// (required, min, gtfield, e164, email) run through this singleton; custom
// checks that need cross-field context live in the functions below.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateReading checks a normalized reading record before it reaches the
// classifier. Malformed readings are rejected at the ingestion boundary.
func ValidateReading(r *Reading) error {
	if err := validate.Struct(r); err != nil {
		return NewAppError(ErrCodeValidationInvalidReading, "reading failed validation", err)
	}
	if r.ObservedAt.After(time.Now().UTC().Add(5 * time.Minute)) {
		return NewAppError(ErrCodeValidationInvalidReading,
			fmt.Sprintf("observed_at %s is in the future", r.ObservedAt.Format(time.RFC3339)), nil)
	}
	return nil
}

// Plausible reports whether the reading's values fall inside physical
// sensor bounds.
func (r *Reading) Plausible() bool {
	if r.Temperature < MinPlausibleTempC || r.Temperature > MaxPlausibleTempC {
		return false
	}
	if r.Humidity != nil && (*r.Humidity < MinPlausibleHumidity || *r.Humidity > MaxPlausibleHumidity) {
		return false
	}
	return true
}

// ValidateRule checks an AlertRule's invariants: min < max and both
// consecutive counts >= 1.
func ValidateRule(rule *AlertRule) error {
	if err := validate.Struct(rule); err != nil {
		return NewAppError(ErrCodeValidationInvalidRule, "alert rule failed validation", err)
	}
	return nil
}

// ValidateEmailAddress checks email destination syntax. Performed before any
// provider contact; a failure here is an unrecoverable delivery failure.
func ValidateEmailAddress(address string) error {
	if err := validate.Var(address, "required,email"); err != nil {
		return NewAppError(ErrCodeValidationInvalidEmail,
			"destination is not a valid email address", err)
	}
	return nil
}

// ValidatePhoneNumber checks that a phone destination is in E.164 form.
func ValidatePhoneNumber(number string) error {
	if err := validate.Var(number, "required,e164"); err != nil {
		return NewAppError(ErrCodeValidationInvalidPhone,
			"destination is not a valid E.164 phone number", err)
	}
	return nil
}

// ValidateTimezone checks that a timezone name resolves against the IANA
// database. Used by digest preference sync.
func ValidateTimezone(tz string) error {
	if tz == "" {
		return NewAppError(ErrCodeValidationInvalidTimezone, "timezone is required", nil)
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return NewAppError(ErrCodeValidationInvalidTimezone,
			fmt.Sprintf("unknown timezone %q", tz), err)
	}
	return nil
}
