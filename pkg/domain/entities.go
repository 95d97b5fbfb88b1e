// Package domain defines the persistent entities, value types, error
// taxonomy and rule evaluation primitives used by formcore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityUser identifies a registered identity.
	EntityUser EntityType = "user"
	// EntityForm identifies a form record.
	EntityForm EntityType = "form"
	// EntityField identifies a field belonging to a form.
	EntityField EntityType = "field"
	// EntityResponse identifies a single submission against a form.
	EntityResponse EntityType = "response"
	// EntityAnswer identifies one field value inside a response.
	EntityAnswer EntityType = "answer"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a registered identity able to own forms.
type User struct {
	Base
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// NormalizeEmail lowercases and trims an email address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Form is a named, owned collection of fields.
type Form struct {
	Base
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
}

// Field is a single typed question within a form.
type Field struct {
	Base
	FormID     string    `json:"form_id"`
	Label      string    `json:"label"`
	Type       FieldType `json:"type"`
	OptionsRaw string    `json:"options"`
	Required   bool      `json:"required"`
	Position   int       `json:"position"`
}

// Options re-parses the raw option source. The parsed slice is never stored.
func (f Field) Options() []string {
	return ParseOptions(f.OptionsRaw)
}

// Response is one submission event against a form.
type Response struct {
	Base
	FormID      string    `json:"form_id"`
	Number      int       `json:"number"`
	SubmittedAt time.Time `json:"submitted_at"`
	SubmittedBy string    `json:"submitted_by,omitempty"`
}

// Answer is one field's value within one response.
type Answer struct {
	Base
	ResponseID string `json:"response_id"`
	FieldID    string `json:"field_id"`
	Value      string `json:"value"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Unwrap classifies rule violations as validation failures.
func (e RuleViolationError) Unwrap() error {
	return ErrValidation
}
