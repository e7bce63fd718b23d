package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
)

// Validator performs field validation on domain records
type Validator struct {
	config *ValidationConfig
}

// ValidationConfig defines validation rules
type ValidationConfig struct {
	// MaxNameLength bounds first, last and organization names
	MaxNameLength int
	// MaxEmailLength bounds email addresses
	MaxEmailLength int
	// MinPhoneDigits and MaxPhoneDigits bound the digits of a phone number
	MinPhoneDigits int
	MaxPhoneDigits int
}

// DefaultValidationConfig returns default validation settings
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxNameLength:  100,
		MaxEmailLength: 254,
		MinPhoneDigits: 7,
		MaxPhoneDigits: 15, // E.164
	}
}

// NewValidator creates a new validator
func NewValidator(config *ValidationConfig) *Validator {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &Validator{config: config}
}

// ValidationError describes one rejected field
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationResult contains validation errors
type ValidationResult struct {
	Errors []*ValidationError
	Valid  bool
}

// Err returns nil for a valid result, otherwise a Validation error listing
// every rejected field.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

// Rule names
const (
	RuleRequired   = "REQUIRED"
	RuleTooLong    = "TOO_LONG"
	RuleFormat     = "INVALID_FORMAT"
	RuleUnknown    = "UNKNOWN_VALUE"
	RuleIncomplete = "INCOMPLETE"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidatePerson checks a person record
func (v *Validator) ValidatePerson(p *models.Person) *ValidationResult {
	result := newResult()
	v.validateName(result, "first_name", p.FirstName)
	v.validateName(result, "last_name", p.LastName)
	v.validateEmail(result, "email", p.Email)
	if p.Phone != nil {
		v.validatePhone(result, "phone", *p.Phone)
	}
	return result.done()
}

// ValidateOrganization checks an organization record
func (v *Validator) ValidateOrganization(org *models.Organization) *ValidationResult {
	result := newResult()
	v.validateName(result, "name", org.Name)
	if !org.Type.Valid() {
		result.addError("type", RuleUnknown, fmt.Sprintf("invalid organization type %q", org.Type))
	}
	if err := org.BillingAddress.Validate(); err != nil {
		result.addError("billing_address", RuleIncomplete, err.Error())
	}
	return result.done()
}

// ValidateUser checks the profile fields of a user
func (v *Validator) ValidateUser(u *models.User) *ValidationResult {
	result := newResult()
	v.validateEmail(result, "email", u.Email)
	v.validateName(result, "first_name", u.FirstName)
	v.validateName(result, "last_name", u.LastName)
	return result.done()
}

// ValidateEmail checks a single email address
func (v *Validator) ValidateEmail(email string) *ValidationResult {
	result := newResult()
	v.validateEmail(result, "email", email)
	return result.done()
}

func (v *Validator) validateName(result *ValidationResult, field, value string) {
	if strings.TrimSpace(value) == "" {
		result.addError(field, RuleRequired, field+" is required")
		return
	}
	if len([]rune(value)) > v.config.MaxNameLength {
		result.addError(field, RuleTooLong,
			fmt.Sprintf("%s must be at most %d characters", field, v.config.MaxNameLength))
	}
}

func (v *Validator) validateEmail(result *ValidationResult, field, value string) {
	if strings.TrimSpace(value) == "" {
		result.addError(field, RuleRequired, field+" is required")
		return
	}
	if len(value) > v.config.MaxEmailLength {
		result.addError(field, RuleTooLong,
			fmt.Sprintf("%s must be at most %d characters", field, v.config.MaxEmailLength))
		return
	}
	if !emailPattern.MatchString(value) {
		result.addError(field, RuleFormat, fmt.Sprintf("invalid email format: %s", value))
	}
}

func (v *Validator) validatePhone(result *ValidationResult, field, value string) {
	digits := 0
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			result.addError(field, RuleFormat, fmt.Sprintf("invalid phone number: %s", value))
			return
		}
	}
	if digits < v.config.MinPhoneDigits || digits > v.config.MaxPhoneDigits {
		result.addError(field, RuleFormat,
			fmt.Sprintf("phone number must have %d to %d digits", v.config.MinPhoneDigits, v.config.MaxPhoneDigits))
	}
}

func newResult() *ValidationResult {
	return &ValidationResult{Errors: make([]*ValidationError, 0)}
}

func (r *ValidationResult) done() *ValidationResult {
	r.Valid = len(r.Errors) == 0
	return r
}

func (r *ValidationResult) addError(field, rule, message string) {
	r.Errors = append(r.Errors, &ValidationError{
		Field:   field,
		Rule:    rule,
		Message: message,
	})
}
