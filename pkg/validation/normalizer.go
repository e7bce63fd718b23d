package validation

import (
	"strings"

	"github.com/platinummonkey/sunup/pkg/models"
)

// Normalizer canonicalizes user input before validation and storage
type Normalizer struct {
	config *NormalizationConfig
}

// NormalizationConfig defines normalization rules
type NormalizationConfig struct {
	// LowercaseEmail folds email addresses to lower case
	LowercaseEmail bool
	// TrimWhitespace strips leading and trailing whitespace
	TrimWhitespace bool
	// CollapseSpaces reduces inner whitespace runs in names to one space
	CollapseSpaces bool
	// DropEmptyOptional turns blank optional fields into nil
	DropEmptyOptional bool
}

// DefaultNormalizationConfig returns default normalization settings
func DefaultNormalizationConfig() *NormalizationConfig {
	return &NormalizationConfig{
		LowercaseEmail:    true,
		TrimWhitespace:    true,
		CollapseSpaces:    true,
		DropEmptyOptional: true,
	}
}

// NewNormalizer creates a new normalizer
func NewNormalizer(config *NormalizationConfig) *Normalizer {
	if config == nil {
		config = DefaultNormalizationConfig()
	}
	return &Normalizer{config: config}
}

// Email normalizes an email address
func (n *Normalizer) Email(email string) string {
	if n.config.TrimWhitespace {
		email = strings.TrimSpace(email)
	}
	if n.config.LowercaseEmail {
		email = strings.ToLower(email)
	}
	return email
}

// Name normalizes a personal or organization name
func (n *Normalizer) Name(name string) string {
	if n.config.CollapseSpaces {
		return strings.Join(strings.Fields(name), " ")
	}
	if n.config.TrimWhitespace {
		return strings.TrimSpace(name)
	}
	return name
}

// Optional normalizes an optional text field
func (n *Normalizer) Optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	if n.config.TrimWhitespace {
		v = strings.TrimSpace(v)
	}
	if v == "" && n.config.DropEmptyOptional {
		return nil
	}
	return &v
}

// Person returns a normalized copy of p
func (n *Normalizer) Person(p models.Person) models.Person {
	p.FirstName = n.Name(p.FirstName)
	p.LastName = n.Name(p.LastName)
	p.Email = n.Email(p.Email)
	p.Phone = n.Optional(p.Phone)
	p.OrganizationID = n.Optional(p.OrganizationID)
	return p
}

// Organization returns a normalized copy of org
func (n *Normalizer) Organization(org models.Organization) models.Organization {
	org.Name = n.Name(org.Name)
	org.TaxID = strings.TrimSpace(org.TaxID)
	a := &org.BillingAddress
	a.Street = n.Name(a.Street)
	a.City = n.Name(a.City)
	a.State = n.Name(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = n.Name(a.Country)
	return org
}

// User returns a normalized copy of the profile fields of u
func (n *Normalizer) User(u models.User) models.User {
	u.Email = n.Email(u.Email)
	u.FirstName = n.Name(u.FirstName)
	u.LastName = n.Name(u.LastName)
	return u
}
