package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/sunup/pkg/rbac"
)

// Tenant is the isolation boundary: one customer business using the platform
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Domain    string         `json:"domain,omitempty"`
	IsActive  bool           `json:"is_active"`
	Settings  TenantSettings `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
}

// TenantSettings is the per-tenant configuration blob
type TenantSettings struct {
	PipelineStages  []StageTemplate        `json:"pipeline_stages,omitempty" yaml:"pipeline_stages,omitempty"`
	CommissionRules map[string]interface{} `json:"commission_rules,omitempty" yaml:"commission_rules,omitempty"`
}

// StageTemplate seeds a tenant's pipeline
type StageTemplate struct {
	Name        string        `json:"name" yaml:"name"`
	Order       int           `json:"order" yaml:"order"`
	Category    StageCategory `json:"category" yaml:"category"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// User is a principal bound to one external identity subject and one tenant
type User struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsActive  bool      `json:"is_active"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns "First Last"
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserRole assigns one role to one user
type UserRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      rbac.Role `json:"role"`
	IsActive  bool      `json:"is_active"`
	IsPrimary bool      `json:"is_primary"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Person is a prospect or customer tracked through the pipeline
type Person struct {
	ID                   string    `json:"id"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Email                string    `json:"email"`
	Phone                *string   `json:"phone,omitempty"`
	OrganizationID       *string   `json:"organization_id,omitempty"`
	CurrentPipelineStage *string   `json:"current_pipeline_stage"`
	TenantID             string    `json:"tenant_id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Stage returns the current pipeline stage or "" when unassigned
func (p *Person) Stage() string {
	if p.CurrentPipelineStage == nil {
		return ""
	}
	return *p.CurrentPipelineStage
}

// OrganizationType is the kind of customer organization
type OrganizationType string

const (
	OrganizationResidential OrganizationType = "Residential"
	OrganizationCommercial  OrganizationType = "Commercial"
	OrganizationNonprofit   OrganizationType = "Nonprofit"
	OrganizationGovernment  OrganizationType = "Government"
	OrganizationEducational OrganizationType = "Educational"
)

// Valid reports whether t is a known organization type
func (t OrganizationType) Valid() bool {
	switch t {
	case OrganizationResidential, OrganizationCommercial, OrganizationNonprofit,
		OrganizationGovernment, OrganizationEducational:
		return true
	}
	return false
}

// Address is a billing address. All five fields are required.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// Validate checks that every field is present
func (a Address) Validate() error {
	fields := []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zip_code", a.ZipCode},
		{"country", a.Country},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("billing address missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Organization is a customer's company or household
type Organization struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Type           OrganizationType `json:"type"`
	BillingAddress Address          `json:"billing_address"`
	TaxID          string           `json:"tax_id,omitempty"`

	// PrimaryContactPersonID references a person of the same tenant
	PrimaryContactPersonID *string   `json:"primary_contact_person_id,omitempty"`
	TenantID               string    `json:"tenant_id"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// StageCategory groups stages into broad phases
type StageCategory string

const (
	CategorySales        StageCategory = "sales"
	CategoryInstallation StageCategory = "installation"
	CategoryCompleted    StageCategory = "completed"
)

// Valid reports whether c is a known category
func (c StageCategory) Valid() bool {
	switch c {
	case CategorySales, CategoryInstallation, CategoryCompleted:
		return true
	}
	return false
}

// PipelineStage is an ordered, tenant-configurable step in the customer lifecycle
type PipelineStage struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Order       int           `json:"order"`
	Category    StageCategory `json:"category"`
	Description string        `json:"description,omitempty"`
	IsActive    bool          `json:"is_active"`
	TenantID    string        `json:"tenant_id"`
	CreatedAt   time.Time     `json:"created_at"`
}

// PipelineHistory is one immutable stage transition record
type PipelineHistory struct {
	ID              string    `json:"id"`
	PersonID        string    `json:"person_id"`
	FromStage       *string   `json:"from_stage"`
	ToStage         string    `json:"to_stage"`
	ChangedByUserID string    `json:"changed_by_user_id"`
	ChangeReason    *string   `json:"change_reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	TenantID        string    `json:"tenant_id"`
}

// PipelineEvent is an immutable domain event row
type PipelineEvent struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	PersonID  string                 `json:"person_id"`
	UserID    string                 `json:"user_id"`
	Timestamp time.Time              `json:"timestamp"`
	FromStage *string                `json:"from_stage"`
	ToStage   string                 `json:"to_stage"`
	EventType string                 `json:"event_type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StringPtr returns nil for "" and &s otherwise
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
