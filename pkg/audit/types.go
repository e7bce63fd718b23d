package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"
	EventTypeAuthzGlobalScope  EventType = "authz.global_scope"

	// Data mutation events
	EventTypeDataPersonCreate    EventType = "data.person_create"
	EventTypeDataPersonUpdate    EventType = "data.person_update"
	EventTypeDataPersonDelete    EventType = "data.person_delete"
	EventTypeDataStageCreate     EventType = "data.stage_create"
	EventTypeDataStageReorder    EventType = "data.stage_reorder"
	EventTypeDataStageDeactivate EventType = "data.stage_deactivate"
	EventTypeDataStagesInit      EventType = "data.stages_initialize"
	EventTypeDataOrgCreate       EventType = "data.organization_create"
	EventTypeDataOrgUpdate       EventType = "data.organization_update"
	EventTypeDataOrgDelete       EventType = "data.organization_delete"

	// Admin events
	EventTypeAdminTenantCreate   EventType = "admin.tenant_create"
	EventTypeAdminUserCreate     EventType = "admin.user_create"
	EventTypeAdminUserProvision  EventType = "admin.user_provision"
	EventTypeAdminProfileSync    EventType = "admin.profile_sync"
	EventTypeAdminUserActivate   EventType = "admin.user_activate"
	EventTypeAdminUserDeactivate EventType = "admin.user_deactivate"
	EventTypeAdminRoleAssign     EventType = "admin.role_assign"
	EventTypeAdminRoleRemove     EventType = "admin.role_remove"
	EventTypeAdminRoleDeactivate EventType = "admin.role_deactivate"
	EventTypeAdminRolePrimary    EventType = "admin.role_primary"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypePerson        ResourceType = "person"
	ResourceTypePipelineStage ResourceType = "pipeline_stage"
	ResourceTypeUser          ResourceType = "user"
	ResourceTypeUserRole      ResourceType = "user_role"
	ResourceTypeTenant        ResourceType = "tenant"
	ResourceTypeOrganization  ResourceType = "organization"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   string `json:"user_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID   string
	TenantID string

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// RetentionPolicy controls how long audit rows are kept
type RetentionPolicy struct {
	RetentionDays int
}
