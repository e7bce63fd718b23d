package rbac

import (
	"fmt"
	"sort"
)

// Resource represents a permission-checked noun
type Resource string

const (
	ResourcePerson         Resource = "person"
	ResourceOrganization   Resource = "organization"
	ResourceCampaign       Resource = "campaign"
	ResourceCall           Resource = "call"
	ResourceAppointment    Resource = "appointment"
	ResourceMeeting        Resource = "meeting"
	ResourceCommission     Resource = "commission"
	ResourceCommissionRule Resource = "commissionRule"
	ResourceUser           Resource = "user"
	ResourceTenant         Resource = "tenant"
	ResourceAnalytics      Resource = "analytics"
	ResourceLeaderboard    Resource = "leaderboard"
	ResourceSettings       Resource = "settings"
	ResourceAudit          Resource = "audit"
)

// Action represents a verb that can be performed on a resource
type Action string

const (
	ActionCreate      Action = "create"
	ActionRead        Action = "read"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionAssign      Action = "assign"
	ActionActivate    Action = "activate"
	ActionInitiate    Action = "initiate"
	ActionAnswer      Action = "answer"
	ActionTransfer    Action = "transfer"
	ActionRecord      Action = "record"
	ActionCancel      Action = "cancel"
	ActionReassign    Action = "reassign"
	ActionJoin        Action = "join"
	ActionEnd         Action = "end"
	ActionApprove     Action = "approve"
	ActionDispute     Action = "dispute"
	ActionPay         Action = "pay"
	ActionBan         Action = "ban"
	ActionImpersonate Action = "impersonate"
	ActionView        Action = "view"
	ActionExport      Action = "export"
	ActionManage      Action = "manage"
)

// resourceActions declares the closed action set for every resource.
var resourceActions = map[Resource][]Action{
	ResourcePerson:         {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionAssign},
	ResourceOrganization:   {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceCampaign:       {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionActivate},
	ResourceCall:           {ActionInitiate, ActionAnswer, ActionTransfer, ActionRecord},
	ResourceAppointment:    {ActionCreate, ActionRead, ActionUpdate, ActionCancel, ActionReassign},
	ResourceMeeting:        {ActionCreate, ActionJoin, ActionEnd, ActionRecord},
	ResourceCommission:     {ActionCreate, ActionRead, ActionApprove, ActionDispute, ActionPay},
	ResourceCommissionRule: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceUser:           {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionBan, ActionImpersonate},
	ResourceTenant:         {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceAnalytics:      {ActionView, ActionExport},
	ResourceLeaderboard:    {ActionView, ActionManage},
	ResourceSettings:       {ActionRead, ActionUpdate},
	ResourceAudit:          {ActionRead},
}

// Resources returns every declared resource in sorted order
func Resources() []Resource {
	out := make([]Resource, 0, len(resourceActions))
	for r := range resourceActions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actions returns the declared actions for a resource, or nil if the resource is unknown
func Actions(resource Resource) []Action {
	actions, ok := resourceActions[resource]
	if !ok {
		return nil
	}
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// IsDeclared reports whether action is part of resource's action set
func IsDeclared(resource Resource, action Action) bool {
	for _, a := range resourceActions[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Role is one of the fifteen named permission bundles
type Role string

const (
	RoleSetter         Role = "Setter"
	RoleSetterTrainee  Role = "Setter Trainee"
	RoleSetterManager  Role = "Setter Manager"
	RoleConsultant     Role = "Consultant"
	RoleSalesManager   Role = "Sales Manager"
	RoleLeadManager    Role = "Lead Manager"
	RoleProjectManager Role = "Project Manager"
	RoleInstaller      Role = "Installer"
	RoleSupportStaff   Role = "Support Staff"
	RoleRecruiter      Role = "Recruiter"
	RoleTrainer        Role = "Trainer"
	RoleSystemAdmin    Role = "System Administrator"
	RoleExecutive      Role = "Executive"
	RoleFinance        Role = "Finance"
	RoleOperations     Role = "Operations"
)

// AllRoles lists every known role in declaration order
func AllRoles() []Role {
	return []Role{
		RoleSetter,
		RoleSetterTrainee,
		RoleSetterManager,
		RoleConsultant,
		RoleSalesManager,
		RoleLeadManager,
		RoleProjectManager,
		RoleInstaller,
		RoleSupportStaff,
		RoleRecruiter,
		RoleTrainer,
		RoleSystemAdmin,
		RoleExecutive,
		RoleFinance,
		RoleOperations,
	}
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSetter, RoleSetterTrainee, RoleSetterManager, RoleConsultant,
		RoleSalesManager, RoleLeadManager, RoleProjectManager, RoleInstaller,
		RoleSupportStaff, RoleRecruiter, RoleTrainer, RoleSystemAdmin,
		RoleExecutive, RoleFinance, RoleOperations:
		return true
	}
	return false
}

// Privileged reports whether only System Administrators may grant r
func (r Role) Privileged() bool {
	switch r {
	case RoleSystemAdmin, RoleExecutive, RoleFinance:
		return true
	}
	return false
}

// ParseRole converts a role name into a Role. Unknown names are rejected.
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role: %s", name)
	}
	return r, nil
}
