package rbac

// grant builds a permission list from a resource -> actions table
func grant(table map[Resource][]Action) []Permission {
	var out []Permission
	for _, res := range Resources() {
		for _, action := range table[res] {
			out = append(out, Permission{Resource: res, Action: action})
		}
	}
	return out
}

// all grants every declared action on every resource
func all() []Permission {
	return grant(resourceActions)
}

// Grants returns the permissions carried by a role. Roles outside the known
// set grant nothing.
func Grants(role Role) []Permission {
	switch role {
	case RoleSetter:
		return grant(map[Resource][]Action{
			ResourcePerson:      {ActionRead, ActionUpdate, ActionAssign},
			ResourceCall:        {ActionInitiate, ActionAnswer},
			ResourceAppointment: {ActionCreate},
			ResourceCommission:  {ActionRead},
			ResourceLeaderboard: {ActionView},
		})
	case RoleConsultant:
		return grant(map[Resource][]Action{
			ResourcePerson:       {ActionRead, ActionUpdate},
			ResourceAppointment:  {ActionRead, ActionUpdate},
			ResourceMeeting:      {ActionCreate, ActionJoin, ActionEnd},
			ResourceOrganization: {ActionRead, ActionUpdate},
			ResourceCommission:   {ActionRead},
			ResourceLeaderboard:  {ActionView},
		})
	case RoleSalesManager:
		return grant(map[Resource][]Action{
			ResourcePerson:       {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
			ResourceOrganization: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
			ResourceAppointment:  {ActionCreate, ActionRead, ActionUpdate, ActionCancel, ActionReassign},
			ResourceCommission:   {ActionRead, ActionApprove},
			ResourceAnalytics:    {ActionView, ActionExport},
			ResourceLeaderboard:  {ActionView, ActionManage},
			ResourceUser:         {ActionRead},
		})
	case RoleSetterManager:
		return grant(map[Resource][]Action{
			ResourcePerson:      {ActionRead, ActionAssign},
			ResourceCampaign:    {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionActivate},
			ResourceCall:        {ActionTransfer},
			ResourceUser:        {ActionCreate, ActionRead},
			ResourceCommission:  {ActionRead, ActionApprove},
			ResourceAnalytics:   {ActionView, ActionExport},
			ResourceLeaderboard: {ActionView, ActionManage},
		})
	case RoleProjectManager:
		return grant(map[Resource][]Action{
			ResourcePerson:       {ActionRead, ActionUpdate},
			ResourceOrganization: {ActionRead},
			ResourceAppointment:  {ActionRead},
			ResourceAnalytics:    {ActionView},
		})
	case RoleInstaller:
		return grant(map[Resource][]Action{
			ResourcePerson:       {ActionRead},
			ResourceOrganization: {ActionRead},
			ResourceAppointment:  {ActionRead},
		})
	case RoleRecruiter:
		return grant(map[Resource][]Action{
			ResourceUser:      {ActionCreate, ActionRead, ActionUpdate},
			ResourceAnalytics: {ActionView},
		})
	case RoleTrainer:
		return grant(map[Resource][]Action{
			ResourceUser:        {ActionRead},
			ResourceLeaderboard: {ActionView},
			ResourceAnalytics:   {ActionView},
		})
	case RoleSystemAdmin:
		return all()
	case RoleExecutive:
		return grant(map[Resource][]Action{
			ResourcePerson:       {ActionRead},
			ResourceOrganization: {ActionRead},
			ResourceAnalytics:    {ActionView, ActionExport},
			ResourceLeaderboard:  {ActionView},
			ResourceAudit:        {ActionRead},
		})
	case RoleFinance:
		return grant(map[Resource][]Action{
			ResourcePerson:         {ActionRead},
			ResourceCommission:     {ActionRead, ActionApprove, ActionDispute, ActionPay},
			ResourceCommissionRule: {ActionRead},
			ResourceAnalytics:      {ActionView, ActionExport},
			ResourceAudit:          {ActionRead},
		})
	case RoleOperations:
		return grant(map[Resource][]Action{
			ResourcePerson:       {ActionRead, ActionUpdate},
			ResourceOrganization: {ActionRead, ActionUpdate},
			ResourceAppointment:  {ActionRead, ActionUpdate},
			ResourceAnalytics:    {ActionView, ActionExport},
			ResourceSettings:     {ActionRead},
		})
	case RoleSetterTrainee, RoleLeadManager, RoleSupportStaff:
		// Known roles with no grants yet.
		return nil
	default:
		return nil
	}
}

// grantIndex caches Grants as a lookup set, built once per known role.
var grantIndex = func() map[Role]map[Permission]struct{} {
	idx := make(map[Role]map[Permission]struct{}, len(AllRoles()))
	for _, role := range AllRoles() {
		set := make(map[Permission]struct{})
		for _, p := range Grants(role) {
			set[p] = struct{}{}
		}
		idx[role] = set
	}
	return idx
}()

// RoleGrants reports whether a single role grants the permission
func RoleGrants(role Role, resource Resource, action Action) bool {
	set, ok := grantIndex[role]
	if !ok {
		return false
	}
	_, ok = set[Permission{Resource: resource, Action: action}]
	return ok
}
