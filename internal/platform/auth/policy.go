package auth

// Role names used across the service.
const (
	RoleAdmin          = "admin"
	RoleSurgeon        = "surgeon"
	RoleProsthodontist = "prosthodontist"
	RoleProvider       = "provider"
)

// CanOverrideOneHardNext is the single authorization rule for bypassing
// the one-future-work-appointment invariant. Keeping it here means the
// booking transaction never inspects role strings directly.
func CanOverrideOneHardNext(a Actor) bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleSurgeon) || a.HasRole(RoleProsthodontist)
}
