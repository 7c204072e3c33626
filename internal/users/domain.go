package users

// UpdateInput changes an identity's role and/or replaces its group memberships.
// Nil fields are left unchanged; an empty Groups slice removes every membership.
type UpdateInput struct {
	Role   *string   `json:"role,omitempty" validate:"omitempty,oneof=user admin superadmin"`
	Groups *[]string `json:"groups,omitempty" validate:"omitempty,max=50,dive,required,max=50"`
}
