package models

// UserRole is the marketplace role carried in the caller's token
type UserRole string

const (
	RoleOwner    UserRole = "owner"
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
)

// UserInfo represents the authenticated caller extracted from JWT claims.
// The rental core trusts it as-is.
type UserInfo struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
}

func (ui *UserInfo) IsAdminUser() bool {
	return ui.Role == RoleAdmin
}

// CanManageApartment reports whether the caller may modify an apartment owned by ownerID
func (ui *UserInfo) CanManageApartment(ownerID string) bool {
	if ui.IsAdminUser() {
		return true
	}
	return ui.UserID != "" && ui.UserID == ownerID
}
