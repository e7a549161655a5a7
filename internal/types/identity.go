// types/identity.go
package types

const RoleAnonymous = "anonymous"

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TokenID  string `json:"-"`
}

// RoleName returns the role used for permission checks; nil callers are anonymous.
func RoleName(i *Identity) string {
	if i == nil || i.Role == "" {
		return RoleAnonymous
	}
	return i.Role
}

type AuthResponse struct {
	Message  string `json:"message,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
	// Unix seconds
	ExpiresAt int64 `json:"expires_at"`
}
