package identity

import "github.com/gofiber/fiber/v2"

const localsKey = "user"

// User is the authenticated principal, set by the auth middleware.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// HasRole checks whether the user has a specific role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.HasRole("admin")
}

// Set stores u on the request.
func Set(c *fiber.Ctx, u *User) {
	c.Locals(localsKey, u)
}

// FromCtx returns the principal of the request, or nil for anonymous callers.
func FromCtx(c *fiber.Ctx) *User {
	u, _ := c.Locals(localsKey).(*User)
	return u
}

// ID returns the principal ID, or "" for anonymous callers.
func ID(c *fiber.Ctx) string {
	if u := FromCtx(c); u != nil {
		return u.ID
	}
	return ""
}
