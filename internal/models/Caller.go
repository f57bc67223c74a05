package models

// Caller is the authenticated identity behind a request or websocket connection.
type Caller struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

func (c Caller) IsAdmin() bool    { return c.Role == RoleAdmin }
func (c Caller) IsDriver() bool   { return c.Role == RoleDriver }
func (c Caller) IsCustomer() bool { return c.Role == RoleCustomer }
