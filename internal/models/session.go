package models

// Session identifies who is acting. The zero value is anonymous.
type Session struct {
	User *User
}

// Anonymous returns a session with no authenticated user.
func Anonymous() Session { return Session{} }

// Authenticated reports whether a user is attached.
func (s Session) Authenticated() bool { return s.User != nil }

// HasRole reports whether the session's user holds role.
func (s Session) HasRole(role Role) bool {
	return s.User != nil && s.User.Role == role
}
