package domain

// Identity is the acting principal of a request. The zero value is anonymous.
type Identity struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// Anonymous returns the unauthenticated identity.
func Anonymous() Identity { return Identity{} }

// IdentityOf builds the identity for a stored user.
func IdentityOf(u User) Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

// IsAnonymous reports whether no user is attached.
func (i Identity) IsAnonymous() bool { return i.UserID == "" }
