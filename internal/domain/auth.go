package domain

import "time"

// TokenRecord is the server-side registry entry for an issued bearer token.
// ExpiresAt is tracked independently of the expiry signed into the token.
type TokenRecord struct {
	ID         string
	Token      string
	Subject    string
	UserID     string
	ExpiresAt  time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the registry-side expiry has passed at now.
func (r *TokenRecord) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Principal is the authenticated caller admitted by the gate.
type Principal struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Roles     []string
}

// HasRole reports whether the principal carries the given capability.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
