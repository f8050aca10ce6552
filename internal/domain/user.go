package domain

import "time"

// User is an account resolved from an external identity, together with its
// usage counter for the current reset window.
type User struct {
	ID           int64
	Subject      string
	Email        string
	Tier         Tier
	UsageCount   int
	UsageResetAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResetDue reports whether the rolling window anchored at UsageResetAt has
// elapsed at now.
func (u *User) ResetDue(now time.Time) bool {
	return now.After(u.UsageResetAt.Add(ResetWindow))
}

// Identity is what an identity provider vouches for.
type Identity struct {
	Subject string
	Email   string
}
