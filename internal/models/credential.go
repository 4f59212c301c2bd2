package models

import "time"

// ExpiryMargin is the safety window before a token's real expiry. A token
// inside the margin is treated as already expired so it is never presented
// to an API call that could outlive it.
const ExpiryMargin = 5 * time.Minute

// Credential holds an OAuth access token and, for three-legged grants, the
// refresh token that can replace it.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is unusable at the given time,
// applying the expiry margin.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt.Add(-ExpiryMargin))
}

// TTL returns the remaining usable lifetime at the given time, zero if the
// credential is already inside the margin.
func (c *Credential) TTL(now time.Time) time.Duration {
	d := c.ExpiresAt.Add(-ExpiryMargin).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
