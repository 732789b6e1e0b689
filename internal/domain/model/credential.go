package model

import (
	"strings"
	"time"
)

// Credential is the OAuth credential authorizing calls to one provider. At most
// one active credential exists per provider.
type Credential struct {
	Provider     Provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	// AccountID holds the provider account scope: a Meta ad account id or a
	// comma-separated list of TikTok advertiser ids.
	AccountID string
	Scopes    []string
	IsActive  bool
	UpdatedAt time.Time
}

// Expired reports whether the credential carries an expiry that has passed.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Usable reports whether the credential may authorize an upstream call at now.
func (c Credential) Usable(now time.Time) bool {
	return c.IsActive && c.AccessToken != "" && !c.Expired(now)
}

// AccountIDs splits AccountID into its non-empty components.
func (c Credential) AccountIDs() []string {
	var ids []string
	for _, id := range strings.Split(c.AccountID, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
