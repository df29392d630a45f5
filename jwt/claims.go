package jwt

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims are the claims of an identity token presented to the
// account console. The subject is the user ID.
type IdentityClaims struct {
	Realm             string   `json:"realm"`
	SessionID         string   `json:"sid"`
	AuthorizedParty   string   `json:"azp,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Email             string   `json:"email,omitempty"`
	GivenName         string   `json:"given_name,omitempty"`
	FamilyName        string   `json:"family_name,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// identify rejects claims that do not name a principal in a session.
func (c *IdentityClaims) identify() error {
	switch {
	case c.Subject == "":
		return missing("sub")
	case c.Realm == "":
		return missing("realm")
	case c.SessionID == "":
		return missing("sid")
	}
	return nil
}
