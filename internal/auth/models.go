package auth

import "github.com/golang-jwt/jwt/v5"

// Claims identify a player by display name. Provider is empty for names
// chosen directly through the session endpoint.
type Claims struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the player profile exposed to clients.
type Identity struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
}

func (c *Claims) Identity() Identity {
	return Identity{Name: c.Name, Provider: c.Provider}
}
