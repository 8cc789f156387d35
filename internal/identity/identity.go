package identity

import "fmt"

// Principal is the authenticated caller as resolved by the edge
// (JWT, API key, or trusted local invocation). The core trusts it.
type Principal struct {
	ActorID string
	Role    string
	Source  string
}

func (p Principal) IsBuyer() bool     { return p.Role == "buyer" }
func (p Principal) IsDeveloper() bool { return p.Role == "developer" }
func (p Principal) IsAdmin() bool     { return p.Role == "admin" }

// ParseRole validates a role string.
func ParseRole(role string) (string, error) {
	switch role {
	case "buyer", "developer", "admin":
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}
