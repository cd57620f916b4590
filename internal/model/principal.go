package model

import "fmt"

// Role is a capability an authenticated user has on the platform.
type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
	RoleAdmin      Role = "admin"
	// RoleSystem is used by internal actors like the dispute timeout sweeper.
	RoleSystem Role = "system"
)

// PrincipalStatus is the account status of an authenticated user.
type PrincipalStatus string

const (
	PrincipalStatusActive  PrincipalStatus = "active"
	PrincipalStatusBlocked PrincipalStatus = "blocked"
)

// Principal is the authenticated actor running an operation. It is resolved by the
// authentication layer and passed explicitly into every core operation.
type Principal struct {
	ID     string
	Roles  []Role
	Status PrincipalStatus
}

// SystemPrincipal is the actor used for automatic transitions.
var SystemPrincipal = Principal{ID: "system", Roles: []Role{RoleSystem}, Status: PrincipalStatusActive}

// HasRole returns true if the principal has the role.
func (p Principal) HasRole(r Role) bool {
	for _, pr := range p.Roles {
		if pr == r {
			return true
		}
	}
	return false
}

// IsSystem returns true for internal actors.
func (p Principal) IsSystem() bool { return p.HasRole(RoleSystem) }

// Validate checks the principal is usable for an operation.
func (p Principal) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("principal id is required: %w", ErrNotValid)
	}
	if p.Status == PrincipalStatusBlocked {
		return fmt.Errorf("principal %s is blocked: %w", p.ID, ErrNotAllowed)
	}
	return nil
}

// RequireRole returns ErrNotAllowed if the principal is not valid or lacks the role.
func (p Principal) RequireRole(r Role) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.HasRole(r) {
		return fmt.Errorf("principal %s is not %s: %w", p.ID, r, ErrNotAllowed)
	}
	return nil
}
