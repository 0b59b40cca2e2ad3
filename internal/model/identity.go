package model

// PrincipalID identifies an authenticated account
type PrincipalID string

// Principal is an authenticated account as reported by the auth provider
type Principal struct {
	ID    PrincipalID `json:"id"`
	Email string      `json:"email"`
}

// IdentityKind says who is acting
type IdentityKind string

const (
	IdentityNone   IdentityKind = "none"
	IdentityPlayer IdentityKind = "player"
	IdentityAdmin  IdentityKind = "admin"
)

// Identity is the current actor. At most one of Player and Admin is set.
type Identity struct {
	Kind   IdentityKind `json:"kind"`
	Player *Player      `json:"player,omitempty"`
	Admin  *Principal   `json:"admin,omitempty"`
}

// NoIdentity is the unauthenticated state
func NoIdentity() Identity {
	return Identity{Kind: IdentityNone}
}

// PlayerIdentity returns an identity acting as the given player
func PlayerIdentity(p Player) Identity {
	return Identity{Kind: IdentityPlayer, Player: &p}
}

// AdminIdentity returns an identity acting as the given administrator
func AdminIdentity(p Principal) Identity {
	return Identity{Kind: IdentityAdmin, Admin: &p}
}

// IsAdmin reports whether the identity carries administrator privileges
func (i Identity) IsAdmin() bool {
	return i.Kind == IdentityAdmin && i.Admin != nil
}

// IsPlayer reports whether the identity is a registered player
func (i Identity) IsPlayer() bool {
	return i.Kind == IdentityPlayer && i.Player != nil
}

// IsAuthenticated reports whether anyone is signed in
func (i Identity) IsAuthenticated() bool {
	return i.IsAdmin() || i.IsPlayer()
}
