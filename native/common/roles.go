package common

import (
	"errors"

	"tribecore/crypto"
)

// Role names a capability recognised by the protocol engines. Roles are
// granted by the embedding system; the engines only query them.
type Role string

const (
	// RoleOwner may run migrations, excluded-debt bookkeeping and cache
	// repair, and bypasses the system pause for those operations.
	RoleOwner Role = "owner"
	// RoleIssuer is the issuance subsystem allowed to mint and burn debt
	// shares and drive the incremental cache update paths.
	RoleIssuer Role = "issuer"
	// RoleSnapshotter may roll debt-share periods in addition to the issuer.
	RoleSnapshotter Role = "snapshotter"
	// RoleBroker may reassign debt shares between accounts.
	RoleBroker Role = "broker"
)

var ErrUnauthorized = errors.New("unauthorized caller")

// AuthProvider answers capability checks for a caller. Providers are queried
// per call; the engines never cache authorization decisions.
type AuthProvider interface {
	IsAuthorized(caller crypto.Address, role Role) bool
}

// RequireRole rejects the caller unless the provider grants at least one of
// the supplied roles. A nil provider denies everything: authorization is
// mandatory wiring, unlike the optional pause view.
func RequireRole(auth AuthProvider, caller crypto.Address, roles ...Role) error {
	if auth == nil {
		return ErrUnauthorized
	}
	for _, role := range roles {
		if auth.IsAuthorized(caller, role) {
			return nil
		}
	}
	return ErrUnauthorized
}
