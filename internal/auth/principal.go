package auth

// Principal is the authenticated identity attached to a connection. It is
// established by an upstream identity provider before any streaming traffic
// flows; this service only validates the bearer token that carries it.
type Principal struct {
	ID         string
	Username   string
	Admin      bool
	Privileges map[string]bool
}

// HasPrivilege reports whether the principal holds the named privilege.
// Privilege names follow the `<action>_<entity_type>` convention, e.g.
// "read_product" or "update_order".
func (p *Principal) HasPrivilege(name string) bool {
	return p.Privileges[name]
}

// PrincipalFromClaims builds a Principal from validated token claims.
func PrincipalFromClaims(claims *Claims) *Principal {
	privs := make(map[string]bool, len(claims.Privileges))
	for _, name := range claims.Privileges {
		privs[name] = true
	}
	return &Principal{
		ID:         claims.UserID,
		Username:   claims.Username,
		Admin:      claims.Admin,
		Privileges: privs,
	}
}
