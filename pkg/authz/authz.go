// Package authz derives coarse application permissions from the attributes
// an identity provider asserts about a subject. Role assignment is driven
// by attribute values so deployments can map directory groups onto local
// roles without code changes.
package authz

type PermissionMask uint64

type RoleMask uint64

const (
	PermissionRead PermissionMask = 1 << iota
	PermissionWrite
	PermissionDelete
	PermissionAdmin
)

const (
	RoleViewer RoleMask = 1 << iota
	RoleEditor
	RoleOwner
	RoleAdmin
)

var RolePermissionMatrix = map[RoleMask]PermissionMask{
	RoleViewer: PermissionRead,
	RoleEditor: PermissionRead | PermissionWrite,
	RoleOwner:  PermissionRead | PermissionWrite | PermissionDelete,
	RoleAdmin:  PermissionRead | PermissionWrite | PermissionDelete | PermissionAdmin,
}

func EffectivePermissions(roleMask RoleMask, direct PermissionMask) PermissionMask {
	effective := direct

	for role, perms := range RolePermissionMatrix {
		if roleMask&role != 0 {
			effective |= perms
		}
	}

	return effective
}

func HasAnyPermissions(current PermissionMask, required PermissionMask) bool {
	return current&required != 0
}

func HasAllPermissions(current PermissionMask, required PermissionMask) bool {
	return current&required == required
}

// RoleMapper assigns roles from the values of a single asserted attribute,
// typically a group or affiliation attribute. Unmapped values are ignored;
// a subject with no mapped value receives the configured default.
type RoleMapper struct {
	// Attribute names the asserted attribute whose values drive role
	// assignment, matched against the key the flattened attribute map
	// carries (the attribute name, or its friendly name when unnamed).
	Attribute string

	// Rules maps one attribute value to the roles it grants.
	Rules map[string]RoleMask

	// Default is granted when no attribute value matches any rule.
	Default RoleMask
}

// Map folds every matching attribute value's roles together. Attributes is
// the flattened name-to-values map a validated credential carries.
func (m RoleMapper) Map(attributes map[string][]string) RoleMask {
	var roles RoleMask

	for _, value := range attributes[m.Attribute] {
		if granted, ok := m.Rules[value]; ok {
			roles |= granted
		}
	}

	if roles == 0 {
		return m.Default
	}
	return roles
}
