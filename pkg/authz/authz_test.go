package authz

import "testing"

func TestEffectivePermissionsFoldsRoleGrants(t *testing.T) {
	effective := EffectivePermissions(RoleViewer|RoleEditor, 0)

	if !HasAllPermissions(effective, PermissionRead|PermissionWrite) {
		t.Fatalf("viewer+editor should read and write, got %b", effective)
	}
	if HasAnyPermissions(effective, PermissionDelete|PermissionAdmin) {
		t.Fatalf("viewer+editor should not delete or administer, got %b", effective)
	}
}

func TestEffectivePermissionsKeepsDirectGrants(t *testing.T) {
	effective := EffectivePermissions(RoleViewer, PermissionDelete)

	if !HasAllPermissions(effective, PermissionRead|PermissionDelete) {
		t.Fatalf("direct delete grant lost, got %b", effective)
	}
}

func TestRoleMapperFoldsMatchingValues(t *testing.T) {
	mapper := RoleMapper{
		Attribute: "groups",
		Rules: map[string]RoleMask{
			"engineering": RoleEditor,
			"platform":    RoleOwner,
		},
		Default: RoleViewer,
	}

	roles := mapper.Map(map[string][]string{
		"groups": {"engineering", "platform", "unmapped-group"},
	})

	if roles != RoleEditor|RoleOwner {
		t.Fatalf("roles = %b, want editor|owner", roles)
	}
}

func TestRoleMapperDefaultsWhenNothingMatches(t *testing.T) {
	mapper := RoleMapper{
		Attribute: "groups",
		Rules:     map[string]RoleMask{"engineering": RoleEditor},
		Default:   RoleViewer,
	}

	if roles := mapper.Map(map[string][]string{"groups": {"sales"}}); roles != RoleViewer {
		t.Fatalf("unmatched values should yield the default, got %b", roles)
	}
	if roles := mapper.Map(nil); roles != RoleViewer {
		t.Fatalf("missing attribute should yield the default, got %b", roles)
	}
}
