package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAllowed_Matrix(t *testing.T) {
	cases := []struct {
		name string
		role UserRole
		vis  FileVisibility
		op   FileOperation
		want bool
	}{
		{"owner uploads private", RoleOwner, VisibilityPrivate, OperationUpload, true},
		{"owner deletes private", RoleOwner, VisibilityPrivate, OperationDelete, true},
		{"owner modifies family", RoleOwner, VisibilityFamily, OperationModifyPermissions, true},
		{"owner downloads public", RoleOwner, VisibilityPublic, OperationDownload, true},

		{"family member blocked on private", RoleFamilyMember, VisibilityPrivate, OperationView, false},
		{"family member views family", RoleFamilyMember, VisibilityFamily, OperationView, true},
		{"family member downloads family", RoleFamilyMember, VisibilityFamily, OperationDownload, true},
		{"family member cannot delete family", RoleFamilyMember, VisibilityFamily, OperationDelete, false},
		{"family member cannot modify public", RoleFamilyMember, VisibilityPublic, OperationModifyPermissions, false},
		{"family member cannot upload", RoleFamilyMember, VisibilityFamily, OperationUpload, false},
		{"family member downloads public", RoleFamilyMember, VisibilityPublic, OperationDownload, true},

		{"public user views public", RolePublicUser, VisibilityPublic, OperationView, true},
		{"public user cannot download public", RolePublicUser, VisibilityPublic, OperationDownload, false},
		{"public user blocked on family", RolePublicUser, VisibilityFamily, OperationView, false},
		{"public user blocked on private", RolePublicUser, VisibilityPrivate, OperationView, false},
		{"public user cannot delete public", RolePublicUser, VisibilityPublic, OperationDelete, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsAllowed(tc.role, tc.vis, tc.op))
		})
	}
}

// 任意输入组合都要得到确定的布尔裁决，包括未定义的枚举值。
func TestIsAllowed_TotalOverAllInputs(t *testing.T) {
	roles := []UserRole{RoleOwner, RoleFamilyMember, RolePublicUser, UserRole("guest")}
	visibilities := []FileVisibility{VisibilityPrivate, VisibilityFamily, VisibilityPublic, FileVisibility("secret")}
	operations := append(AllOperations(), FileOperation("rename"))

	for _, role := range roles {
		for _, vis := range visibilities {
			for _, op := range operations {
				assert.NotPanics(t, func() { IsAllowed(role, vis, op) })
			}
		}
	}

	assert.False(t, IsAllowed(UserRole("guest"), VisibilityPublic, OperationView))
	assert.False(t, IsAllowed(RoleOwner, FileVisibility("secret"), OperationView))
	assert.False(t, IsAllowed(RoleOwner, VisibilityPrivate, FileOperation("rename")))
}

func TestAllowedOperations(t *testing.T) {
	require.ElementsMatch(t, AllOperations(), AllowedOperations(RoleOwner, VisibilityPrivate))
	require.ElementsMatch(t,
		[]FileOperation{OperationView, OperationDownload},
		AllowedOperations(RoleFamilyMember, VisibilityFamily))
	require.ElementsMatch(t,
		[]FileOperation{OperationView},
		AllowedOperations(RolePublicUser, VisibilityPublic))
	require.Empty(t, AllowedOperations(RolePublicUser, VisibilityPrivate))
}

func TestCanAdminister(t *testing.T) {
	assert.True(t, CanAdminister(RoleOwner))
	assert.False(t, CanAdminister(RoleFamilyMember))
	assert.False(t, CanAdminister(RolePublicUser))
}

func TestVisibilityRank_Ordering(t *testing.T) {
	assert.Less(t, VisibilityPrivate.Rank(), VisibilityFamily.Rank())
	assert.Less(t, VisibilityFamily.Rank(), VisibilityPublic.Rank())
	assert.Zero(t, FileVisibility("secret").Rank())
}
