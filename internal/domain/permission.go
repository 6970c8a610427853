package domain

import "github.com/samber/lo"

// IsAllowed 判定 (角色, 可见性, 操作) 三元组是否放行。
//
// 策略表：
//
//	owner          任意可见性        全部操作
//	family_member  private          无
//	family_member  family/public    view、download
//	public_user    public           view
//	public_user    private/family   无
//
// 每个 (角色, 可见性) 组合都显式枚举，不设 default 分支；
// 新增角色或可见性等级时必须在此补全，否则落到末尾的 false。
// 对任意输入总是返回布尔值，从不 panic。
func IsAllowed(role UserRole, vis FileVisibility, op FileOperation) bool {
	switch role {
	case RoleOwner:
		switch vis {
		case VisibilityPrivate, VisibilityFamily, VisibilityPublic:
			return op.Valid()
		}
	case RoleFamilyMember:
		switch vis {
		case VisibilityPrivate:
			return false
		case VisibilityFamily, VisibilityPublic:
			return op == OperationView || op == OperationDownload
		}
	case RolePublicUser:
		switch vis {
		case VisibilityPrivate, VisibilityFamily:
			return false
		case VisibilityPublic:
			return op == OperationView
		}
	}
	return false
}

// AllowedOperations 返回 (角色, 可见性) 下允许的全部操作集合。
func AllowedOperations(role UserRole, vis FileVisibility) []FileOperation {
	return lo.Filter(AllOperations(), func(op FileOperation, _ int) bool {
		return IsAllowed(role, vis, op)
	})
}

// CanAdminister 判断角色是否有权修改文件可见性。
// 仅 owner 具备管理级权限，与 IsAllowed 对 modify_permissions 的裁决一致。
func CanAdminister(role UserRole) bool {
	return role == RoleOwner
}
