package consts

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	// DefaultRoleID 注册时默认授予的角色
	DefaultRoleID uint64 = 1
)

// gin.Context 中的键
const (
	CtxUserID = "user_id"
	CtxRoles  = "roles"
)
