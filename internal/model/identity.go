package model

// 角色
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity 认证模块颁发的身份，订单模块直接信任
type Identity struct {
	ID   uint64 `db:"id" json:"id"`
	Role string `db:"role" json:"role"`
}

// IsAdmin 是否管理员
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
