package repository

import (
	"context"
	"time"

	"shopadmin/internal/model"

	"github.com/jmoiron/sqlx"
)

// User 用户模型，只保留鉴权需要的字段
type User struct {
	ID        uint64    `db:"id"`
	Username  string    `db:"username"`
	Token     string    `db:"token"`
	Role      string    `db:"role"`
	Status    int       `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Identity 转换为调用方身份
func (u *User) Identity() *model.Identity {
	return &model.Identity{ID: u.ID, Role: u.Role}
}

// UserRepository 用户仓库接口
type UserRepository interface {
	// GetByToken 根据Token获取正常状态的用户
	GetByToken(ctx context.Context, token string) (*User, error)
}

// userRepository 用户仓库实现
type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository 创建用户仓库实例
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByToken 根据Token获取用户，被封禁(status=0)的用户视为不存在
func (r *userRepository) GetByToken(ctx context.Context, token string) (*User, error) {
	user := &User{}
	query := `SELECT id, username, token, role, status, created_at, updated_at FROM users WHERE token = ? AND status = 1`
	if err := r.db.GetContext(ctx, user, query, token); err != nil {
		return nil, translateError(err)
	}
	return user, nil
}
