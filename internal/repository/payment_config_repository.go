package repository

import (
	"context"
	"time"

	"shopadmin/internal/model"

	"github.com/jmoiron/sqlx"
)

// PaymentConfigRepository 支付配置存储库，gateway 唯一
type PaymentConfigRepository interface {
	GetByGateway(ctx context.Context, gateway string) (*model.PaymentConfig, error)
	List(ctx context.Context) ([]model.PaymentConfig, error)
	ListEnabled(ctx context.Context) ([]model.PaymentConfig, error)
	// Upsert 按 gateway 新增或覆盖配置
	Upsert(ctx context.Context, cfg *model.PaymentConfig) error
	UpdateStatus(ctx context.Context, gateway string, status int8) error
	Delete(ctx context.Context, gateway string) error
}

// paymentConfigRepository 支付配置存储库实现
type paymentConfigRepository struct {
	db *sqlx.DB
}

// NewPaymentConfigRepository 创建支付配置存储库
func NewPaymentConfigRepository(db *sqlx.DB) PaymentConfigRepository {
	return &paymentConfigRepository{db: db}
}

const paymentConfigColumns = `id, gateway, config, status, created_at, updated_at`

// GetByGateway 根据网关获取配置
func (r *paymentConfigRepository) GetByGateway(ctx context.Context, gateway string) (*model.PaymentConfig, error) {
	var cfg model.PaymentConfig
	query := `SELECT ` + paymentConfigColumns + ` FROM payment_configs WHERE gateway = ?`
	if err := r.db.GetContext(ctx, &cfg, query, gateway); err != nil {
		return nil, translateError(err)
	}
	return &cfg, nil
}

// List 获取全部配置
func (r *paymentConfigRepository) List(ctx context.Context) ([]model.PaymentConfig, error) {
	configs := []model.PaymentConfig{}
	query := `SELECT ` + paymentConfigColumns + ` FROM payment_configs ORDER BY id`
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, err
	}
	return configs, nil
}

// ListEnabled 获取已启用的配置
func (r *paymentConfigRepository) ListEnabled(ctx context.Context) ([]model.PaymentConfig, error) {
	configs := []model.PaymentConfig{}
	query := `SELECT ` + paymentConfigColumns + ` FROM payment_configs WHERE status = ? ORDER BY id`
	if err := r.db.SelectContext(ctx, &configs, query, model.PaymentConfigEnabled); err != nil {
		return nil, err
	}
	return configs, nil
}

// Upsert 新增或更新配置，未设置的时间戳取当前时间
func (r *paymentConfigRepository) Upsert(ctx context.Context, cfg *model.PaymentConfig) error {
	now := time.Now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = now
	}
	query := `
		INSERT INTO payment_configs (gateway, config, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE config = VALUES(config), status = VALUES(status), updated_at = VALUES(updated_at)
	`
	_, err := r.db.ExecContext(ctx, query, cfg.Gateway, cfg.Config, cfg.Status, cfg.CreatedAt, cfg.UpdatedAt)
	return err
}

// UpdateStatus 修改启用状态
func (r *paymentConfigRepository) UpdateStatus(ctx context.Context, gateway string, status int8) error {
	// 状态未变化时 MySQL 影响行数为0，先确认记录存在
	if _, err := r.GetByGateway(ctx, gateway); err != nil {
		return err
	}
	query := `UPDATE payment_configs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE gateway = ?`
	_, err := r.db.ExecContext(ctx, query, status, gateway)
	return err
}

// Delete 删除配置
func (r *paymentConfigRepository) Delete(ctx context.Context, gateway string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM payment_configs WHERE gateway = ?`, gateway)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
