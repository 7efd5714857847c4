package repository

import (
	"context"

	"shopadmin/internal/model"

	"github.com/jmoiron/sqlx"
)

// ProductRepository 商品库存存储库
type ProductRepository interface {
	GetByID(ctx context.Context, id uint64) (*model.Product, error)
	// GetByIDForUpdate 读取商品并加行锁，只在事务中有意义
	GetByIDForUpdate(ctx context.Context, id uint64) (*model.Product, error)
	// DecrementStock 库存充足时扣减，返回是否扣减成功
	DecrementStock(ctx context.Context, id uint64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, id uint64, quantity int) error
}

// TransactionalProductRepository 支持事务的商品存储库
type TransactionalProductRepository interface {
	ProductRepository
	WithTx(tx *sqlx.Tx) ProductRepository
}

// productRepository 商品存储库实现
type productRepository struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// NewProductRepository 创建商品存储库
func NewProductRepository(db *sqlx.DB) TransactionalProductRepository {
	return &productRepository{db: db}
}

// WithTx 返回在事务中操作的存储库
func (r *productRepository) WithTx(tx *sqlx.Tx) ProductRepository {
	return &productRepository{db: r.db, tx: tx}
}

func (r *productRepository) q() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const productColumns = `id, name, price, stock, created_at, updated_at`

// GetByID 根据ID获取商品
func (r *productRepository) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	if err := r.q().GetContext(ctx, &product, query, id); err != nil {
		return nil, translateError(err)
	}
	return &product, nil
}

// GetByIDForUpdate 加排他锁读取商品，同一商品的并发下单在此排队
func (r *productRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ? FOR UPDATE`
	if err := r.q().GetContext(ctx, &product, query, id); err != nil {
		return nil, translateError(err)
	}
	return &product, nil
}

// DecrementStock 条件扣减库存，影响行数为1才算成功
func (r *productRepository) DecrementStock(ctx context.Context, id uint64, quantity int) (bool, error) {
	query := `UPDATE products SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND stock >= ?`
	result, err := r.q().ExecContext(ctx, query, quantity, id, quantity)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// IncrementStock 归还库存
func (r *productRepository) IncrementStock(ctx context.Context, id uint64, quantity int) error {
	query := `UPDATE products SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := r.q().ExecContext(ctx, query, quantity, id)
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
