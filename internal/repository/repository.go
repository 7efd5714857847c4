package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 唯一索引冲突
	ErrDuplicate = errors.New("duplicate record")
)

// mysql 唯一键冲突错误码
const mysqlDuplicateEntry = 1062

// Repositories 同一事务内使用的存储库集合
type Repositories struct {
	Products ProductRepository
	Orders   OrderRepository
}

// UnitOfWork 事务边界。fn 返回错误或发生 panic 时回滚全部修改
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos Repositories) error) error
}

// queryer *sqlx.DB 与 *sqlx.Tx 的公共方法
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// sqlUnitOfWork 基于MySQL事务的实现
type sqlUnitOfWork struct {
	db       *sqlx.DB
	products TransactionalProductRepository
	orders   TransactionalOrderRepository
}

// NewUnitOfWork 创建事务管理器
func NewUnitOfWork(db *sqlx.DB, products TransactionalProductRepository, orders TransactionalOrderRepository) UnitOfWork {
	return &sqlUnitOfWork{db: db, products: products, orders: orders}
}

// Do 开启事务并执行 fn
func (u *sqlUnitOfWork) Do(ctx context.Context, fn func(repos Repositories) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	repos := Repositories{
		Products: u.products.WithTx(tx),
		Orders:   u.orders.WithTx(tx),
	}
	if err := fn(repos); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// translateError 将驱动错误转换为存储库错误
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", ErrDuplicate, me.Message)
	}
	return err
}
