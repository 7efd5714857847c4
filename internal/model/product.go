package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 商品模型，订单模块只读取价格与库存，并在下单/取消时修改库存
type Product struct {
	ID        uint64          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
