// Package memory 内存存储实现，STORAGE=memory 时作为运行时后端，也用于服务层测试
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"shopadmin/internal/model"
	"shopadmin/internal/repository"
)

// Store 内存数据集。mu 同时充当事务锁，事务内的修改在失败时整体回滚
type Store struct {
	mu sync.Mutex

	products map[uint64]model.Product
	orders   map[uint64]model.Order
	items    map[uint64][]model.OrderItem
	configs  map[string]model.PaymentConfig
	users    map[string]repository.User

	nextProductID uint64
	nextOrderID   uint64
	nextItemID    uint64
	nextConfigID  uint64
}

// NewStore 创建空的内存数据集
func NewStore() *Store {
	return &Store{
		products: make(map[uint64]model.Product),
		orders:   make(map[uint64]model.Order),
		items:    make(map[uint64][]model.OrderItem),
		configs:  make(map[string]model.PaymentConfig),
		users:    make(map[string]repository.User),
	}
}

// snapshot 事务开始前的数据副本
type snapshot struct {
	products map[uint64]model.Product
	orders   map[uint64]model.Order
	items    map[uint64][]model.OrderItem

	nextProductID uint64
	nextOrderID   uint64
	nextItemID    uint64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		products:      make(map[uint64]model.Product, len(s.products)),
		orders:        make(map[uint64]model.Order, len(s.orders)),
		items:         make(map[uint64][]model.OrderItem, len(s.items)),
		nextProductID: s.nextProductID,
		nextOrderID:   s.nextOrderID,
		nextItemID:    s.nextItemID,
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = append([]model.OrderItem(nil), v...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.products = snap.products
	s.orders = snap.orders
	s.items = snap.items
	s.nextProductID = snap.nextProductID
	s.nextOrderID = snap.nextOrderID
	s.nextItemID = snap.nextItemID
}

// AddProduct 写入商品，ID为0时自动分配
func (s *Store) AddProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextProductID++
		p.ID = s.nextProductID
	} else if p.ID > s.nextProductID {
		s.nextProductID = p.ID
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p
}

// AddUser 写入可通过Token认证的用户
func (s *Store) AddUser(u repository.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Status == 0 {
		u.Status = 1
	}
	s.users[u.Token] = u
}

// Repositories 非事务存储库集合
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Products: &productRepository{store: s},
		Orders:   &orderRepository{store: s},
	}
}

// UnitOfWork 事务管理器
func (s *Store) UnitOfWork() repository.UnitOfWork {
	return &unitOfWork{store: s}
}

// PaymentConfigs 支付配置存储库
func (s *Store) PaymentConfigs() repository.PaymentConfigRepository {
	return &paymentConfigRepository{store: s}
}

// Users 用户存储库
func (s *Store) Users() repository.UserRepository {
	return &userRepository{store: s}
}

// lock 非事务调用时加锁，事务内已持有锁
func (s *Store) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type unitOfWork struct {
	store *Store
}

// Do 持有全局锁执行 fn，失败或 panic 时恢复快照
func (u *unitOfWork) Do(ctx context.Context, fn func(repos repository.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
	}()

	repos := repository.Repositories{
		Products: &productRepository{store: s, inTx: true},
		Orders:   &orderRepository{store: s, inTx: true},
	}
	if err := fn(repos); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type productRepository struct {
	store *Store
	inTx  bool
}

func (r *productRepository) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	defer r.store.lock(r.inTx)()
	p, ok := r.store.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *productRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *productRepository) DecrementStock(ctx context.Context, id uint64, quantity int) (bool, error) {
	defer r.store.lock(r.inTx)()
	p, ok := r.store.products[id]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now()
	r.store.products[id] = p
	return true, nil
}

func (r *productRepository) IncrementStock(ctx context.Context, id uint64, quantity int) error {
	defer r.store.lock(r.inTx)()
	p, ok := r.store.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now()
	r.store.products[id] = p
	return nil
}

type orderRepository struct {
	store *Store
	inTx  bool
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	defer r.store.lock(r.inTx)()
	for _, o := range r.store.orders {
		if o.OrderNo == order.OrderNo {
			return repository.ErrDuplicate
		}
	}
	r.store.nextOrderID++
	order.ID = r.store.nextOrderID

	items := make([]model.OrderItem, len(order.Items))
	for i := range order.Items {
		r.store.nextItemID++
		order.Items[i].ID = r.store.nextItemID
		order.Items[i].OrderID = order.ID
		items[i] = order.Items[i]
	}
	stored := *order
	stored.Items = nil
	r.store.orders[order.ID] = stored
	r.store.items[order.ID] = items
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	defer r.store.lock(r.inTx)()
	o, ok := r.store.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	defer r.store.lock(r.inTx)()
	for _, o := range r.store.orders {
		if o.OrderNo == orderNo {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *orderRepository) ListItems(ctx context.Context, orderID uint64) ([]model.OrderItem, error) {
	defer r.store.lock(r.inTx)()
	return append([]model.OrderItem{}, r.store.items[orderID]...), nil
}

func (r *orderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, int64, error) {
	defer r.store.lock(r.inTx)()
	matched := []model.Order{}
	for _, o := range r.store.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.UserID != 0 && o.UserID != filter.UserID {
			continue
		}
		if filter.OrderNo != "" && o.OrderNo != filter.OrderNo {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	start := filter.Offset()
	if start >= len(matched) {
		return []model.Order{}, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *orderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]uint64, error) {
	defer r.store.lock(r.inTx)()
	ids := []uint64{}
	for id, o := range r.store.orders {
		if o.Status == model.OrderStatusPending && o.CreatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// update 状态为 from 时执行 apply，返回是否命中
func (r *orderRepository) update(id uint64, from model.OrderStatus, apply func(o *model.Order)) bool {
	defer r.store.lock(r.inTx)()
	o, ok := r.store.orders[id]
	if !ok || o.Status != from {
		return false
	}
	apply(&o)
	r.store.orders[id] = o
	return true
}

func (r *orderRepository) SetPaymentGateway(ctx context.Context, id uint64, gateway string) (bool, error) {
	return r.update(id, model.OrderStatusPending, func(o *model.Order) {
		o.PaymentGateway = &gateway
		o.UpdatedAt = time.Now()
	}), nil
}

func (r *orderRepository) MarkPaid(ctx context.Context, id uint64, gateway, tradeNo string, paidAt time.Time) (bool, error) {
	return r.update(id, model.OrderStatusPending, func(o *model.Order) {
		o.Status = model.OrderStatusPaid
		o.PaymentGateway = &gateway
		o.TradeNo = &tradeNo
		o.PaidAt = &paidAt
		o.UpdatedAt = paidAt
	}), nil
}

func (r *orderRepository) MarkShipped(ctx context.Context, id uint64, logistics model.Logistics, shippedAt time.Time) (bool, error) {
	return r.update(id, model.OrderStatusPaid, func(o *model.Order) {
		o.Status = model.OrderStatusShipped
		o.LogisticsCompany = logistics.Company
		o.LogisticsNumber = logistics.Number
		o.ShippedAt = &shippedAt
		o.UpdatedAt = shippedAt
	}), nil
}

func (r *orderRepository) MarkCompleted(ctx context.Context, id uint64, completedAt time.Time) (bool, error) {
	return r.update(id, model.OrderStatusShipped, func(o *model.Order) {
		o.Status = model.OrderStatusCompleted
		o.CompletedAt = &completedAt
		o.UpdatedAt = completedAt
	}), nil
}

func (r *orderRepository) MarkCancelled(ctx context.Context, id uint64, from model.OrderStatus, cancelledAt time.Time) (bool, error) {
	return r.update(id, from, func(o *model.Order) {
		o.Status = model.OrderStatusCancelled
		o.CancelledAt = &cancelledAt
		o.UpdatedAt = cancelledAt
	}), nil
}

type paymentConfigRepository struct {
	store *Store
}

func (r *paymentConfigRepository) GetByGateway(ctx context.Context, gateway string) (*model.PaymentConfig, error) {
	defer r.store.lock(false)()
	cfg, ok := r.store.configs[gateway]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cfg.Config = copyConfig(cfg.Config)
	return &cfg, nil
}

func (r *paymentConfigRepository) list(enabledOnly bool) []model.PaymentConfig {
	defer r.store.lock(false)()
	configs := []model.PaymentConfig{}
	for _, cfg := range r.store.configs {
		if enabledOnly && !cfg.Enabled() {
			continue
		}
		cfg.Config = copyConfig(cfg.Config)
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs
}

func (r *paymentConfigRepository) List(ctx context.Context) ([]model.PaymentConfig, error) {
	return r.list(false), nil
}

func (r *paymentConfigRepository) ListEnabled(ctx context.Context) ([]model.PaymentConfig, error) {
	return r.list(true), nil
}

func (r *paymentConfigRepository) Upsert(ctx context.Context, cfg *model.PaymentConfig) error {
	defer r.store.lock(false)()
	stored := *cfg
	stored.Config = copyConfig(cfg.Config)
	if existing, ok := r.store.configs[cfg.Gateway]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		r.store.nextConfigID++
		stored.ID = r.store.nextConfigID
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	r.store.configs[cfg.Gateway] = stored
	cfg.ID = stored.ID
	return nil
}

func (r *paymentConfigRepository) UpdateStatus(ctx context.Context, gateway string, status int8) error {
	defer r.store.lock(false)()
	cfg, ok := r.store.configs[gateway]
	if !ok {
		return repository.ErrNotFound
	}
	cfg.Status = status
	cfg.UpdatedAt = time.Now()
	r.store.configs[gateway] = cfg
	return nil
}

func (r *paymentConfigRepository) Delete(ctx context.Context, gateway string) error {
	defer r.store.lock(false)()
	if _, ok := r.store.configs[gateway]; !ok {
		return repository.ErrNotFound
	}
	delete(r.store.configs, gateway)
	return nil
}

func copyConfig(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type userRepository struct {
	store *Store
}

func (r *userRepository) GetByToken(ctx context.Context, token string) (*repository.User, error) {
	defer r.store.lock(false)()
	u, ok := r.store.users[token]
	if !ok || u.Status != 1 {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}
