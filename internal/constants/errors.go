package constants

// 认证相关错误
const (
	ErrUnauthorized           = "unauthorized"
	ErrInvalidToken           = "invalid token"
	ErrInsufficientPermission = "permission denied"
)

// 参数相关错误
const (
	ErrInvalidParams    = "invalid params"
	ErrInvalidOrderID   = "invalid order id"
	ErrItemsRequired    = "items must not be empty"
	ErrItemInvalid      = "product_id and a positive quantity are required"
	ErrAddressRequired  = "address must not be empty"
	ErrLogisticsMissing = "logistics company and number are required"
	ErrInvalidStatus    = "invalid status value"
	ErrGatewayRequired  = "gateway is required"
	ErrMissingFields    = "missing required fields"
)

// 不存在类错误
const (
	ErrOrderNotFound   = "order not found"
	ErrProductNotFound = "product not found"
	ErrConfigNotFound  = "payment config not found"
)

// 业务规则类错误
const (
	ErrInsufficientStock = "insufficient stock"
	ErrStatusNotCorrect  = "order status not correct"
	ErrAlreadyCompleted  = "order already completed, cannot cancel"
	ErrAlreadyCancelled  = "order already cancelled"
	ErrOrderCancelled    = "order cancelled, payment requires manual refund"
	ErrGatewayDisabled   = "payment gateway not enabled"
	ErrNotRefundable     = "order is not in a refundable state"
	ErrNoPaymentGateway  = "order has no recorded payment gateway"
)

// 信任类错误
const (
	ErrUnsupportedGateway = "unsupported payment gateway"
	ErrSignatureInvalid   = "signature invalid"
	ErrTradeNotSuccess    = "trade not successful"
	ErrAmountMismatch     = "paid amount does not match order total"
)

// 网关调用错误
const (
	ErrPaymentAttemptFailed = "payment attempt failed"
	ErrCaptureFailed        = "payment capture failed"
	ErrRefundFailed         = "refund failed"
)

// 成功消息
const (
	SuccessCreate = "created"
	SuccessUpdate = "updated"
	SuccessDelete = "deleted"
	SuccessGet    = "ok"
)
