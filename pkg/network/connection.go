package network

import (
	"context"
	"errors"
	"net"
	"time"
)

// Dial 检查地址是否可建立TCP连接
func Dial(ctx context.Context, address string, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// AnyReachable 任一地址可连接即返回 nil，否则返回最后一个错误
func AnyReachable(ctx context.Context, addresses []string, timeout time.Duration) error {
	if len(addresses) == 0 {
		return errors.New("no address")
	}
	var err error
	for _, address := range addresses {
		if err = Dial(ctx, address, timeout); err == nil {
			return nil
		}
	}
	return err
}
