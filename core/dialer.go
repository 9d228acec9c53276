package core

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Dialer centralizes the timeout and keepalive settings used for every
// outbound peer dial, so reconnect and bootstrap logic shares one policy
// instead of constructing a fresh net.Dialer ad hoc.
type Dialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

// NewDialer returns a Dialer with the given timeout and TCP keepalive.
func NewDialer(timeout, keepAlive time.Duration) *Dialer {
	return &Dialer{Timeout: timeout, KeepAlive: keepAlive}
}

// Dial opens a TCP connection to address, honoring ctx cancellation.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialer: failed to connect to %s: %w", address, err)
	}
	return conn, nil
}
