package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// newHTTPClient returns the client shared by every outbound integration.
// Per-call deadlines come from request contexts; the client itself has no
// overall timeout. socks5 routes all traffic through a SOCKS5 proxy.
func newHTTPClient(socks5 string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16

	if socks5 != "" {
		dialer, err := proxy.SOCKS5("tcp", socks5, nil, &net.Dialer{Timeout: 10 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy %s: %w", socks5, err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks5 dialer does not support contexts")
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return cd.DialContext(ctx, network, addr)
		}
	}

	return &http.Client{Transport: transport}, nil
}
