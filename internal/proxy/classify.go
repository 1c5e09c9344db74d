package proxy

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/user/scrape-orchestrator/internal/repository"
)

// Chromium net error codes and Go dial errors that implicate the egress path.
var proxyErrorMarkers = []string{
	"net::err_proxy_",
	"err_tunnel_connection_failed",
	"net::err_connection_",
	"net::err_timed_out",
	"net::err_name_not_resolved",
	"net::err_socks_connection_failed",
	"proxyconnect",
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
}

// IsProxyError reports whether err is a network or proxy failure that should
// count against the proxy that carried the request.
func IsProxyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repository.ErrProxyFailure) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range proxyErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
