package entity

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Proxy mirrors the `proxies` table.
type Proxy struct {
	ID            int64      `json:"id"`
	IP            string     `json:"ip"`
	Port          int        `json:"port"`
	Username      string     `json:"username,omitempty"`
	Password      string     `json:"-"`
	Active        bool       `json:"active"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Addr returns host:port.
func (p Proxy) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

// URL returns the proxy as an http URL, including credentials if set.
func (p Proxy) URL() *url.URL {
	u := &url.URL{Scheme: "http", Host: p.Addr()}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// HasCredentials reports whether the proxy requires authentication.
func (p Proxy) HasCredentials() bool {
	return p.Username != ""
}
