package types

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ProxyProtocol is the allowed proxy protocol for the download tool.
type ProxyProtocol string

const (
	ProxyProtocolHTTP   ProxyProtocol = "http"
	ProxyProtocolHTTPS  ProxyProtocol = "https"
	ProxyProtocolSOCKS5 ProxyProtocol = "socks5"
)

// ProxyStrategy is the proxy selection strategy for a pool.
type ProxyStrategy string

const (
	ProxyStrategyRoundRobin ProxyStrategy = "round_robin"
	ProxyStrategyRandom     ProxyStrategy = "random"
)

// ProxyEndpoint is one proxy the media tools may route through.
type ProxyEndpoint struct {
	Protocol ProxyProtocol `json:"protocol" yaml:"protocol"`
	Host     string        `json:"host" yaml:"host"`
	Port     int           `json:"port" yaml:"port"`
	Username string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
}

// Validate checks protocol, host, port and the auth pair.
func (p *ProxyEndpoint) Validate() error {
	switch p.Protocol {
	case ProxyProtocolHTTP, ProxyProtocolHTTPS, ProxyProtocolSOCKS5:
	default:
		return fmt.Errorf("invalid protocol %q: must be http, https, or socks5", p.Protocol)
	}

	if p.Host == "" {
		return fmt.Errorf("proxy host is required")
	}

	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", p.Port)
	}

	if (p.Username != "") != (p.Password != "") {
		return fmt.Errorf("username and password must be provided together")
	}

	return nil
}

// URL renders the endpoint in the form yt-dlp accepts for --proxy.
func (p *ProxyEndpoint) URL() string {
	u := url.URL{
		Scheme: string(p.Protocol),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}

// Redacted renders the endpoint without credentials, for logs.
func (p *ProxyEndpoint) Redacted() string {
	return fmt.Sprintf("%s://%s", p.Protocol, net.JoinHostPort(p.Host, strconv.Itoa(p.Port)))
}

// ProxyPool is an ordered set of endpoints and a rotation strategy.
type ProxyPool struct {
	Strategy  ProxyStrategy   `json:"strategy" yaml:"strategy"`
	Endpoints []ProxyEndpoint `json:"endpoints" yaml:"endpoints"`
}

// LargePoolThreshold is the endpoint count above which round_robin is discouraged.
const LargePoolThreshold = 50

// Validate checks the strategy and every endpoint.
func (p *ProxyPool) Validate() error {
	switch p.Strategy {
	case ProxyStrategyRoundRobin, ProxyStrategyRandom:
	default:
		return fmt.Errorf("invalid strategy %q: must be round_robin or random", p.Strategy)
	}

	if len(p.Endpoints) == 0 {
		return fmt.Errorf("pool must have at least one endpoint")
	}

	for i := range p.Endpoints {
		if err := p.Endpoints[i].Validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
	}

	return nil
}

// Warnings returns non-fatal configuration issues.
func (p *ProxyPool) Warnings() []string {
	var warnings []string
	if p.Strategy == ProxyStrategyRoundRobin && len(p.Endpoints) > LargePoolThreshold {
		warnings = append(warnings, fmt.Sprintf("pool has %d endpoints with round_robin strategy; consider random for large pools", len(p.Endpoints)))
	}
	return warnings
}
