package resilience

import (
	"net/http"
	"time"
)

// TransportConfig bounds the connections an outbound client keeps per host
type TransportConfig struct {
	MaxIdle        int
	MaxPerHost     int
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultTransportConfig suits a single low-volume endpoint such as an alert webhook
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdle:        4,
		MaxPerHost:     4,
		IdleTimeout:    90 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// NewHTTPClient builds a client with a dedicated transport so a slow
// downstream cannot exhaust connections shared with the rest of the process.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultTransportConfig().MaxIdle
	}
	if cfg.MaxPerHost <= 0 {
		cfg.MaxPerHost = cfg.MaxIdle
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.MaxIdle,
		MaxConnsPerHost:       cfg.MaxPerHost,
		MaxIdleConnsPerHost:   max(cfg.MaxIdle/2, 1),
		IdleConnTimeout:       cfg.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}
