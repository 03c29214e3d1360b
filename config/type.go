package config

import "time"

type Config struct {
	GatewayURL string `mapstructure:"gateway_url"`
	StompURL   string `mapstructure:"stomp_url"`
	LogLevel   string `mapstructure:"log_level"`

	// RequestTimeout bounds every REST call to the gateway.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ReconnectDelay is the fixed (not exponential) pause between
	// reconnect attempts after the realtime connection drops.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	// Heartbeat is offered to the broker for both send and receive
	// heart-beating on the STOMP session.
	Heartbeat time.Duration `mapstructure:"heartbeat"`

	// DedupWindow bounds the timestamp distance within which a live frame
	// with the same sender and text reconciles an optimistic local copy.
	DedupWindow time.Duration `mapstructure:"dedup_window"`

	// UnreadDebounce is the minimum interval between two gateway queries
	// for "my active rooms"; checks inside the window serve the cached
	// result.
	UnreadDebounce time.Duration `mapstructure:"unread_debounce"`
}

// Default returns the configuration both binaries start from; a config
// file, when given, overrides individual fields.
func Default() Config {
	return Config{
		GatewayURL:     "http://localhost:8080/api/v1",
		StompURL:       "ws://localhost:8080/stomp/chats",
		LogLevel:       "info",
		RequestTimeout: 10 * time.Second,
		ReconnectDelay: 5 * time.Second,
		Heartbeat:      10 * time.Second,
		DedupWindow:    10 * time.Second,
		UnreadDebounce: 30 * time.Second,
	}
}
