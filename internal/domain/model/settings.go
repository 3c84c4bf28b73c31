package model

import "time"

// GatewayConfig is the single active row of gateway credentials kept in the
// settings store. It is written by the admin surface (out of scope here)
// and read per-request; absence is a hard precondition failure, never a
// reason to fall back to defaults.
type GatewayConfig struct {
	APIKey        string
	WebhookSecret string
	Live          bool // false = gateway test environment
	BaseURL       string
	RetryCount    int
	RetryDelay    time.Duration
	UpdatedAt     time.Time
}
