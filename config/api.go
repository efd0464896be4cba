package config

// APIConfig protects the read-only dispatch log endpoints served next to
// /metrics.
type APIConfig struct {
	// Token is the expected bearer token. Empty disables the check.
	Token string `json:"token"`
}
