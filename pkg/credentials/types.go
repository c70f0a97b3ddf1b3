package credentials

// Credentials represents the stored gateway tokens in credentials.toml.
type Credentials struct {
	Version  int                          `toml:"version"`
	Gateways map[string]GatewayCredential `toml:"gateways"`
}

// GatewayCredential holds the auth token for a single gateway, keyed by the
// gateway's base URL.
type GatewayCredential struct {
	Token string `toml:"token"`
}
