package config

// Split captures the escrow threshold and the waiting window that must pass
// between the phase flip and the treasury pull.
type Split struct {
	Threshold            uint64 `toml:"Threshold"`
	WaitingWindowSeconds uint64 `toml:"WaitingWindowSeconds"`
}

// Treasury describes the parent collective's treasury holder.
type Treasury struct {
	// Account holds the treasury funds.
	Account string `toml:"Account"`
	// CustodyAccount receives escrowed tokens. Defaults to Account.
	CustodyAccount string `toml:"CustodyAccount,omitempty"`
	// ShareMode is "supply" to release escrowed/adjusted-supply of every
	// balance or "full" to release everything.
	ShareMode string `toml:"ShareMode"`
}

// Asset registers a fungible asset released alongside native currency.
type Asset struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// Auth configures bearer token validation on the HTTP surface.
type Auth struct {
	Enabled bool `toml:"Enabled"`
	// HMACSecretEnv names the environment variable holding the signing key.
	HMACSecretEnv    string `toml:"HMACSecretEnv"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds uint64 `toml:"ClockSkewSeconds"`
}

// RateLimit throttles write requests per client.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Logging configures the structured logger.
type Logging struct {
	Level       string `toml:"Level"`
	Environment string `toml:"Environment"`
	// File enables rotated file output in addition to stdout.
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers,omitempty"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// GenesisTokens mints collection tokens to Owner when state is first created.
type GenesisTokens struct {
	Owner string   `toml:"Owner"`
	IDs   []uint64 `toml:"IDs"`
	// ApproveEngine approves the engine for every minted token.
	ApproveEngine bool `toml:"ApproveEngine"`
}

// GenesisBalance credits Amount of Asset to Account when state is first
// created. Amount is a base-10 integer string.
type GenesisBalance struct {
	Account string `toml:"Account"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`
}

// Genesis seeds a fresh data directory.
type Genesis struct {
	Tokens   []GenesisTokens  `toml:"Tokens"`
	Balances []GenesisBalance `toml:"Balances"`
}
