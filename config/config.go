package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"daosplit/crypto"
)

type Config struct {
	ListenAddress         string `toml:"ListenAddress"`
	MetricsAddress        string `toml:"MetricsAddress"`
	DataDir               string `toml:"DataDir"`
	NetworkName           string `toml:"NetworkName"`
	EngineKeystorePath    string `toml:"EngineKeystorePath"`
	EngineKeystorePassEnv string `toml:"EngineKeystorePassEnv"`
	EventBufferSize       int    `toml:"EventBufferSize"`
	ReadTimeoutSeconds    uint64 `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds   uint64 `toml:"WriteTimeoutSeconds"`

	Split     Split     `toml:"Split"`
	Treasury  Treasury  `toml:"Treasury"`
	Assets    []Asset   `toml:"Assets"`
	Auth      Auth      `toml:"Auth"`
	RateLimit RateLimit `toml:"RateLimit"`
	Logging   Logging   `toml:"Logging"`
	Telemetry Telemetry `toml:"Telemetry"`
	Genesis   Genesis   `toml:"Genesis"`
}

// PassphraseSource resolves the engine keystore passphrase.
type PassphraseSource func() (string, error)

type loadOptions struct {
	passphrase PassphraseSource
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithKeystorePassphraseSource sets how the passphrase of a freshly created
// engine keystore is obtained. Without it the EngineKeystorePassEnv variable is
// read.
func WithKeystorePassphraseSource(source PassphraseSource) LoadOption {
	return func(o *loadOptions) { o.passphrase = source }
}

// Load loads the configuration from the given path. A default configuration is
// written when the file does not exist yet.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options.passphrase)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	if strings.TrimSpace(cfg.EngineKeystorePath) == "" {
		cfg.EngineKeystorePath = defaultKeystorePath(path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration of a local single-node deployment.
func Default() *Config {
	return &Config{
		ListenAddress:         ":8080",
		MetricsAddress:        ":9090",
		DataDir:               "./split-data",
		NetworkName:           "daosplit-local",
		EngineKeystorePassEnv: "SPLIT_KEYSTORE_PASSPHRASE",
		EventBufferSize:       1024,
		ReadTimeoutSeconds:    15,
		WriteTimeoutSeconds:   15,
		Split: Split{
			Threshold:            7,
			WaitingWindowSeconds: 7 * 24 * 60 * 60,
		},
		Treasury: Treasury{ShareMode: ShareModeSupply},
		Auth: Auth{
			Enabled:          true,
			HMACSecretEnv:    "SPLIT_JWT_SECRET",
			ClockSkewSeconds: 120,
		},
		RateLimit: RateLimit{RequestsPerMinute: 60, Burst: 10},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true, Metrics: true, Traces: true},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "daosplit-local"
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = 1024
	}
	if strings.TrimSpace(c.Treasury.ShareMode) == "" {
		c.Treasury.ShareMode = ShareModeSupply
	}
	c.Treasury.ShareMode = strings.ToLower(strings.TrimSpace(c.Treasury.ShareMode))
	if c.Assets == nil {
		c.Assets = []Asset{}
	}
}

// createDefault creates and saves a default configuration file together with
// the engine keystore. The treasury account is left empty and must be filled in
// before the daemon will start.
func createDefault(path string, source PassphraseSource) (*Config, error) {
	cfg := Default()
	cfg.EngineKeystorePath = defaultKeystorePath(path)
	if source == nil {
		source = func() (string, error) { return os.Getenv(cfg.EngineKeystorePassEnv), nil }
	}
	passphrase, err := source()
	if err != nil {
		return nil, fmt.Errorf("engine keystore passphrase: %w", err)
	}
	if _, _, err := crypto.LoadOrCreateKeystore(cfg.EngineKeystorePath, passphrase); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "engine.keystore")
}
