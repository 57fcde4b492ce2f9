package config

import (
	"fmt"
	"strings"
	"time"

	"daosplit/crypto"
	"daosplit/native/split"
)

const (
	ShareModeSupply = "supply"
	ShareModeFull   = "full"
)

var (
	MaxWaitingWindowSeconds = uint64(365 * 24 * 60 * 60)
)

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir required")
	}
	if c.Split.Threshold == 0 {
		return fmt.Errorf("split: Threshold must be positive")
	}
	if c.Split.WaitingWindowSeconds > MaxWaitingWindowSeconds {
		return fmt.Errorf("split: WaitingWindowSeconds exceeds %d", MaxWaitingWindowSeconds)
	}
	if _, _, err := c.TreasuryAccounts(); err != nil {
		return err
	}
	switch c.Treasury.ShareMode {
	case ShareModeSupply, ShareModeFull:
	default:
		return fmt.Errorf("treasury: unknown ShareMode %q", c.Treasury.ShareMode)
	}
	seen := make(map[string]struct{}, len(c.Assets))
	for _, asset := range c.Assets {
		symbol := split.NormalizeAsset(asset.Symbol)
		if symbol == "" || symbol == split.NativeAsset {
			return fmt.Errorf("assets: invalid symbol %q", asset.Symbol)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("assets: %s listed twice", symbol)
		}
		seen[symbol] = struct{}{}
		if strings.TrimSpace(asset.Name) == "" {
			return fmt.Errorf("assets: %s name required", symbol)
		}
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecretEnv) == "" {
		return fmt.Errorf("auth: HMACSecretEnv required when auth is enabled")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	return nil
}

// SplitParams converts the split section into engine parameters.
func (c *Config) SplitParams() split.Params {
	return split.Params{
		Threshold:     c.Split.Threshold,
		WaitingWindow: time.Duration(c.Split.WaitingWindowSeconds) * time.Second,
	}
}

// TreasuryAccounts parses the treasury and custody accounts. The custody
// account falls back to the treasury account.
func (c *Config) TreasuryAccounts() (account, custody [20]byte, err error) {
	if strings.TrimSpace(c.Treasury.Account) == "" {
		return account, custody, fmt.Errorf("treasury: Account required")
	}
	account, err = crypto.ParseAccount(c.Treasury.Account)
	if err != nil {
		return account, custody, fmt.Errorf("treasury: Account: %w", err)
	}
	custody = account
	if strings.TrimSpace(c.Treasury.CustodyAccount) != "" {
		custody, err = crypto.ParseAccount(c.Treasury.CustodyAccount)
		if err != nil {
			return account, custody, fmt.Errorf("treasury: CustodyAccount: %w", err)
		}
	}
	return account, custody, nil
}
