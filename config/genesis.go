package config

import (
	"fmt"
	"math/big"
	"strings"

	"daosplit/crypto"
	"daosplit/native/split"
)

// TokenAllocation is a parsed GenesisTokens entry.
type TokenAllocation struct {
	Owner         [20]byte
	IDs           []uint64
	ApproveEngine bool
}

// BalanceAllocation is a parsed GenesisBalance entry.
type BalanceAllocation struct {
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

// Allocations bundles the parsed genesis section.
type Allocations struct {
	Tokens   []TokenAllocation
	Balances []BalanceAllocation
}

// GenesisAllocations parses the genesis section into runtime values.
func (c *Config) GenesisAllocations() (Allocations, error) {
	var out Allocations
	minted := make(map[uint64]struct{})
	for i, entry := range c.Genesis.Tokens {
		owner, err := crypto.ParseAccount(entry.Owner)
		if err != nil {
			return out, fmt.Errorf("invalid genesis.Tokens[%d].Owner: %w", i, err)
		}
		for _, id := range entry.IDs {
			if _, dup := minted[id]; dup {
				return out, fmt.Errorf("genesis: token %d allocated twice", id)
			}
			minted[id] = struct{}{}
		}
		out.Tokens = append(out.Tokens, TokenAllocation{
			Owner:         owner,
			IDs:           append([]uint64(nil), entry.IDs...),
			ApproveEngine: entry.ApproveEngine,
		})
	}
	for i, entry := range c.Genesis.Balances {
		account, err := crypto.ParseAccount(entry.Account)
		if err != nil {
			return out, fmt.Errorf("invalid genesis.Balances[%d].Account: %w", i, err)
		}
		amount, err := parseUintAmount(entry.Amount)
		if err != nil {
			return out, fmt.Errorf("invalid genesis.Balances[%d].Amount: %w", i, err)
		}
		asset := split.NormalizeAsset(entry.Asset)
		if asset == "" {
			return out, fmt.Errorf("invalid genesis.Balances[%d].Asset: empty", i)
		}
		out.Balances = append(out.Balances, BalanceAllocation{Account: account, Asset: asset, Amount: amount})
	}
	return out, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
