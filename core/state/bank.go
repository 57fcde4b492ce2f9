package state

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

var (
	bankBalancePrefix = []byte("bank/balance/")
	assetListKey      = []byte("bank/assets")
	assetMetaPrefix   = []byte("bank/asset/")
)

// AssetMetadata describes a registered fungible asset.
type AssetMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

func bankBalanceKey(account [20]byte, asset string) []byte {
	buf := make([]byte, 0, len(bankBalancePrefix)+len(asset)+1+len(account))
	buf = append(buf, bankBalancePrefix...)
	buf = append(buf, asset...)
	buf = append(buf, ':')
	buf = append(buf, account[:]...)
	return buf
}

func assetMetaKey(symbol string) []byte {
	buf := make([]byte, 0, len(assetMetaPrefix)+len(symbol))
	buf = append(buf, assetMetaPrefix...)
	return append(buf, symbol...)
}

// BankBalance returns the balance of asset held by account.
func (m *Manager) BankBalance(account [20]byte, asset string) (*big.Int, error) {
	var balance *big.Int
	ok, err := m.KVGet(bankBalanceKey(account, asset), &balance)
	if err != nil {
		return nil, err
	}
	if !ok || balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// BankSetBalance overwrites the balance of asset held by account. Balances
// are bounded to 256 bits.
func (m *Manager) BankSetBalance(account [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: balance must not be negative")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("bank: balance overflow")
	}
	key := bankBalanceKey(account, asset)
	if amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}

// RegisterAsset stores the metadata for a fungible asset and records it in
// the asset index.
func (m *Manager) RegisterAsset(symbol, name string, decimals uint8) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("asset symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("asset %s: name must not be empty", normalized)
	}
	if exists, err := m.KVGet(assetMetaKey(normalized), nil); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("asset %s already registered", normalized)
	}
	list, err := m.Assets()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := m.KVPut(assetListKey, list); err != nil {
		return err
	}
	return m.KVPut(assetMetaKey(normalized), &AssetMetadata{
		Symbol:   normalized,
		Name:     strings.TrimSpace(name),
		Decimals: decimals,
	})
}

// Asset returns the metadata of a registered asset.
func (m *Manager) Asset(symbol string) (*AssetMetadata, bool, error) {
	meta := new(AssetMetadata)
	ok, err := m.KVGet(assetMetaKey(strings.ToUpper(strings.TrimSpace(symbol))), meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return meta, true, nil
}

// Assets lists the registered asset symbols in sorted order.
func (m *Manager) Assets() ([]string, error) {
	var list []string
	if err := m.KVGetList(assetListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AssetRegistered reports whether symbol names a registered asset.
func (m *Manager) AssetRegistered(symbol string) (bool, error) {
	return m.KVGet(assetMetaKey(strings.ToUpper(strings.TrimSpace(symbol))), nil)
}
