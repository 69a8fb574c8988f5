package wallet

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnknownAccount 选择器无法解析为已配置的签名账户
var ErrUnknownAccount = errors.New("unknown account")

// maxDerivedAccounts 单次最多派生的账户数
const maxDerivedAccounts = 256

// DeriveFromMnemonic 按 m/44'/60'/0'/0/i 派生前 count 个签名器
func DeriveFromMnemonic(mnemonic, passphrase string, count int) ([]*Signer, error) {
	if count <= 0 || count > maxDerivedAccounts {
		return nil, fmt.Errorf("account count out of range: %d", count)
	}

	seed, err := MnemonicToSeed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}

	// 使用 Bitcoin mainnet 参数仅用于 HD 派生，不影响以太坊地址
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	// 先派生到 m/44'/60'/0'/0，再逐个派生地址索引
	base := EthereumPath(0)
	components := base.ToUint32Array()
	parent := master
	for _, c := range components[:4] {
		if parent, err = parent.Derive(c); err != nil {
			return nil, fmt.Errorf("derive %s: %w", base, err)
		}
	}

	signers := make([]*Signer, 0, count)
	for i := 0; i < count; i++ {
		path := base.WithAddressIndex(uint32(i))
		child, err := parent.Derive(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
		ecKey, err := child.ECPrivKey()
		if err != nil {
			return nil, fmt.Errorf("private key for %s: %w", path, err)
		}
		key, err := crypto.ToECDSA(ecKey.Serialize())
		if err != nil {
			return nil, fmt.Errorf("convert key for %s: %w", path, err)
		}

		s := NewSigner(i, key)
		s.path = path.String()
		signers = append(signers, s)
	}

	return signers, nil
}

// FromPrivateKeys 按给定顺序创建签名器
func FromPrivateKeys(keys []string) ([]*Signer, error) {
	signers := make([]*Signer, 0, len(keys))
	for i, k := range keys {
		key, err := ParsePrivateKey(k)
		if err != nil {
			return nil, fmt.Errorf("private key #%d: %w", i, err)
		}
		signers = append(signers, NewSigner(i, key))
	}
	return signers, nil
}

// Accounts 有序签名器列表 + 别名
type Accounts struct {
	signers []*Signer
	aliases map[string]int
}

// NewAccounts 创建账户集合；别名统一转为小写
func NewAccounts(signers []*Signer, aliases map[string]int) *Accounts {
	a := &Accounts{
		signers: signers,
		aliases: make(map[string]int, len(aliases)),
	}
	for name, idx := range aliases {
		a.aliases[strings.ToLower(name)] = idx
	}
	return a
}

// Len 签名器数量
func (a *Accounts) Len() int { return len(a.signers) }

// All 返回全部签名器
func (a *Accounts) All() []*Signer { return a.signers }

// At 按下标获取签名器
func (a *Accounts) At(i int) (*Signer, error) {
	if i < 0 || i >= len(a.signers) {
		return nil, fmt.Errorf("%w: index %d (have %d signers)", ErrUnknownAccount, i, len(a.signers))
	}
	return a.signers[i], nil
}

// Resolve 解析签名器选择器：别名（alice）、下标（0）或签名器地址
func (a *Accounts) Resolve(selector string) (*Signer, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrUnknownAccount)
	}

	if idx, ok := a.aliases[strings.ToLower(selector)]; ok {
		return a.At(idx)
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		return a.At(idx)
	}

	if common.IsHexAddress(selector) {
		addr := common.HexToAddress(selector)
		for _, s := range a.signers {
			if s.address == addr {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%w: %s is not a configured signer", ErrUnknownAccount, addr.Hex())
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, selector)
}

// ResolveAddress 解析接收方：签名器选择器或任意十六进制地址
func (a *Accounts) ResolveAddress(selector string) (common.Address, error) {
	selector = strings.TrimSpace(selector)
	if common.IsHexAddress(selector) {
		return common.HexToAddress(selector), nil
	}
	s, err := a.Resolve(selector)
	if err != nil {
		return common.Address{}, err
	}
	return s.Address(), nil
}

// NameOf 返回地址对应的别名（无别名时返回 #下标，非签名器返回空串）
func (a *Accounts) NameOf(addr common.Address) string {
	for _, s := range a.signers {
		if s.address != addr {
			continue
		}
		names := a.aliasesFor(s.index)
		if len(names) > 0 {
			return names[0]
		}
		return "#" + strconv.Itoa(s.index)
	}
	return ""
}

// aliasesFor 返回指向某下标的全部别名（排序后）
func (a *Accounts) aliasesFor(idx int) []string {
	var names []string
	for name, i := range a.aliases {
		if i == idx {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
