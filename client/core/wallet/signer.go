package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer 单个签名账户（私钥常驻内存，仅用于 CLI 会话）
type Signer struct {
	index   int
	path    string // 派生路径，私钥直接导入时为空
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner 从私钥创建签名器
func NewSigner(index int, key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		index:   index,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// ParsePrivateKey 解析十六进制私钥（可带 0x 前缀）
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Index 在签名器列表中的位置
func (s *Signer) Index() int { return s.index }

// Path 派生路径
func (s *Signer) Path() string { return s.path }

// Address 账户地址
func (s *Signer) Address() common.Address { return s.address }

// TransactOpts 创建绑定合约交易所需的签名选项
func (s *Signer) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// SignTx 使用链ID对应的最新签名规则签名交易
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}

// SignTypedData 按 EIP-712 签名，返回 65 字节 r||s||v（v 为 27/28）
func (s *Signer) SignTypedData(typedData apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
