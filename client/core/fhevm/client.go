package fhevm

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// TypedDataSigner 能对 EIP-712 消息签名的账户
type TypedDataSigner interface {
	Address() common.Address
	SignTypedData(td apitypes.TypedData) ([]byte, error)
}

// Config 插件配置
type Config struct {
	// ChainID 宿主链ID（句柄中记录的链）
	ChainID uint64
	// GatewayChainID 网关链ID（EIP-712 域）
	GatewayChainID uint64
	// DecryptionAddress 网关链上的解密合约
	DecryptionAddress common.Address
	// InputVerificationAddress 网关链上的输入验证合约
	InputVerificationAddress common.Address
	// DurationDays 解密授权有效天数，0 使用默认值
	DurationDays int64
}

// Client 插件客户端
type Client struct {
	cfg    Config
	cop    Coprocessor
	logger *zap.Logger
	now    func() time.Time
}

// NewClient 创建插件客户端
func NewClient(cfg Config, cop Coprocessor, logger *zap.Logger) *Client {
	if cfg.DurationDays <= 0 {
		cfg.DurationDays = DefaultDurationDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		cop:    cop,
		logger: logger,
		now:    time.Now,
	}
}

// Config 返回配置
func (c *Client) Config() Config { return c.cfg }

// Init 初始化：若网关支持健康检查则确认其可用且链ID一致
func (c *Client) Init(ctx context.Context) error {
	hc, ok := c.cop.(HealthChecker)
	if !ok {
		return nil
	}
	status, err := hc.Health(ctx)
	if err != nil {
		return fmt.Errorf("fhevm gateway unavailable: %w", err)
	}
	if status.ChainID != 0 && c.cfg.ChainID != 0 && status.ChainID != c.cfg.ChainID {
		return fmt.Errorf("%w: gateway serves chain %d, expected %d", ErrGateway, status.ChainID, c.cfg.ChainID)
	}
	c.logger.Debug("fhevm 网关就绪", zap.String("status", status.Status), zap.Uint64("chain_id", status.ChainID))
	return nil
}

// CreateEncryptedInput 创建绑定 (合约, 用户) 的加密输入构造器
func (c *Client) CreateEncryptedInput(contract, user common.Address) *InputBuilder {
	return &InputBuilder{
		client:   c,
		contract: contract,
		user:     user,
	}
}

// UserDecryptEuint 解密单个整数密文；调用方需先排除零句柄
func (c *Client) UserDecryptEuint(ctx context.Context, t FheType, handle common.Hash, contract common.Address, signer TypedDataSigner) (*big.Int, error) {
	if t == Ebool || t == Eaddress {
		return nil, fmt.Errorf("%w: %s is not an integer type", ErrTypeMismatch, t)
	}
	return c.decryptOne(ctx, t, handle, contract, signer)
}

// UserDecryptBool 解密 ebool 密文
func (c *Client) UserDecryptBool(ctx context.Context, handle common.Hash, contract common.Address, signer TypedDataSigner) (bool, error) {
	v, err := c.decryptOne(ctx, Ebool, handle, contract, signer)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

// UserDecryptAddress 解密 eaddress 密文
func (c *Client) UserDecryptAddress(ctx context.Context, handle common.Hash, contract common.Address, signer TypedDataSigner) (common.Address, error) {
	v, err := c.decryptOne(ctx, Eaddress, handle, contract, signer)
	if err != nil {
		return common.Address{}, err
	}
	return common.BigToAddress(v), nil
}

func (c *Client) decryptOne(ctx context.Context, t FheType, handle common.Hash, contract common.Address, signer TypedDataSigner) (*big.Int, error) {
	if IsZeroHandle(handle) {
		return nil, ErrZeroHandle
	}
	if HandleType(handle) != t {
		return nil, fmt.Errorf("%w: handle is %s, want %s", ErrTypeMismatch, HandleType(handle), t)
	}
	values, err := c.UserDecrypt(ctx, []HandleContractPair{{Handle: handle, ContractAddress: contract}}, signer)
	if err != nil {
		return nil, err
	}
	return values[handle], nil
}

// UserDecrypt 批量解密
//
// 流程：生成临时 ECIES 密钥对 → 用户签名 EIP-712 授权 → 网关校验 ACL 并用临时公钥重加密 → 本地解密。
func (c *Client) UserDecrypt(ctx context.Context, pairs []HandleContractPair, signer TypedDataSigner) (map[common.Hash]*big.Int, error) {
	if len(pairs) == 0 {
		return map[common.Hash]*big.Int{}, nil
	}
	if signer == nil {
		return nil, errors.New("user decrypt requires a signer")
	}
	for _, p := range pairs {
		if IsZeroHandle(p.Handle) {
			return nil, ErrZeroHandle
		}
	}

	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	priv := ecies.ImportECDSA(ephemeral)
	pubKey := crypto.FromECDSAPub(&ephemeral.PublicKey)

	contracts := uniqueContracts(pairs)
	start := c.now().Unix()
	td := UserDecryptTypedData(c.cfg.GatewayChainID, c.cfg.DecryptionAddress, pubKey, contracts, start, c.cfg.DurationDays, DefaultExtraData)
	sig, err := signer.SignTypedData(td)
	if err != nil {
		return nil, fmt.Errorf("sign decrypt request: %w", err)
	}

	req := &UserDecryptRequest{
		HandleContractPairs: pairs,
		RequestValidity: RequestValidity{
			StartTimestamp: fmt.Sprintf("%d", start),
			DurationDays:   fmt.Sprintf("%d", c.cfg.DurationDays),
		},
		ContractsChainID:  c.cfg.ChainID,
		ContractAddresses: contracts,
		UserAddress:       signer.Address(),
		Signature:         sig,
		PublicKey:         pubKey,
		ExtraData:         DefaultExtraData,
	}
	resp, err := c.cop.UserDecrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("user decrypt: %w", err)
	}

	out := make(map[common.Hash]*big.Int, len(resp.Results))
	for _, share := range resp.Results {
		clear, err := priv.Decrypt(share.Ciphertext, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("decrypt share for %s: %w", share.Handle.Hex(), err)
		}
		out[share.Handle] = new(big.Int).SetBytes(clear)
	}
	for _, p := range pairs {
		if _, ok := out[p.Handle]; !ok {
			return nil, fmt.Errorf("%w: no result for handle %s", ErrGateway, p.Handle.Hex())
		}
	}

	c.logger.Debug("用户解密完成",
		zap.Stringer("user", signer.Address()),
		zap.Int("handles", len(pairs)))
	return out, nil
}

// SealShare 用用户临时公钥重加密明文（网关侧使用）
func SealShare(publicKey []byte, value *big.Int) ([]byte, error) {
	pub, err := crypto.UnmarshalPubkey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), common.BigToHash(value).Bytes(), nil, nil)
}

func uniqueContracts(pairs []HandleContractPair) []common.Address {
	seen := make(map[common.Address]struct{}, len(pairs))
	var out []common.Address
	for _, p := range pairs {
		if _, ok := seen[p.ContractAddress]; ok {
			continue
		}
		seen[p.ContractAddress] = struct{}{}
		out = append(out, p.ContractAddress)
	}
	return out
}
