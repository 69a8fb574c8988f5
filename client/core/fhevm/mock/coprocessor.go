// Package mock is an in-process stand-in for the fhEVM coprocessor and gateway.
//
// 明文按句柄保存在内存中，不做任何真实加密；ACL、输入证明与用户解密授权的
// 校验规则与真实网关一致，足以驱动代币测试与本地开发。
package mock

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/fhevm"
)

// Version 模拟网关版本
const Version = "mock-1"

// 默认网关参数（与 Sepolia 上的 fhEVM 部署一致）
var (
	DefaultGatewayChainID           uint64 = 55815
	DefaultDecryptionAddress               = common.HexToAddress("0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1")
	DefaultInputVerificationAddress        = common.HexToAddress("0x7048C39f048125eDa9d678AEbaDfB22F7900a29F")
)

// maxDurationDays 用户解密授权的最长有效期
const maxDurationDays = 365

// Options 模拟协处理器参数
type Options struct {
	ChainID           uint64
	GatewayChainID    uint64
	DecryptionAddress common.Address
	// VerifierKey 输入验证者私钥，nil 时随机生成
	VerifierKey *ecdsa.PrivateKey
}

// ciphertext 模拟密文：类型 + 明文
type ciphertext struct {
	typ   fhevm.FheType
	value *big.Int
}

// Coprocessor 模拟协处理器
type Coprocessor struct {
	mu sync.RWMutex

	chainID           uint64
	gatewayChainID    uint64
	decryptionAddress common.Address
	verifierKey       *ecdsa.PrivateKey
	verifier          common.Address

	store   map[common.Hash]ciphertext
	acl     map[common.Hash]map[common.Address]struct{}
	counter uint64

	now    func() time.Time
	logger *zap.Logger
}

var (
	_ fhevm.Coprocessor   = (*Coprocessor)(nil)
	_ fhevm.HealthChecker = (*Coprocessor)(nil)
)

// New 创建模拟协处理器
func New(opts Options, logger *zap.Logger) (*Coprocessor, error) {
	if opts.ChainID == 0 {
		return nil, errors.New("chain id is required")
	}
	if opts.GatewayChainID == 0 {
		opts.GatewayChainID = DefaultGatewayChainID
	}
	if opts.DecryptionAddress == (common.Address{}) {
		opts.DecryptionAddress = DefaultDecryptionAddress
	}
	key := opts.VerifierKey
	if key == nil {
		var err error
		if key, err = crypto.GenerateKey(); err != nil {
			return nil, fmt.Errorf("generate verifier key: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coprocessor{
		chainID:           opts.ChainID,
		gatewayChainID:    opts.GatewayChainID,
		decryptionAddress: opts.DecryptionAddress,
		verifierKey:       key,
		verifier:          crypto.PubkeyToAddress(key.PublicKey),
		store:             make(map[common.Hash]ciphertext),
		acl:               make(map[common.Hash]map[common.Address]struct{}),
		now:               time.Now,
		logger:            logger,
	}, nil
}

// ClientConfig 与本协处理器匹配的插件客户端配置
func (c *Coprocessor) ClientConfig() fhevm.Config {
	return fhevm.Config{
		ChainID:                  c.chainID,
		GatewayChainID:           c.gatewayChainID,
		DecryptionAddress:        c.decryptionAddress,
		InputVerificationAddress: DefaultInputVerificationAddress,
	}
}

// ChainID 宿主链ID
func (c *Coprocessor) ChainID() uint64 { return c.chainID }

// Verifier 输入验证者地址
func (c *Coprocessor) Verifier() common.Address { return c.verifier }

// Health 健康状态
func (c *Coprocessor) Health(context.Context) (*fhevm.HealthStatus, error) {
	return &fhevm.HealthStatus{Status: "ok", ChainID: c.chainID, Version: Version}, nil
}

// ===== 网关接口 =====

// EncryptInput 保存明文并签发输入证明
func (c *Coprocessor) EncryptInput(_ context.Context, req *fhevm.EncryptInputRequest) (*fhevm.EncryptInputResponse, error) {
	if len(req.Values) == 0 {
		return nil, fhevm.ErrEmptyInput
	}
	if req.ContractChainID != 0 && req.ContractChainID != c.chainID {
		return nil, fmt.Errorf("%w: chain %d not served", fhevm.ErrValueOutOfRange, req.ContractChainID)
	}

	bits := 0
	values := make([]ciphertext, len(req.Values))
	for i, cv := range req.Values {
		v, err := fhevm.ParseClearValue(cv)
		if err != nil {
			return nil, err
		}
		bits += cv.Type.Bits()
		values[i] = ciphertext{typ: cv.Type, value: v}
	}
	if len(values) > fhevm.MaxInputValues || bits > fhevm.MaxInputBits {
		return nil, fmt.Errorf("%w: %d values, %d bits", fhevm.ErrInputTooLarge, len(values), bits)
	}

	c.mu.Lock()
	c.counter++
	seq := c.counter
	handles := make([]common.Hash, len(values))
	for i, ct := range values {
		digest := crypto.Keccak256Hash(
			[]byte("input"),
			uint64Bytes(seq),
			req.ContractAddress.Bytes(),
			req.UserAddress.Bytes(),
			[]byte{byte(i)},
		)
		h := fhevm.NewHandle(digest, uint8(i), c.chainID, ct.typ)
		c.store[h] = ct
		handles[i] = h
	}
	c.mu.Unlock()

	proof, err := signProof(c.verifierKey, handles, req.UserAddress, req.ContractAddress, c.chainID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("签发输入证明",
		zap.Stringer("contract", req.ContractAddress),
		zap.Stringer("user", req.UserAddress),
		zap.Int("handles", len(handles)))
	return &fhevm.EncryptInputResponse{Handles: handles, InputProof: proof}, nil
}

// UserDecrypt 校验授权签名与 ACL 后用用户公钥重加密明文
func (c *Coprocessor) UserDecrypt(_ context.Context, req *fhevm.UserDecryptRequest) (*fhevm.UserDecryptResponse, error) {
	if len(req.HandleContractPairs) == 0 {
		return &fhevm.UserDecryptResponse{}, nil
	}
	if req.ContractsChainID != c.chainID {
		return nil, fmt.Errorf("%w: contracts chain %d, serving %d", fhevm.ErrUnauthorized, req.ContractsChainID, c.chainID)
	}
	if err := c.checkValidity(req.RequestValidity); err != nil {
		return nil, err
	}

	signer, err := fhevm.RecoverUserDecryptSigner(c.gatewayChainID, c.decryptionAddress, req)
	if err != nil {
		return nil, err
	}
	if signer != req.UserAddress {
		return nil, fmt.Errorf("%w: signed by %s, not %s", fhevm.ErrInvalidSignature, signer.Hex(), req.UserAddress.Hex())
	}

	listed := make(map[common.Address]struct{}, len(req.ContractAddresses))
	for _, a := range req.ContractAddresses {
		listed[a] = struct{}{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	resp := &fhevm.UserDecryptResponse{Results: make([]fhevm.DecryptShare, 0, len(req.HandleContractPairs))}
	for _, p := range req.HandleContractPairs {
		if _, ok := listed[p.ContractAddress]; !ok {
			return nil, fmt.Errorf("%w: contract %s not in signed list", fhevm.ErrUnauthorized, p.ContractAddress.Hex())
		}
		if p.ContractAddress == req.UserAddress {
			return nil, fmt.Errorf("%w: user address equals contract address", fhevm.ErrUnauthorized)
		}
		ct, ok := c.store[p.Handle]
		if !ok {
			return nil, fmt.Errorf("%w: unknown handle %s", fhevm.ErrUnauthorized, p.Handle.Hex())
		}
		if !c.allowedLocked(p.Handle, req.UserAddress) {
			return nil, fmt.Errorf("%w: user %s on %s", fhevm.ErrUnauthorized, req.UserAddress.Hex(), p.Handle.Hex())
		}
		if !c.allowedLocked(p.Handle, p.ContractAddress) {
			return nil, fmt.Errorf("%w: contract %s on %s", fhevm.ErrUnauthorized, p.ContractAddress.Hex(), p.Handle.Hex())
		}

		sealed, err := fhevm.SealShare(req.PublicKey, ct.value)
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", p.Handle.Hex(), err)
		}
		resp.Results = append(resp.Results, fhevm.DecryptShare{Handle: p.Handle, Ciphertext: sealed})
	}

	c.logger.Debug("用户解密",
		zap.Stringer("user", req.UserAddress),
		zap.Int("handles", len(resp.Results)))
	return resp, nil
}

func (c *Coprocessor) checkValidity(v fhevm.RequestValidity) error {
	start, err := strconv.ParseInt(v.StartTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: start timestamp %q", fhevm.ErrInvalidSignature, v.StartTimestamp)
	}
	days, err := strconv.ParseInt(v.DurationDays, 10, 64)
	if err != nil || days <= 0 || days > maxDurationDays {
		return fmt.Errorf("%w: duration days %q", fhevm.ErrUnauthorized, v.DurationDays)
	}
	now := c.now().Unix()
	if start > now {
		return fmt.Errorf("%w: request starts in the future", fhevm.ErrUnauthorized)
	}
	if now >= start+days*86400 {
		return fmt.Errorf("%w: request expired", fhevm.ErrUnauthorized)
	}
	return nil
}

// ===== ACL =====

// Allow 允许账户使用句柄
func (c *Coprocessor) Allow(handle common.Hash, account common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.acl[handle]
	if !ok {
		set = make(map[common.Address]struct{})
		c.acl[handle] = set
	}
	set[account] = struct{}{}
}

// IsAllowed 账户是否可使用句柄
func (c *Coprocessor) IsAllowed(handle common.Hash, account common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allowedLocked(handle, account)
}

func (c *Coprocessor) allowedLocked(handle common.Hash, account common.Address) bool {
	_, ok := c.acl[handle][account]
	return ok
}

// ===== 密文运算（代币合约使用） =====

// FromExternal 校验外部输入证明，返回已授权给合约的句柄
//
// 证明只对签发时的 (user, contract) 有效；同一用户可重复使用。
func (c *Coprocessor) FromExternal(handle common.Hash, proof []byte, user, contract common.Address, want fhevm.FheType) (common.Hash, error) {
	handles, err := verifyProof(c.verifier, proof, user, contract, c.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	idx := int(fhevm.HandleIndex(handle))
	if idx >= len(handles) || handles[idx] != handle {
		return common.Hash{}, fmt.Errorf("%w: handle %s not in proof", fhevm.ErrInvalidProof, handle.Hex())
	}
	if fhevm.HandleType(handle) != want {
		return common.Hash{}, fmt.Errorf("%w: handle is %s, want %s", fhevm.ErrTypeMismatch, fhevm.HandleType(handle), want)
	}

	c.mu.RLock()
	_, ok := c.store[handle]
	c.mu.RUnlock()
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: unknown handle %s", fhevm.ErrInvalidProof, handle.Hex())
	}

	c.Allow(handle, contract)
	return handle, nil
}

// TrivialEncrypt 将明文直接包装为密文
func (c *Coprocessor) TrivialEncrypt(t fhevm.FheType, v *big.Int) common.Hash {
	return c.put(t, wrap(t, v))
}

// Add 同类型加法（按位宽取模）
func (c *Coprocessor) Add(a, b common.Hash) (common.Hash, error) {
	x, y, err := c.operands(a, b)
	if err != nil {
		return common.Hash{}, err
	}
	return c.put(x.typ, wrap(x.typ, new(big.Int).Add(x.value, y.value))), nil
}

// Sub 同类型减法（按位宽取模）
func (c *Coprocessor) Sub(a, b common.Hash) (common.Hash, error) {
	x, y, err := c.operands(a, b)
	if err != nil {
		return common.Hash{}, err
	}
	return c.put(x.typ, wrap(x.typ, new(big.Int).Sub(x.value, y.value))), nil
}

// Le a <= b，结果为 ebool
func (c *Coprocessor) Le(a, b common.Hash) (common.Hash, error) {
	x, y, err := c.operands(a, b)
	if err != nil {
		return common.Hash{}, err
	}
	r := big.NewInt(0)
	if x.value.Cmp(y.value) <= 0 {
		r.SetInt64(1)
	}
	return c.put(fhevm.Ebool, r), nil
}

// Select cond ? a : b
func (c *Coprocessor) Select(cond, a, b common.Hash) (common.Hash, error) {
	c.mu.RLock()
	cc, ok := c.store[cond]
	c.mu.RUnlock()
	if !ok || cc.typ != fhevm.Ebool {
		return common.Hash{}, fmt.Errorf("%w: select condition must be an ebool", fhevm.ErrTypeMismatch)
	}
	x, y, err := c.operands(a, b)
	if err != nil {
		return common.Hash{}, err
	}
	if cc.value.Sign() != 0 {
		return c.put(x.typ, x.value), nil
	}
	return c.put(y.typ, y.value), nil
}

// Plaintext 返回句柄明文（仅供测试断言）
func (c *Coprocessor) Plaintext(handle common.Hash) (fhevm.FheType, *big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.store[handle]
	if !ok {
		return 0, nil, false
	}
	return ct.typ, new(big.Int).Set(ct.value), true
}

// Ciphertexts 已保存的密文个数（仅供测试断言）
func (c *Coprocessor) Ciphertexts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// ===== 回滚 =====

// Snapshot 交易执行前的 ACL 与计算结果集合
type Snapshot struct {
	computed map[common.Hash]struct{}
	acl      map[common.Hash]map[common.Address]struct{}
}

// Snapshot 记录当前状态，交易回滚时交给 Revert
func (c *Coprocessor) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		computed: make(map[common.Hash]struct{}),
		acl:      make(map[common.Hash]map[common.Address]struct{}, len(c.acl)),
	}
	for h := range c.store {
		if fhevm.HandleIndex(h) == fhevm.ComputedHandleIndex {
			s.computed[h] = struct{}{}
		}
	}
	for h, set := range c.acl {
		cp := make(map[common.Address]struct{}, len(set))
		for a := range set {
			cp[a] = struct{}{}
		}
		s.acl[h] = cp
	}
	return s
}

// Revert 撤销快照之后的授权与计算结果
//
// 加密输入产生的密文不属于交易，保留；计数器不回退，句柄不会复用。
func (c *Coprocessor) Revert(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h := range c.store {
		if fhevm.HandleIndex(h) != fhevm.ComputedHandleIndex {
			continue
		}
		if _, ok := s.computed[h]; !ok {
			delete(c.store, h)
		}
	}
	c.acl = s.acl
}

func (c *Coprocessor) operands(a, b common.Hash) (ciphertext, ciphertext, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	x, ok := c.store[a]
	if !ok {
		return ciphertext{}, ciphertext{}, fmt.Errorf("%w: unknown handle %s", fhevm.ErrZeroHandle, a.Hex())
	}
	y, ok := c.store[b]
	if !ok {
		return ciphertext{}, ciphertext{}, fmt.Errorf("%w: unknown handle %s", fhevm.ErrZeroHandle, b.Hex())
	}
	if x.typ != y.typ {
		return ciphertext{}, ciphertext{}, fmt.Errorf("%w: %s vs %s", fhevm.ErrTypeMismatch, x.typ, y.typ)
	}
	return x, y, nil
}

// put 保存计算结果并返回新句柄
func (c *Coprocessor) put(t fhevm.FheType, v *big.Int) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	digest := crypto.Keccak256Hash([]byte("computed"), uint64Bytes(c.counter))
	h := fhevm.NewHandle(digest, fhevm.ComputedHandleIndex, c.chainID, t)
	c.store[h] = ciphertext{typ: t, value: v}
	return h
}

// wrap 按类型位宽取模
func wrap(t fhevm.FheType, v *big.Int) *big.Int {
	bits := t.Bits()
	if t == fhevm.Ebool {
		bits = 1
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return new(big.Int).Mod(v, mod)
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
