// Package tokenops implements the confidential token operations exposed by the CLI.
package tokenops

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/deployments"
	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/token"
	"github.com/weisyn/ctoken/client/core/wallet"
)

// ContractOpener 按地址打开合约
type ContractOpener func(ctx context.Context, address common.Address) (token.Contract, error)

// SubmitHook 交易发送后、等待回执前回调
type SubmitHook func(method string, tx common.Hash)

// Service 机密代币操作服务
type Service struct {
	registry *deployments.Registry
	accounts *wallet.Accounts
	fhevm    *fhevm.Client
	open     ContractOpener
	chainID  *big.Int
	logger   *zap.Logger

	onSubmit SubmitHook

	initOnce sync.Once
	initErr  error
}

// NewService 创建操作服务
func NewService(
	registry *deployments.Registry,
	accounts *wallet.Accounts,
	fhevmClient *fhevm.Client,
	open ContractOpener,
	chainID *big.Int,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		accounts: accounts,
		fhevm:    fhevmClient,
		open:     open,
		chainID:  chainID,
		logger:   logger,
	}
}

// OnSubmit 设置交易发送回调
func (s *Service) OnSubmit(hook SubmitHook) { s.onSubmit = hook }

// Accounts 签名账户
func (s *Service) Accounts() *wallet.Accounts { return s.accounts }

// ===== O1: 合约地址 =====

// TokenAddress 解析合约地址（覆盖地址优先）
func (s *Service) TokenAddress(target Target) (*AddressResult, error) {
	addr, err := s.registry.Resolve(target.Name, target.Address)
	if err != nil {
		return nil, err
	}
	return &AddressResult{Name: target.Name, Network: s.registry.Network(), Address: addr}, nil
}

// Info 合约元数据
func (s *Service) Info(ctx context.Context, target Target) (*token.Metadata, common.Address, error) {
	c, err := s.contract(ctx, target)
	if err != nil {
		return nil, common.Address{}, err
	}
	m, err := c.Metadata(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	return m, c.Address(), nil
}

// ===== O2: 余额解密 =====

// Balance 读取并解密账户自己的余额；零句柄直接报告 0
func (s *Service) Balance(ctx context.Context, target Target, account string) (*BalanceResult, error) {
	signer, err := s.accounts.Resolve(account)
	if err != nil {
		return nil, err
	}
	c, err := s.contract(ctx, target)
	if err != nil {
		return nil, err
	}

	handle, err := c.ConfidentialBalanceOf(ctx, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	res := &BalanceResult{
		Contract: c.Address(),
		Account:  s.accounts.NameOf(signer.Address()),
		Address:  signer.Address(),
		Handle:   handle,
		Clear:    big.NewInt(0),
	}
	if fhevm.IsZeroHandle(handle) {
		s.logger.Info("余额未初始化", zap.Stringer("account", signer.Address()))
		return res, nil
	}

	// 零句柄不访问网关
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	clear, err := s.fhevm.UserDecryptEuint(ctx, fhevm.Euint64, handle, c.Address(), signer)
	if err != nil {
		return nil, fmt.Errorf("decrypt balance: %w", err)
	}
	res.Initialized = true
	res.Clear = clear
	s.logger.Info("余额已解密",
		zap.Stringer("account", signer.Address()),
		zap.Stringer("handle", handle))
	return res, nil
}

// TotalSupply 读取总供应量；decryptAs 非空时以该账户解密（通常为所有者）
func (s *Service) TotalSupply(ctx context.Context, target Target, decryptAs string) (*SupplyResult, error) {
	c, err := s.contract(ctx, target)
	if err != nil {
		return nil, err
	}
	handle, err := c.ConfidentialTotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("read total supply: %w", err)
	}
	res := &SupplyResult{Contract: c.Address(), Handle: handle, Initialized: !fhevm.IsZeroHandle(handle)}
	if decryptAs == "" || !res.Initialized {
		return res, nil
	}

	signer, err := s.accounts.Resolve(decryptAs)
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	if res.Clear, err = s.fhevm.UserDecryptEuint(ctx, fhevm.Euint64, handle, c.Address(), signer); err != nil {
		return nil, fmt.Errorf("decrypt total supply: %w", err)
	}
	return res, nil
}

// ===== O3: 铸币 =====

// Mint 以加密输入铸币；from 为空时若接收方是签名账户则由其发送，否则使用第 0 个账户
func (s *Service) Mint(ctx context.Context, target Target, from, to string, value uint64) (*MintResult, error) {
	recipient, err := s.accounts.ResolveAddress(to)
	if err != nil {
		return nil, err
	}
	sender, err := s.mintSender(from, to)
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	c, err := s.contract(ctx, target)
	if err != nil {
		return nil, err
	}

	in, err := s.fhevm.CreateEncryptedInput(c.Address(), sender.Address()).Add64(value).Encrypt(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := sender.TransactOpts(ctx, s.chainID)
	if err != nil {
		return nil, err
	}
	tx, err := c.MintFromExternal(opts, recipient, in.Handles[0], in.InputProof)
	if err != nil {
		return nil, err
	}
	txRes, err := s.wait(ctx, c, token.MethodMintFromExternal, tx)
	if err != nil {
		return nil, err
	}

	newHandle, err := c.ConfidentialBalanceOf(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	s.logger.Info("铸币完成",
		zap.Stringer("to", recipient),
		zap.Uint64("value", value),
		zap.Stringer("tx", tx.Hash()))
	return &MintResult{
		TxResult:  *txRes,
		Contract:  c.Address(),
		From:      sender.Address(),
		To:        recipient,
		Value:     value,
		NewHandle: newHandle,
	}, nil
}

func (s *Service) mintSender(from, to string) (*wallet.Signer, error) {
	if from != "" {
		return s.accounts.Resolve(from)
	}
	if signer, err := s.accounts.Resolve(to); err == nil {
		return signer, nil
	}
	return s.accounts.At(0)
}

// ===== O4: 加密输入转账 =====

// Send 加密数量并以 confidentialTransfer(address,bytes32,bytes) 转账
func (s *Service) Send(ctx context.Context, target Target, from, to string, value uint64) (*TransferResult, error) {
	sender, err := s.accounts.Resolve(from)
	if err != nil {
		return nil, err
	}
	recipient, err := s.accounts.ResolveAddress(to)
	if err != nil {
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	c, err := s.contract(ctx, target)
	if err != nil {
		return nil, err
	}

	// 输入证明绑定 (合约, 发送方)
	in, err := s.fhevm.CreateEncryptedInput(c.Address(), sender.Address()).Add64(value).Encrypt(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := sender.TransactOpts(ctx, s.chainID)
	if err != nil {
		return nil, err
	}
	tx, err := c.ConfidentialTransfer(opts, recipient, in.Handles[0], in.InputProof)
	if err != nil {
		return nil, err
	}
	txRes, err := s.wait(ctx, c, token.MethodTransferWithProof, tx)
	if err != nil {
		return nil, err
	}

	recipientHandle, err := c.ConfidentialBalanceOf(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	s.logger.Info("转账完成",
		zap.Stringer("from", sender.Address()),
		zap.Stringer("to", recipient),
		zap.Uint64("value", value),
		zap.Stringer("tx", tx.Hash()))
	return &TransferResult{
		TxResult:        *txRes,
		Contract:        c.Address(),
		From:            sender.Address(),
		To:              recipient,
		Value:           value,
		RecipientHandle: recipientHandle,
	}, nil
}

// ===== O5: 全额划转 =====

// Sweep 以源账户当前余额句柄调用 confidentialTransfer(address,bytes32)；零句柄时不发送交易
func (s *Service) Sweep(ctx context.Context, target Target, from, to string) (*SweepResult, error) {
	source, err := s.accounts.Resolve(from)
	if err != nil {
		return nil, err
	}
	recipient, err := s.accounts.ResolveAddress(to)
	if err != nil {
		return nil, err
	}
	c, err := s.contract(ctx, target)
	if err != nil {
		return nil, err
	}

	handle, err := c.ConfidentialBalanceOf(ctx, source.Address())
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	res := &SweepResult{
		Contract:     c.Address(),
		From:         source.Address(),
		To:           recipient,
		SourceHandle: handle,
	}
	if fhevm.IsZeroHandle(handle) {
		s.logger.Info("源账户余额未初始化，跳过划转", zap.Stringer("from", source.Address()))
		return res, nil
	}

	opts, err := source.TransactOpts(ctx, s.chainID)
	if err != nil {
		return nil, err
	}
	tx, err := c.ConfidentialTransferHandle(opts, recipient, handle)
	if err != nil {
		return nil, err
	}
	if res.TxResult, err = s.wait(ctx, c, token.MethodTransferHandle, tx); err != nil {
		return nil, err
	}
	if res.NewSourceHandle, err = c.ConfidentialBalanceOf(ctx, source.Address()); err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	res.Swept = true

	s.logger.Info("划转完成",
		zap.Stringer("from", source.Address()),
		zap.Stringer("to", recipient),
		zap.Stringer("tx", tx.Hash()))
	return res, nil
}

// ===== 内部 =====

// init 首次使用加密插件前确认网关可用
func (s *Service) init(ctx context.Context) error {
	s.initOnce.Do(func() {
		if s.fhevm == nil {
			s.initErr = errors.New("fhevm client is not configured")
			return
		}
		s.initErr = s.fhevm.Init(ctx)
	})
	return s.initErr
}

func (s *Service) contract(ctx context.Context, target Target) (token.Contract, error) {
	addr, err := s.registry.Resolve(target.Name, target.Address)
	if err != nil {
		return nil, err
	}
	c, err := s.open(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("open contract %s: %w", addr.Hex(), err)
	}
	return c, nil
}

func (s *Service) wait(ctx context.Context, c token.Contract, method string, tx *types.Transaction) (*TxResult, error) {
	s.logger.Info("等待交易确认", zap.String("method", method), zap.Stringer("tx", tx.Hash()))
	if s.onSubmit != nil {
		s.onSubmit(method, tx.Hash())
	}

	receipt, err := c.Wait(ctx, tx)
	if err != nil {
		return nil, err
	}
	events, err := token.ParseTransferEvents(receipt, c.Address())
	if err != nil {
		s.logger.Warn("解析事件失败", zap.Error(err))
	}

	res := &TxResult{
		TxHash:  tx.Hash(),
		Status:  receipt.Status,
		GasUsed: receipt.GasUsed,
		Events:  events,
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res, nil
}

// TransactOpts 便于外部直接调用合约
func (s *Service) TransactOpts(ctx context.Context, selector string) (*bind.TransactOpts, error) {
	signer, err := s.accounts.Resolve(selector)
	if err != nil {
		return nil, err
	}
	return signer.TransactOpts(ctx, s.chainID)
}
