package token

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend 链上绑定所需的客户端能力（*ethclient.Client 满足）
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Binding 链上合约绑定
type Binding struct {
	address  common.Address
	contract *bind.BoundContract
	backend  Backend
	logger   *zap.Logger
}

var _ Contract = (*Binding)(nil)

// NewBinding 绑定已部署的合约
func NewBinding(address common.Address, backend Backend, logger *zap.Logger) (*Binding, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binding{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
		logger:   logger,
	}, nil
}

// Address 合约地址
func (b *Binding) Address() common.Address { return b.address }

// EnsureDeployed 确认地址上存在合约代码
func (b *Binding) EnsureDeployed(ctx context.Context) error {
	code, err := b.backend.CodeAt(ctx, b.address, nil)
	if err != nil {
		return fmt.Errorf("get code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCode, b.address.Hex())
	}
	return nil
}

func (b *Binding) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty result", method)
	}
	return out, nil
}

func (b *Binding) callHash(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	out, err := b.call(ctx, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	v, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("call %s: unexpected result type %T", method, out[0])
	}
	return common.Hash(v), nil
}

// Metadata 读取名称、符号、精度与所有者
func (b *Binding) Metadata(ctx context.Context) (*Metadata, error) {
	m := &Metadata{}

	out, err := b.call(ctx, MethodName)
	if err != nil {
		return nil, err
	}
	m.Name, _ = out[0].(string)

	if out, err = b.call(ctx, MethodSymbol); err != nil {
		return nil, err
	}
	m.Symbol, _ = out[0].(string)

	if out, err = b.call(ctx, MethodDecimals); err != nil {
		return nil, err
	}
	m.Decimals, _ = out[0].(uint8)

	// owner 为可选方法
	if out, err = b.call(ctx, MethodOwner); err == nil {
		m.Owner, _ = out[0].(common.Address)
	}
	return m, nil
}

// ConfidentialBalanceOf 账户余额句柄
func (b *Binding) ConfidentialBalanceOf(ctx context.Context, account common.Address) (common.Hash, error) {
	return b.callHash(ctx, MethodConfidentialBalanceOf, account)
}

// ConfidentialTotalSupply 总供应量句柄
func (b *Binding) ConfidentialTotalSupply(ctx context.Context) (common.Hash, error) {
	return b.callHash(ctx, MethodConfidentialTotalSupply)
}

// ConfidentialTransfer 以加密输入转账
func (b *Binding) ConfidentialTransfer(opts *bind.TransactOpts, to common.Address, encryptedAmount common.Hash, inputProof []byte) (*types.Transaction, error) {
	return b.transact(opts, MethodTransferWithProof, to, [32]byte(encryptedAmount), inputProof)
}

// ConfidentialTransferHandle 以已有句柄转账
func (b *Binding) ConfidentialTransferHandle(opts *bind.TransactOpts, to common.Address, amount common.Hash) (*types.Transaction, error) {
	return b.transact(opts, MethodTransferHandle, to, [32]byte(amount))
}

// MintFromExternal 以加密输入铸币
func (b *Binding) MintFromExternal(opts *bind.TransactOpts, to common.Address, encryptedAmount common.Hash, inputProof []byte) (*types.Transaction, error) {
	return b.transact(opts, MethodMintFromExternal, to, [32]byte(encryptedAmount), inputProof)
}

func (b *Binding) transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	tx, err := b.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	b.logger.Debug("交易已发送",
		zap.String("method", method),
		zap.Stringer("from", opts.From),
		zap.Stringer("tx", tx.Hash()))
	return tx, nil
}

// Wait 等待回执
func (b *Binding) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, b.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for tx %s: %w", tx.Hash().Hex(), err)
	}
	return checkReceipt(tx, receipt)
}
