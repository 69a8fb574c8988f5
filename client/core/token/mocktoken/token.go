// Package mocktoken is an in-memory double of the deployed confidential token,
// evaluated over the mock coprocessor.
//
// 语义与 ERC-7984 参考实现一致：余额不足时转账金额为零而不回滚；
// 以句柄转账要求调用者在该句柄的 ACL 中；新余额授权给持有者与合约。
package mocktoken

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/fhevm/mock"
	"github.com/weisyn/ctoken/client/core/token"
)

// 部署参数
const (
	Name     = "MyToken"
	Symbol   = "MTK"
	Decimals = 6

	// InitialSupply 部署者初始余额（1000 枚，6 位精度）
	InitialSupply = 1_000_000_000

	txGas = 300_000
)

// 回滚原因
var (
	ErrInvalidReceiver   = errors.New("ERC7984InvalidReceiver")
	ErrZeroBalance       = errors.New("ERC7984ZeroBalance")
	ErrUnauthorizedUse   = errors.New("ERC7984UnauthorizedUseOfEncryptedAmount")
	ErrUnknownTx         = errors.New("unknown transaction")
	ErrMissingTransactor = errors.New("missing transactor")
)

// Token 模拟代币合约
type Token struct {
	mu sync.Mutex

	address common.Address
	owner   common.Address
	chainID *big.Int
	cop     *mock.Coprocessor

	balances    map[common.Address]common.Hash
	totalSupply common.Hash
	nonces      map[common.Address]uint64
	receipts    map[common.Hash]*types.Receipt
	pendingLogs []*types.Log
	block       uint64

	logger *zap.Logger
}

var _ token.Contract = (*Token)(nil)

// Deploy 部署模拟代币：地址按 (owner, nonce 0) 推导，初始供应量铸给 owner
func Deploy(cop *mock.Coprocessor, owner common.Address, logger *zap.Logger) (*Token, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Token{
		address:  crypto.CreateAddress(owner, 0),
		owner:    owner,
		chainID:  new(big.Int).SetUint64(cop.ChainID()),
		cop:      cop,
		balances: make(map[common.Address]common.Hash),
		nonces:   map[common.Address]uint64{owner: 1},
		receipts: make(map[common.Hash]*types.Receipt),
		logger:   logger,
	}

	initial := cop.TrivialEncrypt(fhevm.Euint64, big.NewInt(InitialSupply))
	t.mu.Lock()
	_, err := t.update(common.Address{}, owner, initial)
	t.pendingLogs = nil
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("mint initial supply: %w", err)
	}
	return t, nil
}

// Address 合约地址
func (t *Token) Address() common.Address { return t.address }

// Owner 合约所有者
func (t *Token) Owner() common.Address { return t.owner }

// Metadata 元数据
func (t *Token) Metadata(context.Context) (*token.Metadata, error) {
	return &token.Metadata{Name: Name, Symbol: Symbol, Decimals: Decimals, Owner: t.owner}, nil
}

// ConfidentialBalanceOf 余额句柄；从未持有过代币的账户为零句柄
func (t *Token) ConfidentialBalanceOf(_ context.Context, account common.Address) (common.Hash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[account], nil
}

// ConfidentialTotalSupply 总供应量句柄
func (t *Token) ConfidentialTotalSupply(context.Context) (common.Hash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSupply, nil
}

// ConfidentialTransfer confidentialTransfer(address,bytes32,bytes)
func (t *Token) ConfidentialTransfer(opts *bind.TransactOpts, to common.Address, encryptedAmount common.Hash, inputProof []byte) (*types.Transaction, error) {
	return t.execute(opts, token.MethodTransferWithProof, func(sender common.Address) (common.Hash, error) {
		amount, err := t.cop.FromExternal(encryptedAmount, inputProof, sender, t.address, fhevm.Euint64)
		if err != nil {
			return common.Hash{}, err
		}
		return t.transfer(sender, to, amount)
	}, to, [32]byte(encryptedAmount), inputProof)
}

// ConfidentialTransferHandle confidentialTransfer(address,bytes32)
func (t *Token) ConfidentialTransferHandle(opts *bind.TransactOpts, to common.Address, amount common.Hash) (*types.Transaction, error) {
	return t.execute(opts, token.MethodTransferHandle, func(sender common.Address) (common.Hash, error) {
		if !t.cop.IsAllowed(amount, sender) {
			return common.Hash{}, fmt.Errorf("%w(%s, %s)", ErrUnauthorizedUse, amount.Hex(), sender.Hex())
		}
		return t.transfer(sender, to, amount)
	}, to, [32]byte(amount))
}

// MintFromExternal 不做权限检查的铸币
func (t *Token) MintFromExternal(opts *bind.TransactOpts, to common.Address, encryptedAmount common.Hash, inputProof []byte) (*types.Transaction, error) {
	return t.execute(opts, token.MethodMintFromExternal, func(sender common.Address) (common.Hash, error) {
		amount, err := t.cop.FromExternal(encryptedAmount, inputProof, sender, t.address, fhevm.Euint64)
		if err != nil {
			return common.Hash{}, err
		}
		if to == (common.Address{}) {
			return common.Hash{}, fmt.Errorf("%w(%s)", ErrInvalidReceiver, to.Hex())
		}
		return t.update(common.Address{}, to, amount)
	}, to, [32]byte(encryptedAmount), inputProof)
}

// Wait 返回已执行交易的回执
func (t *Token) Wait(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	t.mu.Lock()
	receipt, ok := t.receipts[tx.Hash()]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTx, tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s", token.ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

// execute 构造并签名交易，执行状态变更；失败时整笔回滚且不产生交易
func (t *Token) execute(opts *bind.TransactOpts, method string, fn func(sender common.Address) (common.Hash, error), args ...interface{}) (*types.Transaction, error) {
	if opts == nil {
		return nil, ErrMissingTransactor
	}
	parsed, err := token.ParsedABI()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sender := opts.From
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.chainID,
		Nonce:     t.nonces[sender],
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(1),
		Gas:       txGas,
		To:        &t.address,
		Data:      data,
	})
	if opts.Signer != nil {
		if tx, err = opts.Signer(sender, tx); err != nil {
			return nil, fmt.Errorf("sign %s: %w", method, err)
		}
	}

	// 状态变更前记录事件数，回滚时不保留部分结果
	snapshot := t.snapshot()
	logStart := len(t.pendingLogs)
	if _, err := fn(sender); err != nil {
		t.restore(snapshot)
		t.pendingLogs = t.pendingLogs[:logStart]
		t.logger.Debug("模拟交易回滚", zap.String("method", method), zap.Error(err))
		return nil, fmt.Errorf("send %s: %w: %w", method, token.ErrReverted, err)
	}

	t.nonces[sender]++
	t.block++
	logs := t.pendingLogs[logStart:]
	t.pendingLogs = nil
	for i, l := range logs {
		l.TxHash = tx.Hash()
		l.BlockNumber = t.block
		l.Index = uint(i)
	}
	t.receipts[tx.Hash()] = &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: txGas,
		GasUsed:           txGas,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(t.block),
		Logs:              logs,
	}
	t.logger.Debug("模拟交易执行",
		zap.String("method", method),
		zap.Stringer("from", sender),
		zap.Stringer("tx", tx.Hash()))
	return tx, nil
}
