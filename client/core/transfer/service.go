// Package transfer sends plain native currency (ether) between accounts.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/token"
	"github.com/weisyn/ctoken/client/core/wallet"
)

// DefaultAmount 未指定金额时发送 0.1 ether
const DefaultAmount = "0.1"

var (
	// ErrInvalidRecipient 接收方地址无效
	ErrInvalidRecipient = errors.New("invalid recipient address")
	// ErrInsufficientFunds 余额不足以支付金额与手续费
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Backend 原生转账所需的链访问能力（ethclient.Client 与 simulated.Client 均满足）
type Backend interface {
	ethereum.TransactionSender
	ethereum.GasEstimator
	bind.DeployBackend

	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// TransferService 原生币转账服务
type TransferService struct {
	backend Backend
	logger  *zap.Logger
}

// NewTransferService 创建转账服务
func NewTransferService(backend Backend, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{backend: backend, logger: logger}
}

// TransferRequest 转账请求
type TransferRequest struct {
	From   *wallet.Signer // 发送方签名器
	To     string         // 接收方地址
	Amount string         // 金额（ether，默认 0.1）
}

// TransferResult 转账结果
type TransferResult struct {
	TxHash      common.Hash    `json:"txHash"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Value       string         `json:"value"` // ether
	Wei         *big.Int       `json:"wei"`
	Nonce       uint64         `json:"nonce"`
	Gas         uint64         `json:"gas"`
	GasTipCap   *big.Int       `json:"gasTipCap,omitempty"`
	GasFeeCap   *big.Int       `json:"gasFeeCap,omitempty"`
	GasPrice    *big.Int       `json:"gasPrice,omitempty"` // 仅无 baseFee 的链（legacy 交易）
	Status      uint64         `json:"status"`
	BlockNumber uint64         `json:"blockNumber"`
	GasUsed     uint64         `json:"gasUsed"`
}

// ExecuteTransfer 执行转账并等待回执
//
// 流程：
//  1. 参数验证、解析金额
//  2. 构建 EIP-1559 交易（无 baseFee 的链构建 legacy 交易）
//  3. 签名并广播
//  4. 等待回执，status 0 视为回滚
func (s *TransferService) ExecuteTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	res, tx, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.Wait(ctx, tx, res); err != nil {
		return res, err
	}
	return res, nil
}

// Submit 构建、签名并广播交易，不等待回执
func (s *TransferService) Submit(ctx context.Context, req *TransferRequest) (*TransferResult, *types.Transaction, error) {
	to, amount, err := s.validateTransferRequest(req)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid request: %w", err)
	}
	from := req.From.Address()

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, nil, fmt.Errorf("get nonce: %w", err)
	}
	fees, err := s.suggestFees(ctx)
	if err != nil {
		return nil, nil, err
	}
	balance, err := s.backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("get balance: %w", err)
	}
	if err := checkFunds(balance, amount, 0, fees.maxPrice()); err != nil {
		return nil, nil, err
	}
	msg := ethereum.CallMsg{From: from, To: &to, Value: amount.Wei()}
	if fees.legacy() {
		msg.GasPrice = fees.gasPrice
	} else {
		msg.GasFeeCap, msg.GasTipCap = fees.feeCap, fees.tip
	}
	gas, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("estimate gas: %w", err)
	}

	if err := checkFunds(balance, amount, gas, fees.maxPrice()); err != nil {
		return nil, nil, err
	}

	var tx *types.Transaction
	if fees.legacy() {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: fees.gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    amount.Wei(),
		})
	} else {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: fees.tip,
			GasFeeCap: fees.feeCap,
			Gas:       gas,
			To:        &to,
			Value:     amount.Wei(),
		})
	}
	signed, err := req.From.SignTx(tx, chainID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, nil, fmt.Errorf("send transaction: %w", err)
	}

	s.logger.Info("交易已广播",
		zap.Stringer("tx", signed.Hash()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("value", amount.String()))

	return &TransferResult{
		TxHash:    signed.Hash(),
		From:      from,
		To:        to,
		Value:     amount.String(),
		Wei:       amount.Wei(),
		Nonce:     nonce,
		Gas:       gas,
		GasTipCap: fees.tip,
		GasFeeCap: fees.feeCap,
		GasPrice:  fees.gasPrice,
	}, signed, nil
}

// Wait 等待回执并填充结果
func (s *TransferService) Wait(ctx context.Context, tx *types.Transaction, res *TransferResult) error {
	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	res.Status = receipt.Status
	res.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: tx %s", token.ErrReverted, tx.Hash().Hex())
	}
	s.logger.Info("交易已确认", zap.Stringer("tx", tx.Hash()), zap.Uint64("block", res.BlockNumber))
	return nil
}

// GetBalance 查询最新区块的余额
func (s *TransferService) GetBalance(ctx context.Context, address common.Address) (*Amount, error) {
	wei, err := s.backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return NewAmountFromWei(wei)
}

// txFees 交易手续费参数：EIP-1559 使用 tip/feeCap，legacy 仅使用 gasPrice
type txFees struct {
	tip      *big.Int
	feeCap   *big.Int
	gasPrice *big.Int
}

func (f *txFees) legacy() bool { return f.gasPrice != nil }

// maxPrice 每单位 gas 的最高价格
func (f *txFees) maxPrice() *big.Int {
	if f.legacy() {
		return f.gasPrice
	}
	return f.feeCap
}

// suggestFees 小费取节点建议值，上限为 tip + 2×baseFee；无 baseFee 的链（London 之前）使用 gasPrice
func (s *TransferService) suggestFees(ctx context.Context) (*txFees, error) {
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get latest header: %w", err)
	}
	if head.BaseFee == nil {
		price, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		return &txFees{gasPrice: price}, nil
	}

	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return &txFees{tip: tip, feeCap: feeCap}, nil
}

// checkFunds 余额需覆盖 金额 + gas×最高单价
func checkFunds(balance *big.Int, amount *Amount, gas uint64, price *big.Int) error {
	required := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)
	required.Add(required, amount.Wei())
	if balance.Cmp(required) < 0 {
		return fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientFunds, balance, required)
	}
	return nil
}

func (s *TransferService) validateTransferRequest(req *TransferRequest) (common.Address, *Amount, error) {
	if req == nil || req.From == nil {
		return common.Address{}, nil, errors.New("sender is required")
	}
	if !common.IsHexAddress(req.To) {
		return common.Address{}, nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, req.To)
	}
	raw := req.Amount
	if raw == "" {
		raw = DefaultAmount
	}
	amount, err := ParseAmount(raw)
	if err != nil {
		return common.Address{}, nil, err
	}
	return common.HexToAddress(req.To), amount, nil
}
