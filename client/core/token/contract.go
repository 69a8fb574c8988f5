package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReverted 交易回执状态为失败
	ErrReverted = errors.New("transaction reverted")
	// ErrNoCode 地址上没有合约代码
	ErrNoCode = errors.New("no contract code at address")
)

// Metadata 代币元数据
type Metadata struct {
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Owner    common.Address `json:"owner"`
}

// Contract 机密代币合约
//
// 写方法以 opts.From 作为调用者；返回已发送的交易，需调用 Wait 等待回执。
type Contract interface {
	Address() common.Address

	Metadata(ctx context.Context) (*Metadata, error)
	ConfidentialBalanceOf(ctx context.Context, account common.Address) (common.Hash, error)
	ConfidentialTotalSupply(ctx context.Context) (common.Hash, error)

	// ConfidentialTransfer confidentialTransfer(address,bytes32,bytes)
	ConfidentialTransfer(opts *bind.TransactOpts, to common.Address, encryptedAmount common.Hash, inputProof []byte) (*types.Transaction, error)
	// ConfidentialTransferHandle confidentialTransfer(address,bytes32)，调用者须在句柄 ACL 中
	ConfidentialTransferHandle(opts *bind.TransactOpts, to common.Address, amount common.Hash) (*types.Transaction, error)
	MintFromExternal(opts *bind.TransactOpts, to common.Address, encryptedAmount common.Hash, inputProof []byte) (*types.Transaction, error)

	// Wait 等待回执；状态为 0 时返回 ErrReverted
	Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// TransferEvent ConfidentialTransfer 事件
type TransferEvent struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount common.Hash    `json:"amount"`
}

// ParseTransferEvents 从回执日志中提取 ConfidentialTransfer 事件
func ParseTransferEvents(receipt *types.Receipt, contract common.Address) ([]TransferEvent, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}
	event := parsed.Events[EventConfidentialTransfer]

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	var out []TransferEvent
	for _, l := range receipt.Logs {
		if l.Address != contract || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		if len(l.Topics) != len(indexed)+1 {
			return nil, fmt.Errorf("%s log has %d topics", EventConfidentialTransfer, len(l.Topics))
		}
		var ev struct {
			From   common.Address
			To     common.Address
			Amount [32]byte
		}
		if err := abi.ParseTopics(&ev, indexed, l.Topics[1:]); err != nil {
			return nil, fmt.Errorf("parse %s: %w", EventConfidentialTransfer, err)
		}
		out = append(out, TransferEvent{From: ev.From, To: ev.To, Amount: ev.Amount})
	}
	return out, nil
}

// TransferEventLog 构造 ConfidentialTransfer 日志（模拟合约使用）
func TransferEventLog(contract, from, to common.Address, amount common.Hash) (*types.Log, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: contract,
		Topics: []common.Hash{
			parsed.Events[EventConfidentialTransfer].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			amount,
		},
	}, nil
}

// checkReceipt 回执状态检查
func checkReceipt(tx *types.Transaction, receipt *types.Receipt) (*types.Receipt, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s in block %v", ErrReverted, tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}
