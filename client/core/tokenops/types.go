package tokenops

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/ctoken/client/core/token"
)

// Target 操作的合约：Address 非空时覆盖部署记录
type Target struct {
	Name    string
	Address string
}

// AddressResult token address 结果
type AddressResult struct {
	Name    string         `json:"name"`
	Network string         `json:"network"`
	Address common.Address `json:"address"`
}

// BalanceResult 余额解密结果
type BalanceResult struct {
	Contract common.Address `json:"contract"`
	Account  string         `json:"account"`
	Address  common.Address `json:"address"`
	Handle   common.Hash    `json:"handle"`
	// Initialized 为 false 表示零句柄，未请求解密
	Initialized bool     `json:"initialized"`
	Clear       *big.Int `json:"clear"`
}

// TxResult 已确认交易的摘要
type TxResult struct {
	TxHash      common.Hash           `json:"txHash"`
	Status      uint64                `json:"status"`
	BlockNumber uint64                `json:"blockNumber"`
	GasUsed     uint64                `json:"gasUsed"`
	Events      []token.TransferEvent `json:"events,omitempty"`
}

// MintResult 铸币结果
type MintResult struct {
	TxResult
	Contract  common.Address `json:"contract"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Value     uint64         `json:"value"`
	NewHandle common.Hash    `json:"newHandle"`
}

// TransferResult 加密输入转账结果
type TransferResult struct {
	TxResult
	Contract common.Address `json:"contract"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    uint64         `json:"value"`
	// RecipientHandle 接收方转账后的余额句柄
	RecipientHandle common.Hash `json:"recipientHandle"`
}

// SweepResult 全额划转结果
type SweepResult struct {
	Contract common.Address `json:"contract"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	// Swept 为 false 表示源账户为零句柄，未发送交易
	Swept        bool        `json:"swept"`
	SourceHandle common.Hash `json:"sourceHandle"`
	*TxResult
	// NewSourceHandle 源账户划转后的余额句柄
	NewSourceHandle common.Hash `json:"newSourceHandle"`
}

// SupplyResult 总供应量
type SupplyResult struct {
	Contract    common.Address `json:"contract"`
	Handle      common.Hash    `json:"handle"`
	Initialized bool           `json:"initialized"`
	Clear       *big.Int       `json:"clear,omitempty"`
}
