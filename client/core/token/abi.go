// Package token binds the confidential (ERC-7984) token contract.
package token

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MyTokenABI 合约 ABI（euint64 / externalEuint64 在 ABI 中均为 bytes32）
const MyTokenABI = `[
  {"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"confidentialTotalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"confidentialBalanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"confidentialTransfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"encryptedAmount","type":"bytes32"},{"name":"inputProof","type":"bytes"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"confidentialTransfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"bytes32"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"mintFromExternal","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"encryptedAmount","type":"bytes32"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
  {"type":"event","name":"ConfidentialTransfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"amount","type":"bytes32","indexed":true}]}
]`

// 方法名；重载的 confidentialTransfer 按 ABI 中出现的顺序命名
const (
	MethodName                    = "name"
	MethodSymbol                  = "symbol"
	MethodDecimals                = "decimals"
	MethodOwner                   = "owner"
	MethodConfidentialTotalSupply = "confidentialTotalSupply"
	MethodConfidentialBalanceOf   = "confidentialBalanceOf"
	// MethodTransferWithProof confidentialTransfer(address,bytes32,bytes)
	MethodTransferWithProof = "confidentialTransfer"
	// MethodTransferHandle confidentialTransfer(address,bytes32)
	MethodTransferHandle   = "confidentialTransfer0"
	MethodMintFromExternal = "mintFromExternal"

	EventConfidentialTransfer = "ConfidentialTransfer"
)

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parsedErr  error
)

// ParsedABI 返回解析后的 ABI
func ParsedABI() (abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parsedErr = abi.JSON(strings.NewReader(MyTokenABI))
		if parsedErr != nil {
			parsedErr = fmt.Errorf("parse token abi: %w", parsedErr)
		}
	})
	return parsedABI, parsedErr
}
