package fhevm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// 网关 HTTP 路由
const (
	RouteHealth      = "/v1/health"
	RouteEncrypt     = "/v1/inputs/encrypt"
	RouteUserDecrypt = "/v1/decrypt/user"

	// RequestIDHeader 请求追踪头
	RequestIDHeader = "X-Request-ID"
)

// Coprocessor 加密网关：生成加密输入及证明、执行用户解密
type Coprocessor interface {
	EncryptInput(ctx context.Context, req *EncryptInputRequest) (*EncryptInputResponse, error)
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (*UserDecryptResponse, error)
}

// HealthChecker 可选的健康检查能力
type HealthChecker interface {
	Health(ctx context.Context) (*HealthStatus, error)
}

// ClearValue 待加密的单个明文
type ClearValue struct {
	Type FheType `json:"type"`
	// Value 十进制整数；ebool 为 0/1；eaddress 为十六进制地址
	Value string `json:"value"`
}

// EncryptInputRequest 加密输入请求
type EncryptInputRequest struct {
	ContractAddress common.Address `json:"contractAddress"`
	UserAddress     common.Address `json:"userAddress"`
	ContractChainID uint64         `json:"contractChainId"`
	Values          []ClearValue   `json:"values"`
}

// EncryptInputResponse 加密输入结果：每个值一个句柄，外加共享的输入证明
type EncryptInputResponse struct {
	Handles    []common.Hash `json:"handles"`
	InputProof hexutil.Bytes `json:"inputProof"`
}

// HandleContractPair 待解密的句柄及其所属合约
type HandleContractPair struct {
	Handle          common.Hash    `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
}

// RequestValidity 授权有效期（十进制字符串）
type RequestValidity struct {
	StartTimestamp string `json:"startTimestamp"`
	DurationDays   string `json:"durationDays"`
}

// UserDecryptRequest 用户解密请求
type UserDecryptRequest struct {
	HandleContractPairs []HandleContractPair `json:"handleContractPairs"`
	RequestValidity     RequestValidity      `json:"requestValidity"`
	ContractsChainID    uint64               `json:"contractsChainId"`
	ContractAddresses   []common.Address     `json:"contractAddresses"`
	UserAddress         common.Address       `json:"userAddress"`
	Signature           hexutil.Bytes        `json:"signature"`
	PublicKey           hexutil.Bytes        `json:"publicKey"`
	ExtraData           hexutil.Bytes        `json:"extraData"`
}

// DecryptShare 单个句柄的重加密结果（ECIES 密文，明文为 32 字节大端整数）
type DecryptShare struct {
	Handle     common.Hash   `json:"handle"`
	Ciphertext hexutil.Bytes `json:"ciphertext"`
}

// UserDecryptResponse 用户解密结果
type UserDecryptResponse struct {
	Results []DecryptShare `json:"results"`
}

// HealthStatus 网关健康状态
type HealthStatus struct {
	Status  string `json:"status"`
	ChainID uint64 `json:"chainId"`
	Version string `json:"version,omitempty"`
}

// ErrorBody 网关错误响应体
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// 网关错误码
const (
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidProof     = "invalid_proof"
	CodeInvalidSignature = "invalid_signature"
	CodeUnauthorized     = "unauthorized"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal"
)

// ErrorCode 将错误映射为网关错误码
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidProof):
		return CodeInvalidProof
	case errors.Is(err, ErrInvalidSignature):
		return CodeInvalidSignature
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrEmptyInput), errors.Is(err, ErrInputTooLarge),
		errors.Is(err, ErrValueOutOfRange), errors.Is(err, ErrTypeMismatch), errors.Is(err, ErrZeroHandle):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}

// sentinelFor 网关错误码对应的哨兵错误
func sentinelFor(code string) error {
	switch code {
	case CodeInvalidProof:
		return ErrInvalidProof
	case CodeInvalidSignature:
		return ErrInvalidSignature
	case CodeUnauthorized:
		return ErrUnauthorized
	default:
		return ErrGateway
	}
}
