// Package fhevm is the client side of the fhEVM encryption plugin.
//
// 加密输入构造、输入证明生成与用户解密授权全部委托给网关（Coprocessor）；
// 本包只负责组装请求、签名 EIP-712 授权消息以及解开网关返回的重加密结果。
package fhevm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrZeroHandle 句柄为零值（链上尚未初始化的密文）
	ErrZeroHandle = errors.New("uninitialized ciphertext handle")
	// ErrTypeMismatch 句柄中记录的类型与请求的类型不一致
	ErrTypeMismatch = errors.New("fhe type mismatch")
	// ErrEmptyInput 加密输入没有任何值
	ErrEmptyInput = errors.New("encrypted input has no values")
	// ErrInputTooLarge 加密输入超过位数或数量上限
	ErrInputTooLarge = errors.New("encrypted input too large")
	// ErrValueOutOfRange 明文超出类型范围
	ErrValueOutOfRange = errors.New("value out of range")
	// ErrUnauthorized 用户或合约无权解密该句柄
	ErrUnauthorized = errors.New("not authorized for handle")
	// ErrInvalidProof 输入证明无效
	ErrInvalidProof = errors.New("invalid input proof")
	// ErrInvalidSignature EIP-712 签名无效
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrGateway 网关返回的其他错误
	ErrGateway = errors.New("gateway error")
)

// FheType 加密类型（取值与 fhEVM 类型编号一致）
type FheType uint8

const (
	Ebool    FheType = 0
	Euint8   FheType = 2
	Euint16  FheType = 3
	Euint32  FheType = 4
	Euint64  FheType = 5
	Euint128 FheType = 6
	Eaddress FheType = 7
	Euint256 FheType = 8
)

var fheTypeNames = map[FheType]string{
	Ebool:    "ebool",
	Euint8:   "euint8",
	Euint16:  "euint16",
	Euint32:  "euint32",
	Euint64:  "euint64",
	Euint128: "euint128",
	Eaddress: "eaddress",
	Euint256: "euint256",
}

// Bits 输入证明中该类型占用的位数
func (t FheType) Bits() int {
	switch t {
	case Ebool:
		return 2
	case Euint8:
		return 8
	case Euint16:
		return 16
	case Euint32:
		return 32
	case Euint64:
		return 64
	case Euint128:
		return 128
	case Eaddress:
		return 160
	case Euint256:
		return 256
	default:
		return 0
	}
}

// Valid 是否为已知类型
func (t FheType) Valid() bool {
	_, ok := fheTypeNames[t]
	return ok
}

func (t FheType) String() string {
	if name, ok := fheTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("fhetype(%d)", uint8(t))
}

// ParseFheType 解析类型名（如 euint64）
func ParseFheType(s string) (FheType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range fheTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown fhe type: %q", s)
}

func (t FheType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown fhe type: %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *FheType) UnmarshalText(text []byte) error {
	parsed, err := ParseFheType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// 句柄布局（32 字节）:
//
//	[0:21]  摘要前缀
//	[21]    输入下标（计算结果为 0xff）
//	[22:30] 链ID（大端）
//	[30]    FheType
//	[31]    版本
const (
	handleIndexOffset   = 21
	handleChainIDOffset = 22
	handleTypeOffset    = 30
	handleVersionOffset = 31

	// ComputedHandleIndex 计算得到（非输入）的句柄下标
	ComputedHandleIndex = 0xff
	// HandleVersion 当前句柄版本
	HandleVersion = 0
)

// IsZeroHandle 句柄是否为零值
func IsZeroHandle(h common.Hash) bool {
	return h == (common.Hash{})
}

// HandleIndex 返回句柄中的输入下标
func HandleIndex(h common.Hash) uint8 {
	return h[handleIndexOffset]
}

// HandleChainID 返回句柄中记录的链ID
func HandleChainID(h common.Hash) uint64 {
	return binary.BigEndian.Uint64(h[handleChainIDOffset:handleTypeOffset])
}

// HandleType 返回句柄中记录的类型
func HandleType(h common.Hash) FheType {
	return FheType(h[handleTypeOffset])
}

// HandleVersionOf 返回句柄版本
func HandleVersionOf(h common.Hash) uint8 {
	return h[handleVersionOffset]
}

// NewHandle 由摘要与元数据组装句柄（摘要只取前 21 字节）
func NewHandle(digest common.Hash, index uint8, chainID uint64, t FheType) common.Hash {
	var h common.Hash
	copy(h[:handleIndexOffset], digest[:handleIndexOffset])
	h[handleIndexOffset] = index
	binary.BigEndian.PutUint64(h[handleChainIDOffset:handleTypeOffset], chainID)
	h[handleTypeOffset] = byte(t)
	h[handleVersionOffset] = HandleVersion
	return h
}
