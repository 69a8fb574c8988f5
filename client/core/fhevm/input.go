package fhevm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	// MaxInputBits 单个加密输入的位数上限
	MaxInputBits = 2048
	// MaxInputValues 单个加密输入的值个数上限（下标 0xff 留给计算结果句柄）
	MaxInputValues = ComputedHandleIndex
)

// EncryptedInput 加密输入：句柄按添加顺序排列，证明供合约验证全部句柄
type EncryptedInput struct {
	Handles    []common.Hash
	InputProof []byte
}

// InputBuilder 加密输入构造器，绑定 (合约, 用户)
//
// 证明只对该合约及该用户有效。构造器非并发安全。
type InputBuilder struct {
	client   *Client
	contract common.Address
	user     common.Address
	values   []ClearValue
	bits     int
	err      error
}

// Contract 绑定的合约地址
func (b *InputBuilder) Contract() common.Address { return b.contract }

// User 绑定的用户地址
func (b *InputBuilder) User() common.Address { return b.user }

// Len 已添加的值个数
func (b *InputBuilder) Len() int { return len(b.values) }

// AddBool 添加 ebool
func (b *InputBuilder) AddBool(v bool) *InputBuilder {
	s := "0"
	if v {
		s = "1"
	}
	return b.add(Ebool, s)
}

// Add8 添加 euint8
func (b *InputBuilder) Add8(v uint8) *InputBuilder {
	return b.add(Euint8, strconv.FormatUint(uint64(v), 10))
}

// Add16 添加 euint16
func (b *InputBuilder) Add16(v uint16) *InputBuilder {
	return b.add(Euint16, strconv.FormatUint(uint64(v), 10))
}

// Add32 添加 euint32
func (b *InputBuilder) Add32(v uint32) *InputBuilder {
	return b.add(Euint32, strconv.FormatUint(uint64(v), 10))
}

// Add64 添加 euint64
func (b *InputBuilder) Add64(v uint64) *InputBuilder {
	return b.add(Euint64, strconv.FormatUint(v, 10))
}

// Add128 添加 euint128
func (b *InputBuilder) Add128(v *big.Int) *InputBuilder {
	return b.addBig(Euint128, v)
}

// Add256 添加 euint256
func (b *InputBuilder) Add256(v *big.Int) *InputBuilder {
	return b.addBig(Euint256, v)
}

// AddAddress 添加 eaddress
func (b *InputBuilder) AddAddress(addr common.Address) *InputBuilder {
	return b.add(Eaddress, addr.Hex())
}

func (b *InputBuilder) addBig(t FheType, v *big.Int) *InputBuilder {
	if v == nil {
		if b.err == nil {
			b.err = fmt.Errorf("%w: nil %s", ErrValueOutOfRange, t)
		}
		return b
	}
	return b.add(t, v.String())
}

func (b *InputBuilder) add(t FheType, value string) *InputBuilder {
	if b.err != nil {
		return b
	}
	if _, err := ParseClearValue(ClearValue{Type: t, Value: value}); err != nil {
		b.err = err
		return b
	}
	if len(b.values)+1 > MaxInputValues {
		b.err = fmt.Errorf("%w: more than %d values", ErrInputTooLarge, MaxInputValues)
		return b
	}
	if b.bits+t.Bits() > MaxInputBits {
		b.err = fmt.Errorf("%w: %d bits exceeds %d", ErrInputTooLarge, b.bits+t.Bits(), MaxInputBits)
		return b
	}
	b.values = append(b.values, ClearValue{Type: t, Value: value})
	b.bits += t.Bits()
	return b
}

// Encrypt 由网关加密全部值并生成输入证明
func (b *InputBuilder) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.values) == 0 {
		return nil, ErrEmptyInput
	}

	req := &EncryptInputRequest{
		ContractAddress: b.contract,
		UserAddress:     b.user,
		ContractChainID: b.client.cfg.ChainID,
		Values:          append([]ClearValue(nil), b.values...),
	}
	resp, err := b.client.cop.EncryptInput(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("encrypt input: %w", err)
	}
	if len(resp.Handles) != len(b.values) {
		return nil, fmt.Errorf("%w: encrypt returned %d handles for %d values", ErrGateway, len(resp.Handles), len(b.values))
	}
	for i, h := range resp.Handles {
		if HandleType(h) != b.values[i].Type {
			return nil, fmt.Errorf("%w: handle %d is %s, want %s", ErrTypeMismatch, i, HandleType(h), b.values[i].Type)
		}
	}
	if len(resp.InputProof) == 0 {
		return nil, fmt.Errorf("%w: empty input proof", ErrGateway)
	}

	b.client.logger.Debug("加密输入完成",
		zap.Stringer("contract", b.contract),
		zap.Stringer("user", b.user),
		zap.Int("values", len(b.values)),
		zap.Int("bits", b.bits))

	return &EncryptedInput{
		Handles:    resp.Handles,
		InputProof: resp.InputProof,
	}, nil
}

// ParseClearValue 解析并校验明文，返回其整数值（eaddress 为地址的整数形式）
func ParseClearValue(cv ClearValue) (*big.Int, error) {
	if !cv.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %d", ErrValueOutOfRange, uint8(cv.Type))
	}
	s := strings.TrimSpace(cv.Value)

	if cv.Type == Eaddress {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: invalid address %q", ErrValueOutOfRange, s)
		}
		return new(big.Int).SetBytes(common.HexToAddress(s).Bytes()), nil
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s value %q is not an integer", ErrValueOutOfRange, cv.Type, s)
	}
	limit := 1
	if cv.Type != Ebool {
		limit = cv.Type.Bits()
	}
	if v.Sign() < 0 || v.BitLen() > limit {
		return nil, fmt.Errorf("%w: %s value %s", ErrValueOutOfRange, cv.Type, s)
	}
	return v, nil
}
