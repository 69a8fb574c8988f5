package transfer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Amount 以太币金额（wei）
//
//   - 1 ether = 10^18 wei
//   - 解析按十进制字符串逐位进行，不经过浮点数
type Amount struct {
	wei *big.Int
}

const (
	// EtherDecimals ether 的小数位数
	EtherDecimals = 18

	// weiSuffix 以 wei 为单位的金额后缀，如 "1500wei"
	weiSuffix = "wei"
)

var (
	// ErrInvalidAmount 无效的金额
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNegativeAmount 负数金额
	ErrNegativeAmount = errors.New("negative amount")

	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)
)

// ParseAmount 解析金额
//
// 支持格式：
//
//	"0.1"     → 100000000000000000 wei
//	"2"       → 2 ether
//	"1500wei" → 1500 wei
func ParseAmount(s string) (*Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, s)
	}

	if units, ok := strings.CutSuffix(strings.ToLower(s), weiSuffix); ok {
		v, ok := new(big.Int).SetString(strings.TrimSpace(units), 10)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
		}
		return &Amount{wei: v}, nil
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > EtherDecimals {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, s, EtherDecimals)
	}
	digits := whole + frac + strings.Repeat("0", EtherDecimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
		}
	}
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	return &Amount{wei: v}, nil
}

// NewAmountFromWei 从 wei 创建
func NewAmountFromWei(wei *big.Int) (*Amount, error) {
	if wei == nil {
		return nil, fmt.Errorf("%w: nil value", ErrInvalidAmount)
	}
	if wei.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return &Amount{wei: new(big.Int).Set(wei)}, nil
}

// Wei 返回 wei 副本
func (a *Amount) Wei() *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.wei)
}

// IsZero 是否为零
func (a *Amount) IsZero() bool {
	return a == nil || a.wei.Sign() == 0
}

// Cmp 比较两个金额
func (a *Amount) Cmp(b *Amount) int {
	return a.Wei().Cmp(b.Wei())
}

// String ether 字符串，去掉末尾的 0
//
//	100000000000000000 → "0.1"
//	10^18              → "1"
func (a *Amount) String() string {
	q, r := new(big.Int).QuoRem(a.Wei(), weiPerEther, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", EtherDecimals-len(frac)) + frac
	return q.String() + "." + strings.TrimRight(frac, "0")
}
