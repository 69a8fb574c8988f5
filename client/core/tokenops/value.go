package tokenops

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidValue 数量参数不是整数
var ErrInvalidValue = errors.New("argument --value is not an integer")

// ParseValue 解析代币数量（最小单位，十进制 uint64）
func ParseValue(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidValue
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s overflows euint64", ErrInvalidValue, s)
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return v, nil
}
