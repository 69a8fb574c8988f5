package mocktoken

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/fhevm/mock"
	"github.com/weisyn/ctoken/client/core/token"
)

// ErrInvalidSender 发送方为零地址
var ErrInvalidSender = errors.New("ERC7984InvalidSender")

// state 可回滚的账本状态（含协处理器中的授权与计算结果）
type state struct {
	balances    map[common.Address]common.Hash
	totalSupply common.Hash
	cop         mock.Snapshot
}

func (t *Token) snapshot() state {
	s := state{
		balances:    make(map[common.Address]common.Hash, len(t.balances)),
		totalSupply: t.totalSupply,
		cop:         t.cop.Snapshot(),
	}
	for k, v := range t.balances {
		s.balances[k] = v
	}
	return s
}

func (t *Token) restore(s state) {
	t.balances = s.balances
	t.totalSupply = s.totalSupply
	t.cop.Revert(s.cop)
}

// transfer 账户间转账
func (t *Token) transfer(from, to common.Address, amount common.Hash) (common.Hash, error) {
	if from == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%w(%s)", ErrInvalidSender, from.Hex())
	}
	if to == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%w(%s)", ErrInvalidReceiver, to.Hex())
	}
	return t.update(from, to, amount)
}

// update 余额更新；from 为零地址表示铸币。返回实际转移的金额句柄。
//
// 调用方持有 t.mu。
func (t *Token) update(from, to common.Address, amount common.Hash) (common.Hash, error) {
	zero := t.cop.TrivialEncrypt(fhevm.Euint64, big.NewInt(0))

	var transferred common.Hash
	if from == (common.Address{}) {
		supply := t.totalSupply
		if fhevm.IsZeroHandle(supply) {
			supply = zero
		}
		// 溢出时铸造数量为零
		sum, err := t.cop.Add(supply, amount)
		if err != nil {
			return common.Hash{}, err
		}
		ok, err := t.cop.Le(supply, sum)
		if err != nil {
			return common.Hash{}, err
		}
		if transferred, err = t.cop.Select(ok, amount, zero); err != nil {
			return common.Hash{}, err
		}
		if t.totalSupply, err = t.cop.Add(supply, transferred); err != nil {
			return common.Hash{}, err
		}
		t.cop.Allow(t.totalSupply, t.address)
		t.cop.Allow(t.totalSupply, t.owner)
	} else {
		fromBal := t.balances[from]
		if fhevm.IsZeroHandle(fromBal) {
			return common.Hash{}, fmt.Errorf("%w(%s)", ErrZeroBalance, from.Hex())
		}
		// 余额不足时转移零
		ok, err := t.cop.Le(amount, fromBal)
		if err != nil {
			return common.Hash{}, err
		}
		if transferred, err = t.cop.Select(ok, amount, zero); err != nil {
			return common.Hash{}, err
		}
		newFrom, err := t.cop.Sub(fromBal, transferred)
		if err != nil {
			return common.Hash{}, err
		}
		t.balances[from] = newFrom
		t.cop.Allow(newFrom, t.address)
		t.cop.Allow(newFrom, from)
	}

	toBal := t.balances[to]
	if fhevm.IsZeroHandle(toBal) {
		toBal = zero
	}
	newTo, err := t.cop.Add(toBal, transferred)
	if err != nil {
		return common.Hash{}, err
	}
	t.balances[to] = newTo
	t.cop.Allow(newTo, t.address)
	t.cop.Allow(newTo, to)

	t.cop.Allow(transferred, t.address)
	if from != (common.Address{}) {
		t.cop.Allow(transferred, from)
	}
	t.cop.Allow(transferred, to)

	log, err := token.TransferEventLog(t.address, from, to, transferred)
	if err != nil {
		return common.Hash{}, err
	}
	t.pendingLogs = append(t.pendingLogs, log)
	return transferred, nil
}
