package main

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ctoken/client"
	"github.com/weisyn/ctoken/client/core/token"
)

var bobAddr = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

type balanceOut struct {
	Handle      common.Hash `json:"handle"`
	Initialized bool        `json:"initialized"`
	Clear       *big.Int    `json:"clear"`
}

type txOut struct {
	TxHash          common.Hash `json:"txHash"`
	Status          uint64      `json:"status"`
	Swept           bool        `json:"swept"`
	RecipientHandle common.Hash `json:"recipientHandle"`
	NewSourceHandle common.Hash `json:"newSourceHandle"`
}

// runMock 以 --mock 运行，同一测试内的命令共享进程内的模拟网络
func runMock(t *testing.T, dir string, args ...string) result {
	t.Helper()
	return run(t, context.Background(), dir, append([]string{"--mock"}, args...)...)
}

func decode[T any](t *testing.T, res result) T {
	t.Helper()
	require.NoError(t, res.err, res.log)
	var v T
	require.NoError(t, json.Unmarshal([]byte(res.out), &v), res.out)
	return v
}

func TestMockBalance(t *testing.T) {
	dir := newConfigDir(t)
	t.Cleanup(client.CloseMocks)

	res := runMock(t, dir, "decrypt-alice-balance")
	alice := decode[balanceOut](t, res)
	assert.True(t, alice.Initialized)
	assert.Equal(t, int64(1_000_000_000), alice.Clear.Int64())
	assert.Contains(t, res.log, "Encrypted balance: "+alice.Handle.Hex())
	assert.Contains(t, res.log, "Clear balance    : 1000000000")

	// 未持有过代币：零句柄，不请求解密
	res = runMock(t, dir, "token", "balance", "--account", "bob")
	bob := decode[balanceOut](t, res)
	assert.False(t, bob.Initialized)
	assert.Equal(t, common.Hash{}, bob.Handle)
	assert.Equal(t, int64(0), bob.Clear.Int64())

	res = runMock(t, dir, "decrypt-bob-balance", "--address", "0x00000000000000000000000000000000000000aa")
	require.ErrorIs(t, res.err, token.ErrNoCode)
}

func TestMockSendAndSweep(t *testing.T) {
	dir := newConfigDir(t)
	t.Cleanup(client.CloseMocks)

	res := runMock(t, dir, "sweep-bob-tokens")
	empty := decode[txOut](t, res)
	assert.False(t, empty.Swept)
	assert.Equal(t, common.Hash{}, empty.TxHash)
	assert.Contains(t, res.log, bobAddr.Hex()+" has no encrypted balance, nothing to sweep")

	res = runMock(t, dir, "send-tokens", "--value", "25")
	sent := decode[txOut](t, res)
	assert.Equal(t, uint64(1), sent.Status)
	assert.Contains(t, res.log, "Wait for tx:"+sent.TxHash.Hex())
	assert.Contains(t, res.log, "tx:"+sent.TxHash.Hex()+" status=1")
	assert.Contains(t, res.log, "Recipient encrypted balance: "+sent.RecipientHandle.Hex())

	bob := decode[balanceOut](t, runMock(t, dir, "decrypt-bob-balance"))
	assert.Equal(t, sent.RecipientHandle, bob.Handle)
	assert.Equal(t, int64(25), bob.Clear.Int64())
	alice := decode[balanceOut](t, runMock(t, dir, "decrypt-alice-balance"))
	assert.Equal(t, int64(1_000_000_000-25), alice.Clear.Int64())

	res = runMock(t, dir, "token", "sweep")
	swept := decode[txOut](t, res)
	assert.True(t, swept.Swept)
	assert.Equal(t, uint64(1), swept.Status)
	assert.Contains(t, res.log, "tx:"+swept.TxHash.Hex()+" status=1")
	assert.Contains(t, res.log, "Source encrypted balance: "+swept.NewSourceHandle.Hex())

	bob = decode[balanceOut](t, runMock(t, dir, "decrypt-bob-balance"))
	assert.True(t, bob.Initialized)
	assert.Equal(t, int64(0), bob.Clear.Int64())
	alice = decode[balanceOut](t, runMock(t, dir, "decrypt-alice-balance"))
	assert.Equal(t, int64(1_000_000_000), alice.Clear.Int64())
}

func TestMockStateIsPerConfigDir(t *testing.T) {
	t.Cleanup(client.CloseMocks)

	first := newConfigDir(t)
	res := runMock(t, first, "token", "send", "--value", "7")
	require.NoError(t, res.err, res.log)

	second := newConfigDir(t)
	bob := decode[balanceOut](t, runMock(t, second, "decrypt-bob-balance"))
	assert.False(t, bob.Initialized)

	bob = decode[balanceOut](t, runMock(t, first, "decrypt-bob-balance"))
	assert.Equal(t, int64(7), bob.Clear.Int64())
}

func TestMockSendEther(t *testing.T) {
	dir := newConfigDir(t)
	t.Cleanup(client.CloseMocks)

	res := runMock(t, dir, "send-ether", "--address", bobAddr.Hex())
	sent := decode[txOut](t, res)
	assert.Equal(t, uint64(1), sent.Status)
	assert.Contains(t, res.log, "Transaction hash: "+sent.TxHash.Hex())
	assert.Contains(t, res.log, "sent 0.1 ether to "+bobAddr.Hex())

	res = runMock(t, dir, "eth", "balance", "bob")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, `"ether":"10000.1"`)
}
