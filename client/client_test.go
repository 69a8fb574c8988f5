package client

import (
	"context"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ctoken/client/core/config"
	"github.com/weisyn/ctoken/client/core/tokenops"
	"github.com/weisyn/ctoken/client/core/transfer"
)

// fakeEth 只实现 eth_chainId
type fakeEth struct{ id int64 }

func (f *fakeEth) ChainId() *hexutil.Big { return (*hexutil.Big)(big.NewInt(f.id)) }

func newNode(t *testing.T, id int64) string {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &fakeEth{id: id}))
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return ts.URL
}

func localProfile(t *testing.T, rpcURL string) *config.Profile {
	t.Helper()
	p := config.DefaultProfiles()[0]
	p.RPCURL = rpcURL
	p.DeploymentsDir = t.TempDir()
	p.Aliases = config.DefaultAliases()
	return p
}

func TestLoadAccounts(t *testing.T) {
	p := localProfile(t, "http://unused")
	accounts, err := LoadAccounts(p, "")
	require.NoError(t, err)
	assert.Equal(t, 10, accounts.Len())

	alice, err := accounts.Resolve("alice")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), alice.Address())
	bob, err := accounts.Resolve("bob")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), bob.Address())

	p.PrivateKeys = []string{"0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"}
	accounts, err = LoadAccounts(p, "")
	require.NoError(t, err)
	assert.Equal(t, 1, accounts.Len())

	p.PrivateKeys = nil
	p.Mnemonic = ""
	_, err = LoadAccounts(p, "")
	require.Error(t, err)
}

func TestFhevmConfig(t *testing.T) {
	p := localProfile(t, "http://unused")
	cfg, err := FhevmConfig(p)
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), cfg.ChainID)
	assert.Equal(t, uint64(55815), cfg.GatewayChainID)
	assert.Equal(t, common.HexToAddress("0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1"), cfg.DecryptionAddress)

	p.Gateway.DecryptionAddress = "nope"
	_, err = FhevmConfig(p)
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	p := localProfile(t, newNode(t, 31337))
	c, err := New(context.Background(), p, Options{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, int64(31337), c.ChainID().Int64())
	assert.Equal(t, "localhost", c.Registry().Network())
	assert.Equal(t, uint64(31337), c.Fhevm().Config().ChainID)
	assert.NotNil(t, c.Tokens())
	assert.NotNil(t, c.Transfers())
}

func TestNew_ChainMismatch(t *testing.T) {
	p := localProfile(t, newNode(t, 1))
	_, err := New(context.Background(), p, Options{})
	require.ErrorIs(t, err, ErrChainMismatch)
}

func TestNew_InvalidProfile(t *testing.T) {
	p := localProfile(t, "")
	_, err := New(context.Background(), p, Options{})
	require.Error(t, err)
}

func TestNew_Mock(t *testing.T) {
	t.Cleanup(CloseMocks)
	ctx := context.Background()
	// 不可达的节点：模拟模式不连接网络
	p := localProfile(t, "http://127.0.0.1:1")

	c, err := New(ctx, p, Options{Mock: true})
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.Eth())
	assert.Equal(t, int64(31337), c.ChainID().Int64())

	myToken := tokenops.Target{Name: p.Contract()}
	addr, err := c.Tokens().TokenAddress(myToken)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), addr.Address)

	res, err := c.Tokens().Send(ctx, myToken, "alice", "bob", 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Status)

	// 同一 profile 再次构建看到同一份状态
	again, err := New(ctx, p, Options{Mock: true})
	require.NoError(t, err)
	bob, err := again.Tokens().Balance(ctx, myToken, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), bob.Clear.Uint64())

	// 原生币链与代币使用同一链ID签名
	alice, err := again.Accounts().Resolve("alice")
	require.NoError(t, err)
	sent, err := again.Transfers().ExecuteTransfer(ctx, &transfer.TransferRequest{From: alice, To: bob.Address.Hex()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sent.Status)
}
