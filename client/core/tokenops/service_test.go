package tokenops

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ctoken/client/core/deployments"
	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/fhevm/mock"
	"github.com/weisyn/ctoken/client/core/token"
	"github.com/weisyn/ctoken/client/core/token/mocktoken"
	"github.com/weisyn/ctoken/client/core/wallet"
)

const hardhatMnemonic = "test test test test test test test test test test test junk"

var myToken = Target{Name: "MyToken"}

type env struct {
	ctx   context.Context
	svc   *Service
	cop   *mock.Coprocessor
	token *mocktoken.Token
	alice *wallet.Signer
	bob   *wallet.Signer
}

// newEnv 本地网络：alice 为部署者（第 0 个账户），bob 为第 1 个账户
func newEnv(t *testing.T) *env {
	t.Helper()
	cop, err := mock.New(mock.Options{ChainID: 31337}, nil)
	require.NoError(t, err)
	signers, err := wallet.DeriveFromMnemonic(hardhatMnemonic, "", 3)
	require.NoError(t, err)
	accounts := wallet.NewAccounts(signers, map[string]int{"alice": 0, "bob": 1})

	tok, err := mocktoken.Deploy(cop, signers[0].Address(), nil)
	require.NoError(t, err)

	reg := deployments.NewRegistry(t.TempDir(), "localhost")
	require.NoError(t, reg.Save(&deployments.Deployment{Name: "MyToken", Address: tok.Address()}))

	open := func(_ context.Context, addr common.Address) (token.Contract, error) {
		require.Equal(t, tok.Address(), addr)
		return tok, nil
	}
	svc := NewService(reg, accounts, fhevm.NewClient(cop.ClientConfig(), cop, nil), open, big.NewInt(31337), nil)

	return &env{
		ctx:   context.Background(),
		svc:   svc,
		cop:   cop,
		token: tok,
		alice: signers[0],
		bob:   signers[1],
	}
}

func (e *env) clear(t *testing.T, account string) uint64 {
	t.Helper()
	res, err := e.svc.Balance(e.ctx, myToken, account)
	require.NoError(t, err)
	return res.Clear.Uint64()
}

func TestService_TokenAddress(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.TokenAddress(myToken)
	require.NoError(t, err)
	assert.Equal(t, e.token.Address(), res.Address)
	assert.Equal(t, "localhost", res.Network)

	override := "0x00000000000000000000000000000000000000aa"
	res, err = e.svc.TokenAddress(Target{Name: "MyToken", Address: override})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(override), res.Address)

	_, err = e.svc.TokenAddress(Target{Name: "Other"})
	require.ErrorIs(t, err, deployments.ErrNotFound)

	_, err = e.svc.TokenAddress(Target{Name: "MyToken", Address: "0x123"})
	require.ErrorIs(t, err, deployments.ErrInvalidAddress)
}

func TestService_Balance(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.Balance(e.ctx, myToken, "alice")
	require.NoError(t, err)
	assert.True(t, res.Initialized)
	assert.Equal(t, "alice", res.Account)
	assert.Equal(t, e.alice.Address(), res.Address)
	assert.Equal(t, uint64(mocktoken.InitialSupply), res.Clear.Uint64())

	// 零句柄不请求解密
	res, err = e.svc.Balance(e.ctx, myToken, "bob")
	require.NoError(t, err)
	assert.False(t, res.Initialized)
	assert.Equal(t, common.Hash{}, res.Handle)
	assert.Equal(t, uint64(0), res.Clear.Uint64())

	_, err = e.svc.Balance(e.ctx, myToken, "carol")
	require.ErrorIs(t, err, wallet.ErrUnknownAccount)
}

func TestService_Mint(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.Mint(e.ctx, myToken, "", "bob", 7)
	require.NoError(t, err)
	assert.Equal(t, e.bob.Address(), res.From, "recipient signer mints for itself")
	assert.Equal(t, uint64(1), res.Status)
	require.Len(t, res.Events, 1)
	assert.Equal(t, common.Address{}, res.Events[0].From)
	assert.Equal(t, uint64(7), e.clear(t, "bob"))

	// 非签名账户接收方由第 0 个账户发送
	outsider := "0x00000000000000000000000000000000000000bb"
	res, err = e.svc.Mint(e.ctx, myToken, "", outsider, 3)
	require.NoError(t, err)
	assert.Equal(t, e.alice.Address(), res.From)
	assert.Equal(t, common.HexToAddress(outsider), res.To)

	supply, err := e.svc.TotalSupply(e.ctx, myToken, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(mocktoken.InitialSupply+10), supply.Clear.Uint64())
}

func TestService_SendAndSweep(t *testing.T) {
	e := newEnv(t)

	var submitted []string
	e.svc.OnSubmit(func(method string, _ common.Hash) { submitted = append(submitted, method) })

	sent, err := e.svc.Send(e.ctx, myToken, "alice", "bob", 25)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), sent.Value)
	assert.False(t, fhevm.IsZeroHandle(sent.RecipientHandle))
	require.Len(t, sent.Events, 1)
	assert.Equal(t, e.alice.Address(), sent.Events[0].From)
	assert.Equal(t, e.bob.Address(), sent.Events[0].To)
	assert.Equal(t, uint64(25), e.clear(t, "bob"))

	swept, err := e.svc.Sweep(e.ctx, myToken, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, swept.Swept)
	assert.Equal(t, sent.RecipientHandle, swept.SourceHandle)
	require.NotNil(t, swept.TxResult)
	assert.NotEqual(t, swept.SourceHandle, swept.NewSourceHandle)

	assert.Equal(t, uint64(0), e.clear(t, "bob"))
	assert.Equal(t, uint64(mocktoken.InitialSupply), e.clear(t, "alice"))
	assert.Equal(t, []string{token.MethodTransferWithProof, token.MethodTransferHandle}, submitted)
}

func TestService_SweepUninitializedIsNoop(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.Sweep(e.ctx, myToken, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, res.Swept)
	assert.Nil(t, res.TxResult)
	assert.Equal(t, common.Hash{}, res.SourceHandle)
}

func TestService_ZeroHandleWithoutGateway(t *testing.T) {
	e := newEnv(t)
	dead := fhevm.NewRelayerClient("http://127.0.0.1:1", time.Second, nil)
	e.svc.fhevm = fhevm.NewClient(e.cop.ClientConfig(), dead, nil)

	res, err := e.svc.Balance(e.ctx, myToken, "bob")
	require.NoError(t, err)
	assert.False(t, res.Initialized)
	assert.Equal(t, uint64(0), res.Clear.Uint64())

	sweep, err := e.svc.Sweep(e.ctx, myToken, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, sweep.Swept)

	// 非零句柄才需要网关
	_, err = e.svc.Balance(e.ctx, myToken, "alice")
	require.ErrorIs(t, err, fhevm.ErrGateway)
}

func TestService_SendFromZeroBalanceReverts(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Send(e.ctx, myToken, "bob", "alice", 1)
	require.ErrorIs(t, err, token.ErrReverted)
	require.ErrorIs(t, err, mocktoken.ErrZeroBalance)
}

func TestService_SendRequiresSigner(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Send(e.ctx, myToken, "0x00000000000000000000000000000000000000bb", "alice", 1)
	require.ErrorIs(t, err, wallet.ErrUnknownAccount)
}

func TestService_TotalSupplyWithoutDecrypt(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.TotalSupply(e.ctx, myToken, "")
	require.NoError(t, err)
	assert.True(t, res.Initialized)
	assert.Nil(t, res.Clear)

	_, err = e.svc.TotalSupply(e.ctx, myToken, "bob")
	require.ErrorIs(t, err, fhevm.ErrUnauthorized)
}

func TestService_GatewayChainMismatch(t *testing.T) {
	e := newEnv(t)
	cfg := e.cop.ClientConfig()
	cfg.ChainID = 1
	e.svc.fhevm = fhevm.NewClient(cfg, e.cop, nil)

	_, err := e.svc.Balance(e.ctx, myToken, "alice")
	require.ErrorIs(t, err, fhevm.ErrGateway)

	// 初始化结果被缓存
	_, err = e.svc.Send(e.ctx, myToken, "alice", "bob", 1)
	require.ErrorIs(t, err, fhevm.ErrGateway)
}

func TestService_Info(t *testing.T) {
	e := newEnv(t)

	meta, addr, err := e.svc.Info(e.ctx, myToken)
	require.NoError(t, err)
	assert.Equal(t, e.token.Address(), addr)
	assert.Equal(t, mocktoken.Name, meta.Name)
	assert.Equal(t, mocktoken.Symbol, meta.Symbol)
	assert.Equal(t, e.alice.Address(), meta.Owner)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "10", want: 10},
		{in: " 42 ", want: 42},
		{in: "0", want: 0},
		{in: "18446744073709551615", want: 18446744073709551615},
		{in: "18446744073709551616", wantErr: true},
		{in: "", wantErr: true},
		{in: "1.5", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "0x10", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
