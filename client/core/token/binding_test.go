package token

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ctoken/client/core/wallet"
)

var (
	tokenAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	aliceAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bobAddr   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

// fakeBackend 只实现绑定实际用到的方法
type fakeBackend struct {
	Backend
	t       *testing.T
	results map[string][]interface{}
	sent    []*types.Transaction
	receipt *types.Receipt
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := ParsedABI()
	require.NoError(f.t, err)
	method, err := parsed.MethodById(msg.Data[:4])
	require.NoError(f.t, err)
	return method.Outputs.Pack(f.results[method.RawName]...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return f.receipt, nil
}

func TestParsedABI_Overloads(t *testing.T) {
	parsed, err := ParsedABI()
	require.NoError(t, err)

	withProof := parsed.Methods[MethodTransferWithProof]
	handle := parsed.Methods[MethodTransferHandle]
	assert.Equal(t, "confidentialTransfer(address,bytes32,bytes)", withProof.Sig)
	assert.Equal(t, "confidentialTransfer(address,bytes32)", handle.Sig)
	assert.Equal(t, "mintFromExternal(address,bytes32,bytes)", parsed.Methods[MethodMintFromExternal].Sig)
	assert.Equal(t, "ConfidentialTransfer(address,address,bytes32)", parsed.Events[EventConfidentialTransfer].Sig)
}

func TestBinding_Reads(t *testing.T) {
	balance := common.HexToHash("0x0a")
	backend := &fakeBackend{t: t, results: map[string][]interface{}{
		MethodName:                    {"MyToken"},
		MethodSymbol:                  {"MTK"},
		MethodDecimals:                {uint8(6)},
		MethodOwner:                   {aliceAddr},
		MethodConfidentialBalanceOf:   {[32]byte(balance)},
		MethodConfidentialTotalSupply: {[32]byte(common.HexToHash("0x0b"))},
	}}
	b, err := NewBinding(tokenAddr, backend, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.EnsureDeployed(ctx))

	got, err := b.ConfidentialBalanceOf(ctx, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, balance, got)

	supply, err := b.ConfidentialTotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x0b"), supply)

	meta, err := b.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Metadata{Name: "MyToken", Symbol: "MTK", Decimals: 6, Owner: aliceAddr}, meta)
}

func TestBinding_TransferSelectsOverload(t *testing.T) {
	backend := &fakeBackend{t: t}
	b, err := NewBinding(tokenAddr, backend, nil)
	require.NoError(t, err)

	signers, err := wallet.FromPrivateKeys([]string{"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"})
	require.NoError(t, err)
	opts, err := signers[0].TransactOpts(context.Background(), big.NewInt(31337))
	require.NoError(t, err)

	parsed, err := ParsedABI()
	require.NoError(t, err)
	handle := common.HexToHash("0x1234")

	_, err = b.ConfidentialTransfer(opts, bobAddr, handle, []byte{0x01, 0x02})
	require.NoError(t, err)
	_, err = b.ConfidentialTransferHandle(opts, aliceAddr, handle)
	require.NoError(t, err)
	_, err = b.MintFromExternal(opts, aliceAddr, handle, []byte{0x03})
	require.NoError(t, err)
	require.Len(t, backend.sent, 3)

	wantSigs := []string{
		"confidentialTransfer(address,bytes32,bytes)",
		"confidentialTransfer(address,bytes32)",
		"mintFromExternal(address,bytes32,bytes)",
	}
	for i, tx := range backend.sent {
		m, err := parsed.MethodById(tx.Data()[:4])
		require.NoError(t, err)
		assert.Equal(t, wantSigs[i], m.Sig)
		assert.Equal(t, tokenAddr, *tx.To())

		args, err := m.Inputs.Unpack(tx.Data()[4:])
		require.NoError(t, err)
		assert.Equal(t, [32]byte(handle), args[1])
	}
}

func TestBinding_WaitReverted(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 1})
	backend := &fakeBackend{t: t, receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5)}}
	b, err := NewBinding(tokenAddr, backend, nil)
	require.NoError(t, err)

	_, err = b.Wait(context.Background(), tx)
	require.ErrorIs(t, err, ErrReverted)

	backend.receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(6)}
	r, err := b.Wait(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), r.BlockNumber.Int64())
}

func TestParseTransferEvents(t *testing.T) {
	amount := common.HexToHash("0xabcdef")
	l, err := TransferEventLog(tokenAddr, aliceAddr, bobAddr, amount)
	require.NoError(t, err)

	foreign := *l
	foreign.Address = common.HexToAddress("0x01")

	receipt := &types.Receipt{Logs: []*types.Log{l, &foreign, {Address: tokenAddr}}}
	events, err := ParseTransferEvents(receipt, tokenAddr)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TransferEvent{From: aliceAddr, To: bobAddr, Amount: amount}, events[0])
}
