package mocktoken

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/fhevm/mock"
	"github.com/weisyn/ctoken/client/core/token"
	"github.com/weisyn/ctoken/client/core/wallet"
)

const hardhatMnemonic = "test test test test test test test test test test test junk"

type fixture struct {
	ctx      context.Context
	cop      *mock.Coprocessor
	fhevm    *fhevm.Client
	token    *Token
	deployer *wallet.Signer
	alice    *wallet.Signer
	bob      *wallet.Signer
}

// 每个用例重新部署
func deployFixture(t *testing.T) *fixture {
	t.Helper()
	cop, err := mock.New(mock.Options{ChainID: 31337}, nil)
	require.NoError(t, err)
	signers, err := wallet.DeriveFromMnemonic(hardhatMnemonic, "", 3)
	require.NoError(t, err)

	tok, err := Deploy(cop, signers[0].Address(), nil)
	require.NoError(t, err)

	return &fixture{
		ctx:      context.Background(),
		cop:      cop,
		fhevm:    fhevm.NewClient(cop.ClientConfig(), cop, nil),
		token:    tok,
		deployer: signers[0],
		alice:    signers[1],
		bob:      signers[2],
	}
}

func (f *fixture) opts(t *testing.T, s *wallet.Signer) *bind.TransactOpts {
	t.Helper()
	opts, err := s.TransactOpts(f.ctx, big.NewInt(31337))
	require.NoError(t, err)
	return opts
}

func (f *fixture) encrypt64(t *testing.T, user *wallet.Signer, v uint64) *fhevm.EncryptedInput {
	t.Helper()
	in, err := f.fhevm.CreateEncryptedInput(f.token.Address(), user.Address()).Add64(v).Encrypt(f.ctx)
	require.NoError(t, err)
	return in
}

func (f *fixture) balance(t *testing.T, s *wallet.Signer) uint64 {
	t.Helper()
	h, err := f.token.ConfidentialBalanceOf(f.ctx, s.Address())
	require.NoError(t, err)
	if fhevm.IsZeroHandle(h) {
		return 0
	}
	v, err := f.fhevm.UserDecryptEuint(f.ctx, fhevm.Euint64, h, f.token.Address(), s)
	require.NoError(t, err)
	return v.Uint64()
}

func (f *fixture) mint(t *testing.T, s *wallet.Signer, v uint64) *fhevm.EncryptedInput {
	t.Helper()
	in := f.encrypt64(t, s, v)
	tx, err := f.token.MintFromExternal(f.opts(t, s), s.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	_, err = f.token.Wait(f.ctx, tx)
	require.NoError(t, err)
	return in
}

func TestMyToken_DeployAddress(t *testing.T) {
	f := deployFixture(t)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), f.token.Address())
	assert.Equal(t, f.deployer.Address(), f.token.Owner())

	meta, err := f.token.Metadata(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(Decimals), meta.Decimals)
}

func TestMyToken_DeployerStartsWithInitialSupply(t *testing.T) {
	f := deployFixture(t)
	assert.Equal(t, uint64(1_000_000_000), f.balance(t, f.deployer))
}

func TestMyToken_AliceStartsUninitialized(t *testing.T) {
	f := deployFixture(t)
	h, err := f.token.ConfidentialBalanceOf(f.ctx, f.alice.Address())
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, h)
}

func TestMyToken_TotalSupply(t *testing.T) {
	f := deployFixture(t)
	h, err := f.token.ConfidentialTotalSupply(f.ctx)
	require.NoError(t, err)

	v, err := f.fhevm.UserDecryptEuint(f.ctx, fhevm.Euint64, h, f.token.Address(), f.deployer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), v.Uint64())

	// 非所有者无权解密总供应量
	_, err = f.fhevm.UserDecryptEuint(f.ctx, fhevm.Euint64, h, f.token.Address(), f.alice)
	require.ErrorIs(t, err, fhevm.ErrUnauthorized)
}

func TestMyToken_UnpermissionedMint(t *testing.T) {
	f := deployFixture(t)
	f.mint(t, f.alice, 10)
	assert.Equal(t, uint64(10), f.balance(t, f.alice))

	supply, err := f.token.ConfidentialTotalSupply(f.ctx)
	require.NoError(t, err)
	_, v, ok := f.cop.Plaintext(supply)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_000_010), v.Int64())
}

func TestMyToken_TransferReusingInputProof(t *testing.T) {
	f := deployFixture(t)
	in := f.mint(t, f.alice, 10)

	tx, err := f.token.ConfidentialTransfer(f.opts(t, f.alice), f.bob.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	receipt, err := f.token.Wait(f.ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), f.balance(t, f.bob))
	assert.Equal(t, uint64(0), f.balance(t, f.alice))

	events, err := token.ParseTransferEvents(receipt, f.token.Address())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, f.alice.Address(), events[0].From)
	assert.Equal(t, f.bob.Address(), events[0].To)
}

func TestMyToken_InputProofRejectsOtherSigner(t *testing.T) {
	f := deployFixture(t)
	in := f.mint(t, f.alice, 10)

	tx, err := f.token.ConfidentialTransfer(f.opts(t, f.alice), f.bob.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	_, err = f.token.Wait(f.ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f.balance(t, f.bob))

	_, err = f.token.ConfidentialTransfer(f.opts(t, f.bob), f.alice.Address(), in.Handles[0], in.InputProof)
	require.ErrorIs(t, err, token.ErrReverted)
	require.ErrorIs(t, err, fhevm.ErrInvalidProof)

	// 回滚不改变余额
	assert.Equal(t, uint64(10), f.balance(t, f.bob))
}

func TestMyToken_InsufficientBalanceTransfersZero(t *testing.T) {
	f := deployFixture(t)
	f.mint(t, f.alice, 10)

	in := f.encrypt64(t, f.alice, 25)
	tx, err := f.token.ConfidentialTransfer(f.opts(t, f.alice), f.bob.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	_, err = f.token.Wait(f.ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), f.balance(t, f.alice))
	h, err := f.token.ConfidentialBalanceOf(f.ctx, f.bob.Address())
	require.NoError(t, err)
	assert.False(t, fhevm.IsZeroHandle(h))
	assert.Equal(t, uint64(0), f.balance(t, f.bob))
}

func TestMyToken_SweepByHandle(t *testing.T) {
	f := deployFixture(t)
	in := f.mint(t, f.alice, 10)
	tx, err := f.token.ConfidentialTransfer(f.opts(t, f.alice), f.bob.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	_, err = f.token.Wait(f.ctx, tx)
	require.NoError(t, err)

	bobHandle, err := f.token.ConfidentialBalanceOf(f.ctx, f.bob.Address())
	require.NoError(t, err)

	// 只有句柄 ACL 中的账户才能用它转账
	_, err = f.token.ConfidentialTransferHandle(f.opts(t, f.alice), f.alice.Address(), bobHandle)
	require.ErrorIs(t, err, ErrUnauthorizedUse)

	tx, err = f.token.ConfidentialTransferHandle(f.opts(t, f.bob), f.alice.Address(), bobHandle)
	require.NoError(t, err)
	_, err = f.token.Wait(f.ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), f.balance(t, f.bob))
	assert.Equal(t, uint64(10), f.balance(t, f.alice))
}

func TestMyToken_Reverts(t *testing.T) {
	f := deployFixture(t)

	in := f.encrypt64(t, f.bob, 1)
	_, err := f.token.ConfidentialTransfer(f.opts(t, f.bob), f.alice.Address(), in.Handles[0], in.InputProof)
	require.ErrorIs(t, err, ErrZeroBalance)

	in = f.encrypt64(t, f.deployer, 1)
	_, err = f.token.ConfidentialTransfer(f.opts(t, f.deployer), common.Address{}, in.Handles[0], in.InputProof)
	require.ErrorIs(t, err, ErrInvalidReceiver)

	_, err = f.token.MintFromExternal(f.opts(t, f.deployer), common.Address{}, in.Handles[0], in.InputProof)
	require.ErrorIs(t, err, ErrInvalidReceiver)

	_, err = f.token.MintFromExternal(nil, f.alice.Address(), in.Handles[0], in.InputProof)
	require.ErrorIs(t, err, ErrMissingTransactor)
}

func TestMyToken_RevertDropsGrantsAndCiphertexts(t *testing.T) {
	f := deployFixture(t)

	in := f.encrypt64(t, f.deployer, 1)
	stored := f.cop.Ciphertexts()

	// 输入证明已校验并授权给合约后才因接收方无效而回滚
	_, err := f.token.ConfidentialTransfer(f.opts(t, f.deployer), common.Address{}, in.Handles[0], in.InputProof)
	require.ErrorIs(t, err, ErrInvalidReceiver)
	assert.False(t, f.cop.IsAllowed(in.Handles[0], f.token.Address()))

	// 余额检查前已计算出零密文
	bobIn := f.encrypt64(t, f.bob, 1)
	stored++
	_, err = f.token.ConfidentialTransfer(f.opts(t, f.bob), f.alice.Address(), bobIn.Handles[0], bobIn.InputProof)
	require.ErrorIs(t, err, ErrZeroBalance)
	assert.False(t, f.cop.IsAllowed(bobIn.Handles[0], f.token.Address()))
	assert.Equal(t, stored, f.cop.Ciphertexts())

	// 成功的交易保留授权
	tx, err := f.token.ConfidentialTransfer(f.opts(t, f.deployer), f.alice.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	_, err = f.token.Wait(f.ctx, tx)
	require.NoError(t, err)
	assert.True(t, f.cop.IsAllowed(in.Handles[0], f.token.Address()))
	assert.Equal(t, uint64(1), f.balance(t, f.alice))
}

func TestMyToken_NoncesAndReceipts(t *testing.T) {
	f := deployFixture(t)
	in := f.encrypt64(t, f.alice, 1)

	tx1, err := f.token.MintFromExternal(f.opts(t, f.alice), f.alice.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	tx2, err := f.token.MintFromExternal(f.opts(t, f.alice), f.alice.Address(), in.Handles[0], in.InputProof)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tx1.Nonce())
	assert.Equal(t, uint64(1), tx2.Nonce())
	assert.NotEqual(t, tx1.Hash(), tx2.Hash())

	r2, err := f.token.Wait(f.ctx, tx2)
	require.NoError(t, err)
	r1, err := f.token.Wait(f.ctx, tx1)
	require.NoError(t, err)
	assert.Equal(t, r1.BlockNumber.Int64()+1, r2.BlockNumber.Int64())
	assert.Equal(t, uint64(2), f.balance(t, f.alice))
}
