package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestRegistry_SaveGetList(t *testing.T) {
	r := NewRegistry(t.TempDir(), "localhost")

	txHash := common.HexToHash("0x01")
	require.NoError(t, r.Save(&Deployment{
		Name:            "MyToken",
		Address:         tokenAddr,
		ABI:             json.RawMessage(`[]`),
		TransactionHash: &txHash,
		BlockNumber:     3,
	}))

	d, err := r.Get("MyToken")
	require.NoError(t, err)
	assert.Equal(t, "MyToken", d.Name)
	assert.Equal(t, tokenAddr, d.Address)
	assert.JSONEq(t, `[]`, string(d.ABI))
	require.NotNil(t, d.TransactionHash)
	assert.Equal(t, txHash, *d.TransactionHash)
	assert.Equal(t, uint64(3), d.BlockNumber)

	names, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"MyToken"}, names)
}

func TestRegistry_GetHardhatDeployFile(t *testing.T) {
	dir := t.TempDir()
	netDir := filepath.Join(dir, "sepolia")
	require.NoError(t, os.MkdirAll(netDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(netDir, "MyToken.json"), []byte(`{
  "address": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
  "abi": [{"type":"function","name":"name","inputs":[],"outputs":[{"type":"string"}],"stateMutability":"view"}],
  "receipt": {"blockNumber": 7},
  "numDeployments": 1
}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(netDir, ".chainId"), []byte("11155111\n"), 0600))

	r := NewRegistry(dir, "sepolia")
	d, err := r.Get("MyToken")
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, d.Address)
	assert.Equal(t, uint64(7), d.BlockNumber)
	assert.Nil(t, d.TransactionHash)

	id, err := r.ChainID()
	require.NoError(t, err)
	assert.Equal(t, uint64(11155111), id)
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry(t.TempDir(), "localhost")

	_, err := r.Get("MyToken")
	require.ErrorIs(t, err, ErrNotFound)

	names, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	id, err := r.ChainID()
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestRegistry_InvalidAddress(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "localhost"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localhost", "MyToken.json"), []byte(`{"address":"nope"}`), 0600))

	_, err := NewRegistry(dir, "localhost").Get("MyToken")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(t.TempDir(), "localhost")

	other := common.HexToAddress("0x000000000000000000000000000000000000bEEF")
	got, err := r.Resolve("MyToken", other.Hex())
	require.NoError(t, err)
	assert.Equal(t, other, got)

	_, err = r.Resolve("MyToken", "0x1234")
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = r.Resolve("MyToken", "")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Save(&Deployment{Name: "MyToken", Address: tokenAddr}))
	got, err = r.Resolve("MyToken", "")
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, got)

	require.NoError(t, r.SetChainID(31337))
	id, err := r.ChainID()
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), id)
}

func TestRegistry_RejectsNamesOutsideNetworkDir(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.json")
	require.NoError(t, os.WriteFile(secret, []byte(`{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3"}`), 0600))
	r := NewRegistry(filepath.Join(dir, "deployments"), "localhost")

	for _, name := range []string{"", "../../secret", "../secret", "a/b", `a\b`, ".chainId", "..", "x..y"} {
		_, err := r.Get(name)
		require.ErrorIs(t, err, ErrInvalidName, name)
		require.ErrorIs(t, r.Save(&Deployment{Name: name, Address: tokenAddr}), ErrInvalidName, name)
	}

	_, err := r.Resolve("../../secret", "")
	require.ErrorIs(t, err, ErrInvalidName)

	// 覆盖地址不读取记录
	got, err := r.Resolve("../../secret", tokenAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, got)

	_, err = os.Stat(filepath.Join(dir, "deployments"))
	assert.True(t, os.IsNotExist(err))
}
