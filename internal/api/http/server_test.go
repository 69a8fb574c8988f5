package http

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/fhevm/mock"
	"github.com/weisyn/ctoken/client/core/wallet"
)

var tokenAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type gatewayFixture struct {
	cop    *mock.Coprocessor
	srv    *httptest.Server
	client *fhevm.Client
	relay  *fhevm.RelayerClient
	alice  *wallet.Signer
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	cop, err := mock.New(mock.Options{ChainID: 31337}, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(cop, nil).Handler())
	t.Cleanup(srv.Close)

	relay := fhevm.NewRelayerClient(srv.URL, 5*time.Second, nil)
	signers, err := wallet.DeriveFromMnemonic("test test test test test test test test test test test junk", "", 2)
	require.NoError(t, err)

	return &gatewayFixture{
		cop:    cop,
		srv:    srv,
		client: fhevm.NewClient(cop.ClientConfig(), relay, nil),
		relay:  relay,
		alice:  signers[0],
	}
}

func TestGateway_Health(t *testing.T) {
	f := newGatewayFixture(t)

	status, err := f.relay.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, uint64(31337), status.ChainID)
	assert.Equal(t, mock.Version, status.Version)

	require.NoError(t, f.client.Init(context.Background()))
}

func TestGateway_EncryptAndDecryptOverHTTP(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	in, err := f.client.CreateEncryptedInput(tokenAddr, f.alice.Address()).Add64(42).Encrypt(ctx)
	require.NoError(t, err)
	require.Len(t, in.Handles, 1)

	h, err := f.cop.FromExternal(in.Handles[0], in.InputProof, f.alice.Address(), tokenAddr, fhevm.Euint64)
	require.NoError(t, err)

	_, err = f.client.UserDecryptEuint(ctx, fhevm.Euint64, h, tokenAddr, f.alice)
	require.ErrorIs(t, err, fhevm.ErrUnauthorized)

	var gerr *fhevm.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusForbidden, gerr.Status)

	f.cop.Allow(h, f.alice.Address())
	v, err := f.client.UserDecryptEuint(ctx, fhevm.Euint64, h, tokenAddr, f.alice)
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(42).Cmp(v))
}

func TestGateway_BadRequests(t *testing.T) {
	f := newGatewayFixture(t)

	resp, err := http.Post(f.srv.URL+fhevm.RouteEncrypt, "application/json", strings.NewReader(`{"values":[{"type":"euint4","value":"1"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), fhevm.CodeInvalidRequest)

	_, err = f.relay.EncryptInput(context.Background(), &fhevm.EncryptInputRequest{
		ContractAddress: tokenAddr,
		UserAddress:     f.alice.Address(),
		Values:          []fhevm.ClearValue{{Type: fhevm.Euint8, Value: "300"}},
	})
	var gerr *fhevm.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, fhevm.CodeInvalidRequest, gerr.Code)
	assert.Equal(t, http.StatusBadRequest, gerr.Status)
}

func TestGateway_RequestIDAndMetrics(t *testing.T) {
	f := newGatewayFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+fhevm.RouteHealth, nil)
	require.NoError(t, err)
	req.Header.Set(fhevm.RequestIDHeader, "fixed-id")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "fixed-id", resp.Header.Get(fhevm.RequestIDHeader))

	resp, err = http.Get(f.srv.URL + fhevm.RouteHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(fhevm.RequestIDHeader))

	resp, err = http.Get(f.srv.URL + MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ctoken_gateway_requests_total{method="GET",route="/v1/health",status="200"} 2`)
}

func TestServer_StartStop(t *testing.T) {
	cop, err := mock.New(mock.Options{ChainID: 31337}, nil)
	require.NoError(t, err)
	s := NewServer(cop, nil)

	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	status, err := fhevm.NewRelayerClient("http://"+addr, time.Second, nil).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Wait())
}

func TestServer_RateLimit(t *testing.T) {
	cop, err := mock.New(mock.Options{ChainID: 31337}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(cop, nil, WithRateLimit(2, 0)).Handler())
	defer srv.Close()

	relay := fhevm.NewRelayerClient(srv.URL, time.Second, nil)
	for i := 0; i < 2; i++ {
		_, err := relay.Health(context.Background())
		require.NoError(t, err)
	}

	_, err = relay.Health(context.Background())
	var gerr *fhevm.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusTooManyRequests, gerr.Status)
	assert.Equal(t, fhevm.CodeRateLimited, gerr.Code)
	require.ErrorIs(t, err, fhevm.ErrGateway)

	// POST 不受读限制
	resp, err := http.Post(srv.URL+fhevm.RouteEncrypt, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
