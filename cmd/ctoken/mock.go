package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/weisyn/ctoken/client/core/fhevm/mock"
	"github.com/weisyn/ctoken/client/core/wallet"
	apihttp "github.com/weisyn/ctoken/internal/api/http"
	"github.com/weisyn/ctoken/internal/log"
)

// mockCmd 本地模拟网关
var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "本地模拟 fhEVM 网关",
}

var mockServeFlags struct {
	Listen      string
	ChainID     uint64
	VerifierKey string
	RateLimit   int
}

var mockServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动模拟网关 HTTP 服务",
	Long: `在本地提供与真实网关相同的路由:
  GET  /v1/health
  POST /v1/inputs/encrypt
  POST /v1/decrypt/user
  GET  /metrics

明文只保存在进程内存中，仅用于开发与测试。

该服务只实现网关的 HTTP 协议：加密输入由它签发证明，解密请求按它自己的
ACL 判断，它不观察任何链，也不知道链上合约写入的句柄。要在本地完整地
运行余额、转账与划转命令，请使用全局 --mock 标志（进程内模拟链与合约）。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := getProfile()
		if err != nil {
			return err
		}

		opts := mock.Options{ChainID: mockServeFlags.ChainID, GatewayChainID: profile.Gateway.ChainID}
		if opts.ChainID == 0 {
			opts.ChainID = profile.ChainID
		}
		if common.IsHexAddress(profile.Gateway.DecryptionAddress) {
			opts.DecryptionAddress = common.HexToAddress(profile.Gateway.DecryptionAddress)
		}
		if mockServeFlags.VerifierKey != "" {
			if opts.VerifierKey, err = wallet.ParsePrivateKey(mockServeFlags.VerifierKey); err != nil {
				return fmt.Errorf("verifier key: %w", err)
			}
		}

		mockLogger := log.Module(logger, log.ModuleMock)
		cop, err := mock.New(opts, mockLogger)
		if err != nil {
			return err
		}
		server := apihttp.NewServer(cop, mockLogger,
			apihttp.WithRateLimit(mockServeFlags.RateLimit, mockServeFlags.RateLimit))
		bound, err := server.Start(mockServeFlags.Listen)
		if err != nil {
			return err
		}

		formatter.PrintSuccess(fmt.Sprintf("mock gateway listening on http://%s (chain %d)", bound, cop.ChainID()))
		if err := formatter.Print(map[string]interface{}{
			"url":      "http://" + bound,
			"chain_id": cop.ChainID(),
			"verifier": cop.Verifier().Hex(),
		}); err != nil {
			return err
		}

		select {
		case <-cmd.Context().Done():
			formatter.PrintInfo("shutting down")
			return server.Stop(context.Background())
		case err := <-waitServer(server):
			return err
		}
	},
}

func waitServer(s *apihttp.Server) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- s.Wait() }()
	return ch
}

func init() {
	mockServeCmd.Flags().StringVar(&mockServeFlags.Listen, "listen", "127.0.0.1:8646", "监听地址")
	mockServeCmd.Flags().Uint64Var(&mockServeFlags.ChainID, "chain-id", 0, "宿主链ID (默认: profile 的链ID)")
	mockServeCmd.Flags().StringVar(&mockServeFlags.VerifierKey, "verifier-key", "", "输入验证者私钥 (默认随机)")
	mockServeCmd.Flags().IntVar(&mockServeFlags.RateLimit, "rate-limit", 0, "每个客户端IP每秒请求上限 (0 表示不限)")

	mockCmd.AddCommand(mockServeCmd)
}
