package client

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/config"
	"github.com/weisyn/ctoken/client/core/deployments"
	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/fhevm/mock"
	"github.com/weisyn/ctoken/client/core/token"
	"github.com/weisyn/ctoken/client/core/token/mocktoken"
	"github.com/weisyn/ctoken/client/core/tokenops"
	"github.com/weisyn/ctoken/client/core/transfer"
	"github.com/weisyn/ctoken/internal/log"
)

// mockFunds 模拟链上每个账户的初始余额（与 hardhat 一致，10000 ETH）
var mockFunds = new(big.Int).Mul(big.NewInt(10000), big.NewInt(params.Ether))

// mockChain 进程内的模拟网络：协处理器 + 代币 + 原生币链
//
// 同一进程内按 profile 复用，连续的命令看到同一份状态；进程退出即丢弃。
type mockChain struct {
	cop      *mock.Coprocessor
	token    *mocktoken.Token
	backend  *simulated.Backend
	registry *deployments.Registry
	dir      string
}

var (
	mockMu     sync.Mutex
	mockChains = make(map[string]*mockChain)
)

// autoMine 交易发送后立即出块
type autoMine struct {
	simulated.Client
	backend *simulated.Backend
}

func (a autoMine) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := a.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	a.backend.Commit()
	return nil
}

// withChainID 模拟链使用 profile 的链ID
func withChainID(id uint64) func(*node.Config, *ethconfig.Config) {
	return func(_ *node.Config, ethConf *ethconfig.Config) {
		cfg := *ethConf.Genesis.Config
		cfg.ChainID = new(big.Int).SetUint64(id)
		ethConf.Genesis.Config = &cfg
		ethConf.NetworkId = id
	}
}

// newMock 不连接网络，在进程内部署 MyToken 并构建全部服务
func newMock(p *config.Profile, opts Options, logger *zap.Logger) (*Client, error) {
	accounts, err := LoadAccounts(p, opts.Passphrase)
	if err != nil {
		return nil, err
	}
	fcfg, err := FhevmConfig(p)
	if err != nil {
		return nil, err
	}
	chainID := p.ChainID
	if chainID == 0 {
		chainID = 31337
	}

	key := p.Name + "|" + p.DeploymentsDir
	mockMu.Lock()
	defer mockMu.Unlock()
	mc, ok := mockChains[key]
	if !ok {
		mockLogger := log.Module(logger, log.ModuleMock)
		cop, err := mock.New(mock.Options{
			ChainID:           chainID,
			GatewayChainID:    fcfg.GatewayChainID,
			DecryptionAddress: fcfg.DecryptionAddress,
		}, mockLogger)
		if err != nil {
			return nil, err
		}
		owner := accounts.All()[0].Address()
		tok, err := mocktoken.Deploy(cop, owner, mockLogger)
		if err != nil {
			return nil, err
		}

		// 部署记录写入临时目录，不改动 profile 的 hardhat-deploy 目录
		dir, err := os.MkdirTemp("", "ctoken-mock-")
		if err != nil {
			return nil, fmt.Errorf("create mock deployments dir: %w", err)
		}
		registry := deployments.NewRegistry(dir, p.DeploymentNetwork())
		if err := registry.Save(&deployments.Deployment{Name: p.Contract(), Address: tok.Address()}); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		_ = registry.SetChainID(chainID)

		alloc := make(types.GenesisAlloc, accounts.Len())
		for _, s := range accounts.All() {
			alloc[s.Address()] = types.Account{Balance: new(big.Int).Set(mockFunds)}
		}

		mc = &mockChain{
			cop:      cop,
			token:    tok,
			backend:  simulated.NewBackend(alloc, withChainID(chainID)),
			registry: registry,
			dir:      dir,
		}
		mockChains[key] = mc
		mockLogger.Info("模拟网络已部署",
			zap.String("profile", p.Name),
			zap.Uint64("chain_id", chainID),
			zap.Stringer("token", tok.Address()))
	}

	id := new(big.Int).SetUint64(chainID)
	c := &Client{
		profile:  p,
		chainID:  id,
		accounts: accounts,
		registry: mc.registry,
		logger:   logger,
	}
	c.fhevm = fhevm.NewClient(mc.cop.ClientConfig(), mc.cop, log.Module(logger, log.ModuleFhevm))
	c.tokens = tokenops.NewService(c.registry, accounts, c.fhevm, mc.open, id, log.Module(logger, log.ModuleToken))
	c.transfers = transfer.NewTransferService(
		autoMine{Client: mc.backend.Client(), backend: mc.backend},
		log.Module(logger, log.ModuleTransfer))
	return c, nil
}

// open 只有模拟部署的地址上有合约
func (mc *mockChain) open(_ context.Context, address common.Address) (token.Contract, error) {
	if address != mc.token.Address() {
		return nil, fmt.Errorf("%w: %s", token.ErrNoCode, address.Hex())
	}
	return mc.token, nil
}

// CloseMocks 释放进程内的全部模拟网络
func CloseMocks() {
	mockMu.Lock()
	defer mockMu.Unlock()
	for key, mc := range mockChains {
		_ = mc.backend.Close()
		_ = os.RemoveAll(mc.dir)
		delete(mockChains, key)
	}
}
