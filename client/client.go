// Package client wires the ctoken services together from a network profile.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/config"
	"github.com/weisyn/ctoken/client/core/deployments"
	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/client/core/token"
	"github.com/weisyn/ctoken/client/core/tokenops"
	"github.com/weisyn/ctoken/client/core/transfer"
	"github.com/weisyn/ctoken/client/core/wallet"
	"github.com/weisyn/ctoken/internal/log"
)

const defaultTimeout = 30 * time.Second

// ErrChainMismatch 节点链ID与 profile 配置不一致
var ErrChainMismatch = errors.New("chain id mismatch")

// Options 构建客户端的可选参数
type Options struct {
	// Passphrase BIP39 口令（可选）
	Passphrase string
	Logger     *zap.Logger
	// Mock 不连接网络，使用进程内的模拟链、协处理器与 MyToken
	Mock bool
}

// Client ctoken 客户端 - 统一的入口
// 持有 RPC 连接、签名账户、部署记录与各业务服务
type Client struct {
	profile  *config.Profile
	eth      *ethclient.Client
	chainID  *big.Int
	accounts *wallet.Accounts
	registry *deployments.Registry
	fhevm    *fhevm.Client
	relayer  *fhevm.RelayerClient

	tokens    *tokenops.Service
	transfers *transfer.TransferService

	logger *zap.Logger
}

// LoadAccounts 从 profile 的助记词或私钥创建签名账户（不连接网络）
func LoadAccounts(p *config.Profile, passphrase string) (*wallet.Accounts, error) {
	var (
		signers []*wallet.Signer
		err     error
	)
	switch {
	case len(p.PrivateKeys) > 0:
		signers, err = wallet.FromPrivateKeys(p.PrivateKeys)
	case p.Mnemonic != "":
		signers, err = wallet.DeriveFromMnemonic(p.Mnemonic, passphrase, p.AccountCount)
	default:
		return nil, fmt.Errorf("profile %s: no mnemonic or private keys configured", p.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return wallet.NewAccounts(signers, p.Aliases), nil
}

// FhevmConfig profile 中的网关参数
func FhevmConfig(p *config.Profile) (fhevm.Config, error) {
	cfg := fhevm.Config{ChainID: p.ChainID, GatewayChainID: p.Gateway.ChainID}
	for _, a := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"decryption_address", p.Gateway.DecryptionAddress, &cfg.DecryptionAddress},
		{"input_verification_address", p.Gateway.InputVerificationAddress, &cfg.InputVerificationAddress},
	} {
		if a.raw == "" {
			continue
		}
		if !common.IsHexAddress(a.raw) {
			return fhevm.Config{}, fmt.Errorf("profile %s: invalid gateway %s %q", p.Name, a.name, a.raw)
		}
		*a.dst = common.HexToAddress(a.raw)
	}
	return cfg, nil
}

// New 连接 profile 指定的网络并构建全部服务
func New(ctx context.Context, p *config.Profile, opts Options) (*Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mock {
		return newMock(p, opts, logger)
	}

	accounts, err := LoadAccounts(p, opts.Passphrase)
	if err != nil {
		return nil, err
	}
	fcfg, err := FhevmConfig(p)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(p.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, p.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.RPCURL, err)
	}
	chainID, err := eth.ChainID(dialCtx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("get chain id from %s: %w", p.RPCURL, err)
	}
	if p.ChainID != 0 && chainID.Uint64() != p.ChainID {
		eth.Close()
		return nil, fmt.Errorf("%w: node reports %s, profile %s expects %d", ErrChainMismatch, chainID, p.Name, p.ChainID)
	}
	fcfg.ChainID = chainID.Uint64()

	c := &Client{
		profile:  p,
		eth:      eth,
		chainID:  chainID,
		accounts: accounts,
		registry: deployments.NewRegistry(p.DeploymentsDir, p.DeploymentNetwork()),
		relayer:  fhevm.NewRelayerClient(p.Gateway.URL, timeout, log.Module(logger, log.ModuleFhevm)),
		logger:   logger,
	}
	c.fhevm = fhevm.NewClient(fcfg, c.relayer, log.Module(logger, log.ModuleFhevm))
	c.tokens = tokenops.NewService(c.registry, accounts, c.fhevm, c.openToken, chainID, log.Module(logger, log.ModuleToken))
	c.transfers = transfer.NewTransferService(eth, log.Module(logger, log.ModuleTransfer))

	logger.Debug("客户端已连接",
		zap.String("profile", p.Name),
		zap.String("rpc", p.RPCURL),
		zap.Stringer("chain_id", chainID),
		zap.Int("accounts", accounts.Len()))
	return c, nil
}

// openToken 绑定链上合约并确认代码存在
func (c *Client) openToken(ctx context.Context, address common.Address) (token.Contract, error) {
	b, err := token.NewBinding(address, c.eth, log.Module(c.logger, log.ModuleToken))
	if err != nil {
		return nil, err
	}
	if err := b.EnsureDeployed(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Close 关闭 RPC 连接
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// Profile 当前 profile
func (c *Client) Profile() *config.Profile { return c.profile }

// ChainID 节点链ID
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Accounts 签名账户
func (c *Client) Accounts() *wallet.Accounts { return c.accounts }

// Registry 部署记录
func (c *Client) Registry() *deployments.Registry { return c.registry }

// Fhevm 加密插件客户端
func (c *Client) Fhevm() *fhevm.Client { return c.fhevm }

// Tokens 机密代币操作
func (c *Client) Tokens() *tokenops.Service { return c.tokens }

// Transfers 原生币转账
func (c *Client) Transfers() *transfer.TransferService { return c.transfers }

// Eth 底层 RPC 客户端；模拟模式下为 nil
func (c *Client) Eth() *ethclient.Client { return c.eth }
