package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/weisyn/ctoken/client/core/deployments"
	"github.com/weisyn/ctoken/client/core/tokenops"
)

// tokenFlags token 子命令共用的合约选择
type tokenFlags struct {
	Contract string // 部署记录中的合约名
	Address  string // 合约地址覆盖
}

var tokenOpts tokenFlags

// tokenCmd 机密代币命令
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "机密代币操作",
	Long:  "查询合约地址、解密余额、铸币、加密转账与全额划转",
}

// target 合约选择：--address 覆盖部署记录
func target(contract, address string) (tokenops.Target, error) {
	if contract == "" {
		profile, err := getProfile()
		if err != nil {
			return tokenops.Target{}, err
		}
		contract = profile.Contract()
	}
	return tokenops.Target{Name: contract, Address: address}, nil
}

// ===== O1 =====

var tokenAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "显示代币合约地址",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTokenAddress(tokenOpts.Contract, tokenOpts.Address)
	},
}

// runTokenAddress 只读取部署记录，不连接网络
func runTokenAddress(contract, address string) error {
	profile, err := getProfile()
	if err != nil {
		return err
	}
	t, err := target(contract, address)
	if err != nil {
		return err
	}
	registry := deployments.NewRegistry(profile.DeploymentsDir, profile.DeploymentNetwork())
	svc := tokenops.NewService(registry, nil, nil, nil, nil, logger)
	res, err := svc.TokenAddress(t)
	if err != nil {
		return err
	}
	formatter.PrintInfo(fmt.Sprintf("%s address is %s", res.Name, res.Address.Hex()))
	return formatter.Print(res)
}

var tokenInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示代币元数据",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target(tokenOpts.Contract, tokenOpts.Address)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		meta, addr, err := c.Tokens().Info(cmd.Context(), t)
		if err != nil {
			return err
		}
		return formatter.Print(map[string]interface{}{
			"address":  addr.Hex(),
			"name":     meta.Name,
			"symbol":   meta.Symbol,
			"decimals": meta.Decimals,
			"owner":    meta.Owner.Hex(),
		})
	},
}

// ===== O2 =====

var balanceAccount string

var tokenBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "解密账户自己的余额",
	Long: `读取 confidentialBalanceOf(account) 并以该账户签名请求用户解密。

零句柄表示余额未初始化，直接输出 0，不请求网关。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBalance(cmd.Context(), tokenOpts.Contract, tokenOpts.Address, balanceAccount)
	},
}

func runBalance(ctx context.Context, contract, address, account string) error {
	t, err := target(contract, address)
	if err != nil {
		return err
	}
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Tokens().Balance(ctx, t, account)
	if err != nil {
		return err
	}
	formatter.PrintInfo(fmt.Sprintf("Encrypted balance: %s", res.Handle.Hex()))
	formatter.PrintInfo(fmt.Sprintf("Clear balance    : %s", res.Clear))
	return formatter.Print(res)
}

var supplyDecryptAs string

var tokenSupplyCmd = &cobra.Command{
	Use:   "supply",
	Short: "总供应量（所有者可解密）",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target(tokenOpts.Contract, tokenOpts.Address)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.Tokens().TotalSupply(cmd.Context(), t, supplyDecryptAs)
		if err != nil {
			return err
		}
		return formatter.Print(res)
	},
}

// ===== O3 =====

var mintFlags struct {
	From  string
	To    string
	Value string
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "以加密输入铸币",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := tokenops.ParseValue(mintFlags.Value)
		if err != nil {
			return err
		}
		t, err := target(tokenOpts.Contract, tokenOpts.Address)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := receiptContext(cmd.Context(), c.Profile())
		defer cancel()
		c.Tokens().OnSubmit(printSubmitted)

		res, err := c.Tokens().Mint(ctx, t, mintFlags.From, mintFlags.To, value)
		if err != nil {
			return err
		}
		formatter.PrintSuccess(fmt.Sprintf("%s mint(%d) succeeded!", t.Name, value))
		return formatter.Print(res)
	},
}

// ===== O4 =====

var sendFlags struct {
	From  string
	To    string
	Value string
}

var tokenSendCmd = &cobra.Command{
	Use:   "send",
	Short: "加密金额转账",
	Long: `将 --value 加密为绑定 (合约, 发送方) 的 64 位输入，
调用 confidentialTransfer(address,bytes32,bytes)。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd.Context(), tokenOpts.Contract, tokenOpts.Address, sendFlags.From, sendFlags.To, sendFlags.Value)
	},
}

func runSend(ctx context.Context, contract, address, from, to, rawValue string) error {
	// 网络访问前校验
	value, err := tokenops.ParseValue(rawValue)
	if err != nil {
		return err
	}
	t, err := target(contract, address)
	if err != nil {
		return err
	}
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := receiptContext(ctx, c.Profile())
	defer cancel()
	c.Tokens().OnSubmit(printSubmitted)

	res, err := c.Tokens().Send(ctx, t, from, to, value)
	if err != nil {
		return err
	}
	formatter.PrintInfo(fmt.Sprintf("tx:%s status=%d", res.TxHash.Hex(), res.Status))
	formatter.PrintInfo(fmt.Sprintf("Recipient encrypted balance: %s", res.RecipientHandle.Hex()))
	formatter.PrintSuccess(fmt.Sprintf("%s transfer(%d) succeeded!", t.Name, value))
	return formatter.Print(res)
}

// ===== O5 =====

var sweepFlags struct {
	From string
	To   string
}

var tokenSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "以余额句柄全额划转",
	Long: `读取源账户的余额句柄并调用 confidentialTransfer(address,bytes32)。

源账户余额未初始化（零句柄）时不发送交易。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep(cmd.Context(), tokenOpts.Contract, tokenOpts.Address, sweepFlags.From, sweepFlags.To)
	},
}

func runSweep(ctx context.Context, contract, address, from, to string) error {
	t, err := target(contract, address)
	if err != nil {
		return err
	}
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := receiptContext(ctx, c.Profile())
	defer cancel()
	c.Tokens().OnSubmit(printSubmitted)

	res, err := c.Tokens().Sweep(ctx, t, from, to)
	if err != nil {
		return err
	}
	if !res.Swept {
		formatter.PrintInfo(fmt.Sprintf("%s has no encrypted balance, nothing to sweep", res.From.Hex()))
		return formatter.Print(res)
	}
	formatter.PrintInfo(fmt.Sprintf("tx:%s status=%d", res.TxHash.Hex(), res.Status))
	formatter.PrintInfo(fmt.Sprintf("Source encrypted balance: %s", res.NewSourceHandle.Hex()))
	formatter.PrintSuccess(fmt.Sprintf("%s sweep succeeded!", t.Name))
	return formatter.Print(res)
}

// printSubmitted 交易广播后立即提示哈希
func printSubmitted(method string, tx common.Hash) {
	formatter.PrintInfo(fmt.Sprintf("Wait for tx:%s (%s)...", tx.Hex(), method))
}

func init() {
	tokenCmd.PersistentFlags().StringVar(&tokenOpts.Contract, "contract", "", "部署记录中的合约名 (默认: profile 配置，通常为 MyToken)")
	tokenCmd.PersistentFlags().StringVar(&tokenOpts.Address, "address", "", "合约地址 (覆盖部署记录)")

	tokenBalanceCmd.Flags().StringVar(&balanceAccount, "account", "alice", "账户: 别名/下标/签名器地址")
	tokenSupplyCmd.Flags().StringVar(&supplyDecryptAs, "decrypt-as", "", "以该账户解密总供应量 (需在 ACL 中，通常为所有者)")

	tokenMintCmd.Flags().StringVar(&mintFlags.From, "from", "", "发送交易的账户 (默认: 接收方是签名器时由其发送，否则账户 0)")
	tokenMintCmd.Flags().StringVar(&mintFlags.To, "to", "alice", "接收方: 账户或地址")
	tokenMintCmd.Flags().StringVar(&mintFlags.Value, "value", "", "铸币数量 (最小单位整数)")
	_ = tokenMintCmd.MarkFlagRequired("value")

	tokenSendCmd.Flags().StringVar(&sendFlags.From, "from", "alice", "发送方账户")
	tokenSendCmd.Flags().StringVar(&sendFlags.To, "to", "bob", "接收方: 账户或地址")
	tokenSendCmd.Flags().StringVar(&sendFlags.Value, "value", "", "转账数量 (最小单位整数)")
	_ = tokenSendCmd.MarkFlagRequired("value")

	tokenSweepCmd.Flags().StringVar(&sweepFlags.From, "from", "bob", "源账户")
	tokenSweepCmd.Flags().StringVar(&sweepFlags.To, "to", "alice", "接收方: 账户或地址")

	tokenCmd.AddCommand(tokenAddressCmd)
	tokenCmd.AddCommand(tokenInfoCmd)
	tokenCmd.AddCommand(tokenBalanceCmd)
	tokenCmd.AddCommand(tokenSupplyCmd)
	tokenCmd.AddCommand(tokenMintCmd)
	tokenCmd.AddCommand(tokenSendCmd)
	tokenCmd.AddCommand(tokenSweepCmd)
}
