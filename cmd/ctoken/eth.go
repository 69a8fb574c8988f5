package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/weisyn/ctoken/client/core/transfer"
)

// ethCmd 原生币命令
var ethCmd = &cobra.Command{
	Use:   "eth",
	Short: "原生币操作",
}

var ethSendFlags struct {
	From   string
	To     string
	Amount string
}

var ethSendCmd = &cobra.Command{
	Use:   "send",
	Short: "发送原生币",
	Long: `从签名账户发送 ether（默认 0.1）并等待回执。

--amount 为十进制 ether，或带 wei 后缀，如 1500wei。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSendEther(cmd.Context(), ethSendFlags.From, ethSendFlags.To, ethSendFlags.Amount)
	},
}

var ethBalanceCmd = &cobra.Command{
	Use:   "balance [account]",
	Short: "查询原生币余额",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		selector := "0"
		if len(args) > 0 {
			selector = args[0]
		}
		c, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		addr, err := c.Accounts().ResolveAddress(selector)
		if err != nil {
			return err
		}
		bal, err := c.Transfers().GetBalance(cmd.Context(), addr)
		if err != nil {
			return err
		}
		return formatter.Print(map[string]interface{}{
			"address": addr.Hex(),
			"ether":   bal.String(),
			"wei":     bal.Wei().String(),
		})
	},
}

func runSendEther(ctx context.Context, from, to, amount string) error {
	// 网络访问前校验
	if !common.IsHexAddress(to) {
		return fmt.Errorf("%w: %q", transfer.ErrInvalidRecipient, to)
	}
	if amount != "" {
		if _, err := transfer.ParseAmount(amount); err != nil {
			return err
		}
	}
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	sender, err := c.Accounts().Resolve(from)
	if err != nil {
		return err
	}
	ctx, cancel := receiptContext(ctx, c.Profile())
	defer cancel()

	svc := c.Transfers()
	res, tx, err := svc.Submit(ctx, &transfer.TransferRequest{From: sender, To: to, Amount: amount})
	if err != nil {
		return err
	}
	formatter.PrintInfo(fmt.Sprintf("Transaction hash: %s", res.TxHash.Hex()))
	if err := svc.Wait(ctx, tx, res); err != nil {
		return err
	}
	formatter.PrintSuccess(fmt.Sprintf("sent %s ether to %s", res.Value, res.To.Hex()))
	return formatter.Print(res)
}

func init() {
	ethSendCmd.Flags().StringVar(&ethSendFlags.From, "from", "0", "发送方账户")
	ethSendCmd.Flags().StringVar(&ethSendFlags.To, "to", "", "接收方地址")
	ethSendCmd.Flags().StringVar(&ethSendFlags.Amount, "amount", transfer.DefaultAmount, "金额 (ether)")
	_ = ethSendCmd.MarkFlagRequired("to")

	ethCmd.AddCommand(ethSendCmd)
	ethCmd.AddCommand(ethBalanceCmd)
}
