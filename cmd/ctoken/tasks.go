package main

import (
	"github.com/spf13/cobra"
)

// hardhat 任务名兼容命令：参数与原任务一致，--address 为合约地址覆盖（send-ether 中为接收方）

var taskAddress string

var taskValue string

func addTaskAliases(root *cobra.Command) {
	tokenAddress := &cobra.Command{
		Use:   "token-address",
		Short: "同 token address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenAddress("", taskAddress)
		},
	}

	decryptAlice := &cobra.Command{
		Use:   "decrypt-alice-balance",
		Short: "同 token balance --account alice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd.Context(), "", taskAddress, "alice")
		},
	}

	decryptBob := &cobra.Command{
		Use:   "decrypt-bob-balance",
		Short: "同 token balance --account bob",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd.Context(), "", taskAddress, "bob")
		},
	}

	sendTokens := &cobra.Command{
		Use:   "send-tokens",
		Short: "同 token send --from alice --to bob",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), "", taskAddress, "alice", "bob", taskValue)
		},
	}
	sendTokens.Flags().StringVar(&taskValue, "value", "", "转账数量 (最小单位整数)")
	_ = sendTokens.MarkFlagRequired("value")

	sweepBob := &cobra.Command{
		Use:   "sweep-bob-tokens",
		Short: "同 token sweep --from bob --to alice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), "", taskAddress, "bob", "alice")
		},
	}

	sendEther := &cobra.Command{
		Use:   "send-ether",
		Short: "同 eth send --from 0 --amount 0.1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendEther(cmd.Context(), "0", taskAddress, "")
		},
	}
	sendEther.Flags().StringVar(&taskAddress, "address", "", "接收方地址")
	_ = sendEther.MarkFlagRequired("address")

	for _, c := range []*cobra.Command{tokenAddress, decryptAlice, decryptBob, sendTokens, sweepBob} {
		c.Flags().StringVar(&taskAddress, "address", "", "合约地址 (覆盖部署记录)")
	}
	for _, c := range []*cobra.Command{tokenAddress, decryptAlice, decryptBob, sendTokens, sweepBob, sendEther} {
		root.AddCommand(c)
	}
}
