package main

import (
	"github.com/spf13/cobra"

	"github.com/weisyn/ctoken/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return formatter.Print(version.Get())
	},
}
