package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/weisyn/ctoken/client"
)

// accountCmd 签名账户命令
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "签名账户",
	Long:  "查看由 profile 的助记词或私钥得到的签名账户（不访问网络）",
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出签名账户",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := getProfile()
		if err != nil {
			return err
		}
		pass, err := passphrase()
		if err != nil {
			return err
		}
		accounts, err := client.LoadAccounts(profile, pass)
		if err != nil {
			return err
		}

		result := make([]map[string]interface{}, 0, accounts.Len())
		for _, s := range accounts.All() {
			row := map[string]interface{}{
				"index":   s.Index(),
				"address": s.Address().Hex(),
				"alias":   accounts.NameOf(s.Address()),
			}
			if s.Path() != "" {
				row["path"] = s.Path()
			}
			result = append(result, row)
		}
		return formatter.Print(result)
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "显示账户（别名/下标/地址）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := getProfile()
		if err != nil {
			return err
		}
		pass, err := passphrase()
		if err != nil {
			return err
		}
		accounts, err := client.LoadAccounts(profile, pass)
		if err != nil {
			return err
		}
		s, err := accounts.Resolve(args[0])
		if err != nil {
			return err
		}
		return formatter.Print(map[string]interface{}{
			"index":   s.Index(),
			"address": s.Address().Hex(),
			"alias":   accounts.NameOf(s.Address()),
			"path":    s.Path(),
		})
	},
}

var accountAliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "列出账户别名",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := getProfile()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(profile.Aliases))
		for name := range profile.Aliases {
			names = append(names, name)
		}
		sort.Strings(names)

		result := make([]map[string]interface{}, 0, len(names))
		for _, name := range names {
			result = append(result, map[string]interface{}{
				"alias": name,
				"index": profile.Aliases[name],
			})
		}
		if len(result) == 0 {
			formatter.PrintInfo(fmt.Sprintf("profile %s has no aliases", profile.Name))
		}
		return formatter.Print(result)
	},
}

func init() {
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountAliasesCmd)
}
