package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weisyn/ctoken/client/core/config"
)

// profileCmd Profile管理命令
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Profile管理",
	Long:  "管理网络配置Profile,支持多环境切换(localhost/sepolia)",
}

// redacted 输出前隐藏助记词与私钥
func redacted(p *config.Profile) *config.Profile {
	cp := *p
	if cp.Mnemonic != "" {
		cp.Mnemonic = "***"
	}
	if len(cp.PrivateKeys) > 0 {
		keys := make([]string, len(cp.PrivateKeys))
		for i := range keys {
			keys[i] = "***"
		}
		cp.PrivateKeys = keys
	}
	return &cp
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		current := profileMgr.CurrentName()

		var result []map[string]interface{}
		for _, name := range profileMgr.ListProfiles() {
			profile, err := profileMgr.GetProfile(name)
			if err != nil {
				continue
			}
			result = append(result, map[string]interface{}{
				"name":     name,
				"chain_id": profile.ChainID,
				"rpc_url":  profile.RPCURL,
				"current":  name == current,
			})
		}
		return formatter.Print(result)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "显示profile详情",
	Long:  "显示指定profile的详细配置(不指定则显示当前profile)，助记词与私钥不输出",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			profile *config.Profile
			err     error
		)
		if len(args) > 0 {
			profile, err = profileMgr.GetProfile(args[0])
		} else {
			profile, err = getProfile()
		}
		if err != nil {
			return err
		}
		return formatter.Print(redacted(profile))
	},
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "切换profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := profileMgr.SwitchProfile(name); err != nil {
			return err
		}
		formatter.PrintSuccess(fmt.Sprintf("已切换到 profile '%s'", name))

		profile, err := profileMgr.GetProfile(name)
		if err != nil {
			return err
		}
		return formatter.Print(map[string]interface{}{
			"name":     name,
			"chain_id": profile.ChainID,
		})
	},
}

var profileCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "显示当前profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := profileMgr.GetCurrentProfile()
		if err != nil {
			return err
		}
		return formatter.Print(map[string]interface{}{
			"name":     profile.Name,
			"chain_id": profile.ChainID,
		})
	},
}

var createFlags struct {
	From       string
	ChainID    uint64
	RPCURL     string
	GatewayURL string
	Network    string
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "创建新profile",
	Long:  "以 --from 指定的 profile 为模板创建新的配置Profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if _, err := profileMgr.GetProfile(name); err == nil {
			return fmt.Errorf("profile '%s' 已存在", name)
		}

		base, err := profileMgr.GetProfile(createFlags.From)
		if err != nil {
			return err
		}
		profile := *base
		profile.Name = name
		if createFlags.ChainID != 0 {
			profile.ChainID = createFlags.ChainID
		}
		if createFlags.RPCURL != "" {
			profile.RPCURL = createFlags.RPCURL
		}
		if createFlags.GatewayURL != "" {
			profile.Gateway.URL = createFlags.GatewayURL
		}
		if createFlags.Network != "" {
			profile.Network = createFlags.Network
		}

		if err := profileMgr.SaveProfile(&profile); err != nil {
			return fmt.Errorf("保存 profile 失败: %w", err)
		}
		formatter.PrintSuccess(fmt.Sprintf("Profile '%s' 创建成功", name))

		return formatter.Print(map[string]interface{}{
			"name":     name,
			"chain_id": profile.ChainID,
		})
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "导入profile",
	Long:  "从JSON文件导入配置Profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		//nolint:gosec // G304: 路径由用户指定
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("读取文件失败: %w", err)
		}

		var profile config.Profile
		if err := json.Unmarshal(data, &profile); err != nil {
			return fmt.Errorf("解析JSON失败: %w", err)
		}
		if _, err := profileMgr.GetProfile(profile.Name); err == nil {
			return fmt.Errorf("profile '%s' 已存在", profile.Name)
		}

		if err := profileMgr.SaveProfile(&profile); err != nil {
			return fmt.Errorf("保存 profile 失败: %w", err)
		}
		formatter.PrintSuccess(fmt.Sprintf("Profile '%s' 导入成功", profile.Name))

		return formatter.Print(map[string]interface{}{
			"name":     profile.Name,
			"chain_id": profile.ChainID,
		})
	},
}

var profileExportCmd = &cobra.Command{
	Use:   "export <name> [file]",
	Short: "导出profile",
	Long:  "将配置Profile导出为JSON文件（包含助记词与私钥，文件权限 0600）",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		profile, err := profileMgr.GetProfile(name)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			return fmt.Errorf("序列化JSON失败: %w", err)
		}

		outputFile := name + "-profile.json"
		if len(args) > 1 {
			outputFile = args[1]
		}
		if err := os.WriteFile(outputFile, data, 0600); err != nil {
			return fmt.Errorf("写入文件失败: %w", err)
		}
		formatter.PrintSuccess(fmt.Sprintf("Profile '%s' 已导出到 %s", name, outputFile))

		return formatter.Print(map[string]interface{}{
			"profile": name,
			"file":    outputFile,
		})
	},
}

var deleteYes bool

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "删除profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if name == profileMgr.CurrentName() {
			return config.ErrDeleteCurrent
		}

		if !deleteYes {
			fmt.Fprintf(stderr, "确认删除 profile '%s'? (yes/no): ", name)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("读取输入失败: %w", err)
			}
			if strings.ToLower(strings.TrimSpace(line)) != "yes" {
				formatter.PrintInfo("取消删除")
				return nil
			}
		}

		if err := profileMgr.DeleteProfile(name); err != nil {
			return fmt.Errorf("删除 profile 失败: %w", err)
		}
		formatter.PrintSuccess(fmt.Sprintf("Profile '%s' 已删除", name))
		return nil
	},
}

func init() {
	profileCreateCmd.Flags().StringVar(&createFlags.From, "from", "localhost", "模板 profile")
	profileCreateCmd.Flags().Uint64Var(&createFlags.ChainID, "chain-id", 0, "链ID")
	profileCreateCmd.Flags().StringVar(&createFlags.RPCURL, "rpc-url", "", "JSON-RPC URL")
	profileCreateCmd.Flags().StringVar(&createFlags.GatewayURL, "gateway-url", "", "fhEVM 网关 URL")
	profileCreateCmd.Flags().StringVar(&createFlags.Network, "network", "", "部署记录子目录 (默认与 profile 同名)")
	profileDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "跳过确认")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSwitchCmd)
	profileCmd.AddCommand(profileCurrentCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileImportCmd)
	profileCmd.AddCommand(profileExportCmd)
	profileCmd.AddCommand(profileDeleteCmd)
}
