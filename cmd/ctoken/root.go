package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/weisyn/ctoken/client"
	"github.com/weisyn/ctoken/client/core/config"
	"github.com/weisyn/ctoken/client/core/output"
	"github.com/weisyn/ctoken/internal/log"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	Profile       string // Profile名称
	ConfigDir     string // 配置目录
	OutputFormat  string // 输出格式
	Silent        bool   // 静默模式
	Verbose       bool   // 详细模式
	LogFile       string // 日志文件
	AskPassphrase bool   // 提示输入 BIP39 口令
	Mock          bool   // 进程内模拟网络
}

var (
	globalFlags GlobalFlags
	profileMgr  *config.ProfileManager
	formatter   *output.Formatter
	logger      = zap.NewNop()

	// 命令结果与提示信息的输出目标，测试中替换
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "ctoken",
	Short: "机密代币命令行客户端",
	Long: `ctoken - 已部署的 ERC-7984 机密代币的命令行客户端

余额以 FHE 密文句柄保存在链上。ctoken 通过 fhEVM 网关加密转账金额、
按用户授权解密余额，并发送交易:
- token address / balance / mint / send / sweep
- eth send        发送原生币
- account list    查看签名账户
- mock serve      启动本地模拟网关 (只提供网关 HTTP 协议，不观察任何链)
- --mock          不连接网络，在进程内模拟链、网关与 MyToken

兼容 hardhat 任务名: token-address, decrypt-alice-balance,
decrypt-bob-balance, send-tokens, sweep-bob-tokens, send-ether。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		profileMgr, err = config.NewProfileManager(globalFlags.ConfigDir)
		if err != nil {
			return fmt.Errorf("初始化配置: %w", err)
		}

		format, err := output.ParseFormat(globalFlags.OutputFormat)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, stdout)
		formatter.SetLogWriter(stderr)
		formatter.SetSilent(globalFlags.Silent)

		opts := &log.Options{Level: "warn", ToConsole: true, FilePath: globalFlags.LogFile}
		if globalFlags.Verbose {
			opts.Level = "debug"
		}
		if globalFlags.Silent {
			opts.ToConsole = false
		}
		if logger, err = log.New(opts); err != nil {
			return fmt.Errorf("初始化日志: %w", err)
		}
		logger = log.Module(logger, log.ModuleCLI)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute 执行根命令
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	client.CloseMocks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Profile, "profile", "", "使用指定的Profile (默认使用当前Profile)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigDir, "config-dir", "", "配置目录 (默认: ~/.ctoken)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.OutputFormat, "output", "o", "json", "输出格式: json|pretty|table|text")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Silent, "silent", false, "静默模式 (仅输出结果)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "详细输出")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "日志文件 (按大小轮转)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.AskPassphrase, "ask-passphrase", false, "提示输入助记词的 BIP39 口令")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Mock, "mock", false, "不连接网络，使用进程内模拟的链、网关与 MyToken (状态随进程结束丢弃)")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(ethCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(versionCmd)
	addTaskAliases(rootCmd)
}

// getProfile 获取 --profile 指定的或当前的 profile
func getProfile() (*config.Profile, error) {
	var (
		profile *config.Profile
		err     error
	)
	if globalFlags.Profile != "" {
		profile, err = profileMgr.GetProfile(globalFlags.Profile)
	} else {
		profile, err = profileMgr.GetCurrentProfile()
	}
	if err != nil {
		return nil, fmt.Errorf("获取Profile: %w", err)
	}
	return profile, nil
}

// passphrase 按需读取 BIP39 口令
func passphrase() (string, error) {
	if !globalFlags.AskPassphrase {
		return "", nil
	}
	return promptPassword("BIP39 passphrase")
}

// promptPassword 提示输入密码（不回显）
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(stderr, prompt+": ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	fmt.Fprintln(stderr)
	return string(bytePassword), nil
}

// connect 按 profile 连接网络
func connect(ctx context.Context) (*client.Client, error) {
	profile, err := getProfile()
	if err != nil {
		return nil, err
	}
	pass, err := passphrase()
	if err != nil {
		return nil, err
	}
	c, err := client.New(ctx, profile, client.Options{Passphrase: pass, Logger: logger, Mock: globalFlags.Mock})
	if err != nil {
		return nil, fmt.Errorf("连接 %s: %w", profile.Name, err)
	}
	return c, nil
}

// receiptContext 发送交易的命令以 profile 的回执超时为上限
func receiptContext(ctx context.Context, p *config.Profile) (context.Context, context.CancelFunc) {
	timeout := time.Duration(p.ReceiptTimeout)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
