// Package config provides profile management for the ctoken client.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// 环境变量覆盖（优先级高于 profile 文件）
const (
	EnvRPCURL      = "CTOKEN_RPC_URL"
	EnvMnemonic    = "CTOKEN_MNEMONIC"
	EnvPrivateKeys = "CTOKEN_PRIVATE_KEYS" // 逗号分隔的十六进制私钥
	EnvGatewayURL  = "CTOKEN_GATEWAY_URL"
)

// HardhatMnemonic hardhat 本地网络的默认测试助记词
const HardhatMnemonic = "test test test test test test test test test test test junk"

// DefaultContractName 部署记录中代币合约的默认名称
const DefaultContractName = "MyToken"

var (
	// ErrProfileNotFound profile 不存在
	ErrProfileNotFound = errors.New("profile not found")
	// ErrDeleteCurrent 不能删除当前 profile
	ErrDeleteCurrent = errors.New("cannot delete current profile")
)

// Profile CLI配置Profile
type Profile struct {
	Name    string `json:"name"`     // Profile名称: localhost/sepolia
	ChainID uint64 `json:"chain_id"` // 链ID
	RPCURL  string `json:"rpc_url"`  // 以太坊 JSON-RPC 地址

	// fhEVM 网关
	Gateway GatewayConfig `json:"gateway"`

	// 部署记录
	DeploymentsDir string `json:"deployments_dir"`         // hardhat-deploy 目录
	Network        string `json:"network,omitempty"`       // 部署子目录名，默认等于 Name
	ContractName   string `json:"contract_name,omitempty"` // 代币合约名

	// 签名账户
	Mnemonic     string         `json:"mnemonic,omitempty"`
	PrivateKeys  []string       `json:"private_keys,omitempty"`
	AccountCount int            `json:"account_count"` // 从助记词派生的账户数
	Aliases      map[string]int `json:"aliases,omitempty"`

	// 网络配置
	Timeout        Duration `json:"timeout"`         // 单次请求超时
	ReceiptTimeout Duration `json:"receipt_timeout"` // 等待交易回执的超时
}

// GatewayConfig fhEVM 网关（加密/解密服务）配置
type GatewayConfig struct {
	URL                      string `json:"url"`
	ChainID                  uint64 `json:"chain_id"`                   // 网关链ID（EIP-712 域）
	DecryptionAddress        string `json:"decryption_address"`         // 解密合约地址（EIP-712 verifyingContract）
	InputVerificationAddress string `json:"input_verification_address"` // 输入验证合约地址
}

// Duration 时间duration(支持JSON序列化)
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(dur)
	return nil
}

// DeploymentNetwork 返回部署记录使用的网络目录名
func (p *Profile) DeploymentNetwork() string {
	if p.Network != "" {
		return p.Network
	}
	return p.Name
}

// Contract 返回代币合约名
func (p *Profile) Contract() string {
	if p.ContractName != "" {
		return p.ContractName
	}
	return DefaultContractName
}

// ApplyEnv 应用环境变量覆盖
func (p *Profile) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvRPCURL); ok && v != "" {
		p.RPCURL = v
	}
	if v, ok := lookup(EnvMnemonic); ok && v != "" {
		p.Mnemonic = v
	}
	if v, ok := lookup(EnvPrivateKeys); ok && v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		p.PrivateKeys = keys
	}
	if v, ok := lookup(EnvGatewayURL); ok && v != "" {
		p.Gateway.URL = v
	}
}

// Validate 检查 profile 是否可用于连接网络
func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is empty")
	}
	if p.RPCURL == "" {
		return fmt.Errorf("profile %s: rpc_url is empty", p.Name)
	}
	if p.Mnemonic == "" && len(p.PrivateKeys) == 0 {
		return fmt.Errorf("profile %s: no mnemonic or private keys configured", p.Name)
	}
	return nil
}

// ProfileManager Profile管理器
type ProfileManager struct {
	configDir      string
	currentProfile string
	profiles       map[string]*Profile
}

// NewProfileManager 创建Profile管理器
func NewProfileManager(configDir string) (*ProfileManager, error) {
	if configDir == "" {
		// 默认配置目录: ~/.ctoken
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		configDir = filepath.Join(homeDir, ".ctoken")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	pm := &ProfileManager{
		configDir: configDir,
		profiles:  make(map[string]*Profile),
	}

	if err := pm.loadProfiles(); err != nil {
		return nil, err
	}

	if err := pm.loadCurrentProfile(); err != nil {
		pm.currentProfile = "localhost"
	}

	return pm, nil
}

// ConfigDir 返回配置目录
func (pm *ProfileManager) ConfigDir() string {
	return pm.configDir
}

// loadProfiles 加载所有profiles
func (pm *ProfileManager) loadProfiles() error {
	profilesDir := filepath.Join(pm.configDir, "profiles")

	if _, err := os.Stat(profilesDir); os.IsNotExist(err) {
		if err := os.MkdirAll(profilesDir, 0700); err != nil {
			return fmt.Errorf("create profiles dir: %w", err)
		}
		if err := pm.createDefaultProfiles(); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return fmt.Errorf("read profiles dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		profile, err := pm.loadProfile(filepath.Join(profilesDir, entry.Name()))
		if err != nil {
			// 记录错误但继续
			fmt.Fprintf(os.Stderr, "Warning: failed to load profile %s: %v\n", entry.Name(), err)
			continue
		}

		pm.profiles[profile.Name] = profile
	}

	return nil
}

// loadProfile 加载单个profile
func (pm *ProfileManager) loadProfile(filePath string) (*Profile, error) {
	//nolint:gosec // G304: filePath 来自配置目录，路径安全可控
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(filePath), ".json")
	}

	pm.fillDefaults(&profile)
	return &profile, nil
}

// fillDefaults 填充默认值，loadProfile 与 SaveProfile 共用
func (pm *ProfileManager) fillDefaults(p *Profile) {
	if p.DeploymentsDir == "" {
		p.DeploymentsDir = filepath.Join(pm.configDir, "deployments")
	}
	if p.AccountCount == 0 {
		p.AccountCount = 10
	}
	if len(p.Aliases) == 0 {
		p.Aliases = DefaultAliases()
	}
	if p.Timeout == 0 {
		p.Timeout = Duration(30 * time.Second)
	}
	if p.ReceiptTimeout == 0 {
		p.ReceiptTimeout = Duration(5 * time.Minute)
	}
}

// DefaultAliases 默认账户别名：与 hardhat 任务一致，signers[0]=alice, signers[1]=bob
func DefaultAliases() map[string]int {
	return map[string]int{
		"alice": 0,
		"bob":   1,
	}
}

// loadCurrentProfile 加载当前profile
func (pm *ProfileManager) loadCurrentProfile() error {
	currentFile := filepath.Join(pm.configDir, "current")
	//nolint:gosec // G304: currentFile 来自配置目录，路径安全可控
	data, err := os.ReadFile(currentFile)
	if err != nil {
		return err
	}

	pm.currentProfile = strings.TrimSpace(string(data))
	return nil
}

// saveCurrentProfile 保存当前profile
func (pm *ProfileManager) saveCurrentProfile() error {
	currentFile := filepath.Join(pm.configDir, "current")
	return os.WriteFile(currentFile, []byte(pm.currentProfile), 0600)
}

// DefaultProfiles 内置的默认 profiles
func DefaultProfiles() []*Profile {
	return []*Profile{
		{
			Name:    "localhost",
			ChainID: 31337,
			RPCURL:  "http://127.0.0.1:8545",
			Gateway: GatewayConfig{
				URL:                      "http://127.0.0.1:8646",
				ChainID:                  55815,
				DecryptionAddress:        "0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1",
				InputVerificationAddress: "0x7048C39f048125eDa9d678AEbaDfB22F7900a29F",
			},
			Mnemonic:       HardhatMnemonic,
			AccountCount:   10,
			Timeout:        Duration(30 * time.Second),
			ReceiptTimeout: Duration(time.Minute),
		},
		{
			Name:    "sepolia",
			ChainID: 11155111,
			RPCURL:  "https://ethereum-sepolia-rpc.publicnode.com",
			Gateway: GatewayConfig{
				URL:                      "https://relayer.testnet.zama.cloud",
				ChainID:                  55815,
				DecryptionAddress:        "0xb6E160B1ff80D67Bfe90A85eE06Ce0A2613607D1",
				InputVerificationAddress: "0x7048C39f048125eDa9d678AEbaDfB22F7900a29F",
			},
			AccountCount:   2,
			Timeout:        Duration(60 * time.Second),
			ReceiptTimeout: Duration(10 * time.Minute),
		},
	}
}

// createDefaultProfiles 创建默认profiles
func (pm *ProfileManager) createDefaultProfiles() error {
	for _, profile := range DefaultProfiles() {
		if err := pm.SaveProfile(profile); err != nil {
			return err
		}
	}

	pm.currentProfile = "localhost"
	return pm.saveCurrentProfile()
}

// GetProfile 获取指定profile（返回副本，并应用环境变量覆盖）
func (pm *ProfileManager) GetProfile(name string) (*Profile, error) {
	profile, exists := pm.profiles[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	cp := *profile
	cp.ApplyEnv(nil)
	return &cp, nil
}

// GetCurrentProfile 获取当前profile
func (pm *ProfileManager) GetCurrentProfile() (*Profile, error) {
	return pm.GetProfile(pm.currentProfile)
}

// CurrentName 当前 profile 名称
func (pm *ProfileManager) CurrentName() string {
	return pm.currentProfile
}

// ListProfiles 列出所有profiles（按名称排序）
func (pm *ProfileManager) ListProfiles() []string {
	names := make([]string, 0, len(pm.profiles))
	for name := range pm.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveProfile 保存profile
func (pm *ProfileManager) SaveProfile(profile *Profile) error {
	if profile.Name == "" {
		return errors.New("profile name is empty")
	}
	pm.fillDefaults(profile)

	profilePath := filepath.Join(pm.configDir, "profiles", profile.Name+".json")
	if err := os.MkdirAll(filepath.Dir(profilePath), 0700); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	if err := os.WriteFile(profilePath, data, 0600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	pm.profiles[profile.Name] = profile
	return nil
}

// SwitchProfile 切换profile
func (pm *ProfileManager) SwitchProfile(name string) error {
	if _, exists := pm.profiles[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	pm.currentProfile = name
	return pm.saveCurrentProfile()
}

// DeleteProfile 删除profile
func (pm *ProfileManager) DeleteProfile(name string) error {
	if name == pm.currentProfile {
		return ErrDeleteCurrent
	}
	if _, exists := pm.profiles[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	profilePath := filepath.Join(pm.configDir, "profiles", name+".json")
	if err := os.Remove(profilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete profile file: %w", err)
	}

	delete(pm.profiles, name)
	return nil
}
