// Package deployments reads and writes hardhat-deploy style deployment records.
//
// 目录结构:
//
//	<dir>/<network>/.chainId
//	<dir>/<network>/<ContractName>.json   {"address": "0x...", "abi": [...], ...}
package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotFound 部署记录不存在
	ErrNotFound = errors.New("deployment not found")
	// ErrInvalidAddress 部署记录中的地址无效
	ErrInvalidAddress = errors.New("invalid deployment address")
	// ErrInvalidName 合约名不能为空、含路径分隔符或以 "." 开头
	ErrInvalidName = errors.New("invalid deployment name")
)

// Deployment 单个合约的部署记录
type Deployment struct {
	Name            string          `json:"-"`
	Address         common.Address  `json:"address"`
	ABI             json.RawMessage `json:"abi,omitempty"`
	TransactionHash *common.Hash    `json:"transactionHash,omitempty"`
	BlockNumber     uint64          `json:"blockNumber,omitempty"`
}

// Registry 某个网络的部署记录
type Registry struct {
	dir     string
	network string
}

// NewRegistry 创建部署记录访问器
func NewRegistry(dir, network string) *Registry {
	return &Registry{dir: dir, network: network}
}

// Network 网络名
func (r *Registry) Network() string { return r.network }

// networkDir 网络目录
func (r *Registry) networkDir() string {
	return filepath.Join(r.dir, r.network)
}

// recordPath 合约名对应的记录文件，名称不得离开网络目录
func (r *Registry) recordPath(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(r.networkDir(), name+".json"), nil
}

// Get 读取合约部署记录
func (r *Registry) Get(name string) (*Deployment, error) {
	path, err := r.recordPath(name)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G304: 路径来自配置的部署目录
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s on network %s (%s)", ErrNotFound, name, r.network, path)
		}
		return nil, fmt.Errorf("read deployment %s: %w", name, err)
	}

	var raw struct {
		Address         string          `json:"address"`
		ABI             json.RawMessage `json:"abi"`
		TransactionHash string          `json:"transactionHash"`
		Receipt         *struct {
			BlockNumber uint64 `json:"blockNumber"`
		} `json:"receipt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse deployment %s: %w", name, err)
	}
	if !common.IsHexAddress(raw.Address) {
		return nil, fmt.Errorf("%w: %q in %s", ErrInvalidAddress, raw.Address, path)
	}

	d := &Deployment{
		Name:    name,
		Address: common.HexToAddress(raw.Address),
		ABI:     raw.ABI,
	}
	if raw.TransactionHash != "" {
		h := common.HexToHash(raw.TransactionHash)
		d.TransactionHash = &h
	}
	if raw.Receipt != nil {
		d.BlockNumber = raw.Receipt.BlockNumber
	}
	return d, nil
}

// Save 写入合约部署记录
func (r *Registry) Save(d *Deployment) error {
	path, err := r.recordPath(d.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.networkDir(), 0750); err != nil {
		return fmt.Errorf("create deployments dir: %w", err)
	}

	out := map[string]interface{}{
		"address": d.Address.Hex(),
	}
	if len(d.ABI) > 0 {
		out["abi"] = d.ABI
	}
	if d.TransactionHash != nil {
		out["transactionHash"] = d.TransactionHash.Hex()
	}
	if d.BlockNumber > 0 {
		out["receipt"] = map[string]uint64{"blockNumber": d.BlockNumber}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	return nil
}

// List 列出网络下的全部合约名
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.networkDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read deployments dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// ChainID 读取 .chainId 文件；文件不存在返回 0
func (r *Registry) ChainID() (uint64, error) {
	//nolint:gosec // G304: 路径来自配置的部署目录
	data, err := os.ReadFile(filepath.Join(r.networkDir(), ".chainId"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read chain id: %w", err)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chain id: %w", err)
	}
	return id, nil
}

// SetChainID 写入 .chainId 文件
func (r *Registry) SetChainID(id uint64) error {
	if err := os.MkdirAll(r.networkDir(), 0750); err != nil {
		return fmt.Errorf("create deployments dir: %w", err)
	}
	return os.WriteFile(filepath.Join(r.networkDir(), ".chainId"), []byte(strconv.FormatUint(id, 10)), 0600)
}

// Resolve 地址覆盖优先，否则读取部署记录
func (r *Registry) Resolve(name, override string) (common.Address, error) {
	if override != "" {
		if !common.IsHexAddress(override) {
			return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, override)
		}
		return common.HexToAddress(override), nil
	}
	d, err := r.Get(name)
	if err != nil {
		return common.Address{}, err
	}
	return d.Address, nil
}
