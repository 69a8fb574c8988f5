// Package version 构建版本信息，通过 ldflags 注入:
//
//	go build -ldflags "-X github.com/weisyn/ctoken/internal/version.Version=v0.2.0"
package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	Version   = "v0.1.0-dev"
	Commit    = "unknown"
	BuildTime = "unknown" // RFC3339
)

// Info 构建信息
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get 当前构建信息
func Get() *Info {
	return &Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String 单行展示，如 "ctoken v0.1.0 (abc1234, 2025-01-02 15:04:05 UTC)"
func (i *Info) String() string {
	s := "ctoken " + i.Version
	if i.Commit == "unknown" && i.BuildTime == "unknown" {
		return s
	}
	built := i.BuildTime
	if t, err := time.Parse(time.RFC3339, i.BuildTime); err == nil {
		built = t.UTC().Format("2006-01-02 15:04:05 MST")
	}
	return fmt.Sprintf("%s (%s, %s)", s, i.Commit, built)
}
