package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// 日志配置默认值
const (
	defaultLevel      = "info"
	defaultMaxSize    = 20 // MB，CLI 日志量小，不需要大文件
	defaultMaxBackups = 5
	defaultMaxAge     = 14 // 天
	defaultCompress   = true
)

// Options 日志配置选项
type Options struct {
	Level     string `json:"level"`      // 日志级别 (debug, info, warn, error)
	ToConsole bool   `json:"to_console"` // 是否输出到控制台(stderr)
	FilePath  string `json:"file_path"`  // 日志文件路径，空表示不写文件

	// 轮转配置
	MaxSize    int  `json:"max_size"`    // 单个日志文件最大大小(MB)
	MaxBackups int  `json:"max_backups"` // 最大备份文件数
	MaxAge     int  `json:"max_age"`     // 日志文件最大保留天数
	Compress   bool `json:"compress"`    // 是否压缩历史日志文件

	EnableCaller bool `json:"enable_caller"` // 是否记录调用位置
}

// DefaultOptions 返回默认配置：仅控制台，info 级别
func DefaultOptions() *Options {
	return &Options{
		Level:      defaultLevel,
		ToConsole:  true,
		MaxSize:    defaultMaxSize,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAge,
		Compress:   defaultCompress,
	}
}

// withDefaults 填充未设置的字段
func (o *Options) withDefaults() *Options {
	out := *o
	if out.Level == "" {
		out.Level = defaultLevel
	}
	if out.MaxSize <= 0 {
		out.MaxSize = defaultMaxSize
	}
	if out.MaxBackups <= 0 {
		out.MaxBackups = defaultMaxBackups
	}
	if out.MaxAge <= 0 {
		out.MaxAge = defaultMaxAge
	}
	return &out
}

// zapLevel 将字符串级别解析为 zapcore.Level
func (o *Options) zapLevel() (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(o.Level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", o.Level)
	}
}

// consoleEncoder 控制台编码器（人类可读）
func consoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "C",
		MessageKey:       "M",
		StacktraceKey:    "S",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// fileEncoder 文件编码器（JSON，便于检索）
func fileEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	return zapcore.NewJSONEncoder(cfg)
}
