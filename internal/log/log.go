// Package log 基于 zap 构建 ctoken 的日志记录器
// 控制台输出固定走 stderr（stdout 留给命令结果），文件输出使用 lumberjack 轮转
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 模块名，写入 module 字段
const (
	ModuleCLI      = "cli"
	ModuleToken    = "token"
	ModuleFhevm    = "fhevm"
	ModuleTransfer = "transfer"
	ModuleMock     = "mock"
)

// New 根据配置创建日志记录器
func New(opts *Options) (*zap.Logger, error) {
	return newWithConsole(opts, os.Stderr)
}

// newWithConsole 允许测试替换控制台输出
func newWithConsole(opts *Options, console io.Writer) (*zap.Logger, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.withDefaults()

	level, err := opts.zapLevel()
	if err != nil {
		return nil, err
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	var cores []zapcore.Core

	if opts.ToConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.AddSync(console), atomicLevel))
	}

	if opts.FilePath != "" {
		writer, err := fileWriter(opts)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(fileEncoder(), writer, atomicLevel))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	zapOptions := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.EnableCaller {
		zapOptions = append(zapOptions, zap.AddCaller())
	}

	return zap.New(zapcore.NewTee(cores...), zapOptions...), nil
}

// fileWriter 创建带轮转的文件写入器
func fileWriter(opts *Options) (zapcore.WriteSyncer, error) {
	absPath, err := filepath.Abs(opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("resolve log path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   absPath,
		MaxSize:    opts.MaxSize, // megabytes
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge, // days
		Compress:   opts.Compress,
	}), nil
}

// Module 返回带 module 字段的子日志器；logger 为 nil 时返回空日志器
func Module(logger *zap.Logger, module string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("module", module))
}
