// Package http serves an fhEVM gateway over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/fhevm"
	"github.com/weisyn/ctoken/internal/api/http/handlers"
	"github.com/weisyn/ctoken/internal/api/http/middleware"
)

// MetricsPath 指标路由
const MetricsPath = "/metrics"

// Server 网关HTTP服务器
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	registry   *prometheus.Registry
	logger     *zap.Logger
	done       chan error
}

func init() {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}

// Option 服务器选项
type Option func(*serverOptions)

type serverOptions struct {
	readLimit  int
	writeLimit int
}

// WithRateLimit 按客户端IP限制每秒请求数（GET 与 POST 分别计数），0 表示不限
func WithRateLimit(readPerSecond, writePerSecond int) Option {
	return func(o *serverOptions) {
		o.readLimit = readPerSecond
		o.writeLimit = writePerSecond
	}
}

// NewServer 创建网关服务器
func NewServer(cop fhevm.Coprocessor, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.NewMetrics(registry).Middleware(),
	)
	if o.readLimit > 0 || o.writeLimit > 0 {
		router.Use(middleware.NewRateLimit(logger, o.readLimit, o.writeLimit).Middleware())
	}
	handlers.NewGatewayHandler(cop, logger).RegisterRoutes(router)
	router.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &Server{
		router:   router,
		registry: registry,
		logger:   logger,
	}
}

// Handler 返回路由处理器（用于 httptest）
func (s *Server) Handler() http.Handler { return s.router }

// Registry 指标注册表
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Start 监听地址并在后台提供服务；返回实际监听地址
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.done = make(chan error, 1)

	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	bound := ln.Addr().String()
	s.logger.Info("网关服务器已启动", zap.String("addr", bound))
	return bound, nil
}

// Wait 阻塞直到服务器退出
func (s *Server) Wait() error {
	if s.done == nil {
		return nil
	}
	return <-s.done
}

// Stop 优雅关闭，最多等待 5 秒
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(stopCtx); err != nil {
		s.logger.Error("网关服务器关闭出错", zap.Error(err))
		return err
	}
	s.logger.Info("网关服务器已关闭")
	return nil
}
