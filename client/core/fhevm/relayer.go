package fhevm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GatewayError 网关返回的错误响应
type GatewayError struct {
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s (http %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap 映射到包内哨兵错误，便于 errors.Is 判断
func (e *GatewayError) Unwrap() error { return sentinelFor(e.Code) }

// RelayerClient 网关 HTTP 客户端
type RelayerClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Coprocessor = (*RelayerClient)(nil)
var _ HealthChecker = (*RelayerClient)(nil)

// NewRelayerClient 创建网关客户端
func NewRelayerClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RelayerClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// BaseURL 网关地址
func (c *RelayerClient) BaseURL() string { return c.baseURL }

// Health 健康检查
func (c *RelayerClient) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.do(ctx, http.MethodGet, RouteHealth, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// EncryptInput 请求网关加密输入并生成证明
func (c *RelayerClient) EncryptInput(ctx context.Context, req *EncryptInputRequest) (*EncryptInputResponse, error) {
	var resp EncryptInputResponse
	if err := c.do(ctx, http.MethodPost, RouteEncrypt, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserDecrypt 请求网关执行用户解密
func (c *RelayerClient) UserDecrypt(ctx context.Context, req *UserDecryptRequest) (*UserDecryptResponse, error) {
	var resp UserDecryptResponse
	if err := c.do(ctx, http.MethodPost, RouteUserDecrypt, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do 统一的 HTTP 调用
func (c *RelayerClient) do(ctx context.Context, method, route string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reader)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrGateway, method, route, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("关闭响应体失败", zap.Error(cerr))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("网关请求",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("route", route),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gerr := &GatewayError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var eb ErrorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error.Code != "" {
			gerr.Code = eb.Error.Code
			gerr.Message = eb.Error.Message
		}
		return gerr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
