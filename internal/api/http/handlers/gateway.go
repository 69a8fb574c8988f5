// Package handlers provides the fhEVM gateway HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/weisyn/ctoken/client/core/fhevm"
)

// GatewayHandler 网关路由处理器，委托给任意 Coprocessor 实现
type GatewayHandler struct {
	cop    fhevm.Coprocessor
	logger *zap.Logger
}

// NewGatewayHandler 创建网关处理器
func NewGatewayHandler(cop fhevm.Coprocessor, logger *zap.Logger) *GatewayHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayHandler{cop: cop, logger: logger}
}

// RegisterRoutes 注册网关路由
func (h *GatewayHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET(fhevm.RouteHealth, h.Health)
	r.POST(fhevm.RouteEncrypt, h.EncryptInput)
	r.POST(fhevm.RouteUserDecrypt, h.UserDecrypt)
}

// Health GET /v1/health
func (h *GatewayHandler) Health(c *gin.Context) {
	hc, ok := h.cop.(fhevm.HealthChecker)
	if !ok {
		c.JSON(http.StatusOK, fhevm.HealthStatus{Status: "ok"})
		return
	}
	status, err := hc.Health(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, fhevm.CodeInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}

// EncryptInput POST /v1/inputs/encrypt
func (h *GatewayHandler) EncryptInput(c *gin.Context) {
	var req fhevm.EncryptInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fhevm.CodeInvalidRequest, err.Error())
		return
	}
	resp, err := h.cop.EncryptInput(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UserDecrypt POST /v1/decrypt/user
func (h *GatewayHandler) UserDecrypt(c *gin.Context) {
	var req fhevm.UserDecryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fhevm.CodeInvalidRequest, err.Error())
		return
	}
	resp, err := h.cop.UserDecrypt(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GatewayHandler) fail(c *gin.Context, err error) {
	code := fhevm.ErrorCode(err)
	if code == fhevm.CodeInternal {
		h.logger.Error("网关处理失败", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	_ = c.Error(err)
	writeError(c, statusFor(code), code, err.Error())
}

// statusFor 错误码对应的 HTTP 状态
func statusFor(code string) int {
	switch code {
	case fhevm.CodeInvalidRequest, fhevm.CodeInvalidProof:
		return http.StatusBadRequest
	case fhevm.CodeInvalidSignature:
		return http.StatusUnauthorized
	case fhevm.CodeUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	var body fhevm.ErrorBody
	body.Error.Code = code
	body.Error.Message = message
	c.AbortWithStatusJSON(status, body)
}
