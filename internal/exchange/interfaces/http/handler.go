// Package http 提供引擎内存状态的内部查询接口，仅供网关等内部服务调用。
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/exchange/internal/exchange/application"
)

// EngineHandler HTTP 处理器
type EngineHandler struct {
	query  *application.QueryService
	engine *application.TradingEngine
}

// NewEngineHandler 创建 HTTP 处理器
func NewEngineHandler(query *application.QueryService, engine *application.TradingEngine) *EngineHandler {
	return &EngineHandler{query: query, engine: engine}
}

// RegisterRoutes 注册路由
func (h *EngineHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/internal")
	{
		api.GET("/users/:userId/assets", h.GetAssets)
		api.GET("/users/:userId/orders", h.GetOpenOrders)
		api.GET("/users/:userId/orders/:orderId", h.GetOrder)
		api.GET("/status", h.GetStatus)
	}
}

// GetAssets 查询用户全部余额
func (h *EngineHandler) GetAssets(c *gin.Context) {
	userID, ok := paramInt64(c, "userId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.query.GetAssets(userID))
}

// GetOpenOrders 查询用户活跃订单
func (h *EngineHandler) GetOpenOrders(c *gin.Context) {
	userID, ok := paramInt64(c, "userId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.query.GetOpenOrders(userID))
}

// GetOrder 按 id 查询单个活跃订单
func (h *EngineHandler) GetOrder(c *gin.Context) {
	userID, ok := paramInt64(c, "userId")
	if !ok {
		return
	}
	orderID, ok := paramInt64(c, "orderId")
	if !ok {
		return
	}
	order, found := h.query.GetOrder(userID, orderID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetStatus 引擎水位与健康状态
func (h *EngineHandler) GetStatus(c *gin.Context) {
	status := http.StatusOK
	if h.engine.Fatal() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"sequenceId": h.engine.LastSequenceID(),
		"fatal":      h.engine.Fatal(),
	})
}

func paramInt64(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return value, true
}
