package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"hotelops/internal/models"
	"hotelops/internal/services"

	"github.com/gin-gonic/gin"
)

// AutomationHandler 暴露自动化引擎的运行接口。
// 配置本身的增删改由外部管理端负责，这里只读配置并触发执行。
type AutomationHandler struct {
	service *services.AutomationService
}

func NewAutomationHandler(service *services.AutomationService) *AutomationHandler {
	return &AutomationHandler{service: service}
}

// ListAutomations 获取自动化列表
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	automations, err := h.service.ListAutomations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list automations", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, automations)
}

// GetDue reports whether the automation would fire right now. Preview only.
func (h *AutomationHandler) GetDue(c *gin.Context) {
	automation, ok := h.loadAutomation(c)
	if !ok {
		return
	}
	due, err := h.service.DueNow(automation)
	resp := gin.H{"automation_id": automation.ID, "due": due}
	if err != nil {
		resp["due"] = false
		resp["config_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// RunAutomation 立即执行一个自动化（绕过到期判定）
func (h *AutomationHandler) RunAutomation(c *gin.Context) {
	automation, ok := h.loadAutomation(c)
	if !ok {
		return
	}
	outcome := h.service.RunNow(c.Request.Context(), automation, models.TriggerAPI)
	c.JSON(http.StatusOK, outcome)
}

// RunCycle 立即跑一轮全量巡检
func (h *AutomationHandler) RunCycle(c *gin.Context) {
	report := h.service.RunCycle(c.Request.Context(), models.TriggerAPI)
	c.JSON(http.StatusOK, report)
}

// ListRuns 查询运行历史
func (h *AutomationHandler) ListRuns(c *gin.Context) {
	automation, ok := h.loadAutomation(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit", Message: err.Error()})
			return
		}
		limit = n
	}
	runs, err := h.service.ListRuns(c.Request.Context(), automation.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list runs", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *AutomationHandler) loadAutomation(c *gin.Context) (*models.Automation, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return nil, false
	}
	automation, err := h.service.GetAutomation(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrAutomationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Automation not found", Message: err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load automation", Message: err.Error()})
		}
		return nil, false
	}
	return automation, true
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.ListAutomations)
		auto.GET(":id/due", handler.GetDue)
		auto.GET(":id/runs", handler.ListRuns)
		auto.POST(":id/run", handler.RunAutomation)
		auto.POST("run-cycle", handler.RunCycle)
	}
}
