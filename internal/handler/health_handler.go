package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadyCheck 就绪检查项（数据库、上游 API）
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Health 存活/就绪探针
type Health struct {
	Delay  time.Duration // 启动后多久才报告就绪
	Checks []ReadyCheck

	started time.Time
	now     func() time.Time
}

func NewHealth(delay time.Duration, checks ...ReadyCheck) *Health {
	return &Health{Delay: delay, Checks: checks, started: time.Now(), now: time.Now}
}

// Healthz 存活探针（liveness），总是返回 200
func (h *Health) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// Readyz 就绪探针（readiness）
// 启动等待 Delay 之后依次执行检查项
func (h *Health) Readyz(c *gin.Context) {
	elapsed := h.now().Sub(h.started)
	if elapsed < h.Delay {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"type":      "readiness",
			"message":   "服务启动中，等待就绪",
			"elapsed":   elapsed.String(),
			"remaining": (h.Delay - elapsed).String(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	for _, rc := range h.Checks {
		if err := rc.Check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"type":    "readiness",
				"message": rc.Name + " 检查失败",
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"type":    "readiness",
		"message": "服务已就绪",
		"uptime":  elapsed.String(),
	})
}
