package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/bags"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/db"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/middleware"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/services"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

// 与上游 create-token-info 的图片上限一致
const maxImageBytes = 15 << 20

// LaunchFlow 由 services.Launcher 实现
type LaunchFlow interface {
	Start(ctx context.Context, info bags.TokenInfo) (*models.LaunchSession, error)
	Session(ctx context.Context, sessionID string) (*models.LaunchSession, error)
	UploadMetadata(ctx context.Context, sessionID string, info bags.TokenInfo) (*models.LaunchSession, error)
	EnsureConfig(ctx context.Context, sessionID string) (*models.LaunchSession, error)
	Launch(ctx context.Context, sessionID string) (*models.LaunchSession, error)
}

type MintRevoker interface {
	RevokeMintAuthority(ctx context.Context, mint string) (solana.Signature, error)
}

// Relay 由 bags.Client 实现
type Relay interface {
	Forward(ctx context.Context, method, path, contentType string, body io.Reader) (int, string, []byte, error)
}

type SubmissionReader interface {
	GetSubmission(ctx context.Context, signature string) (*models.Submission, error)
	SessionSubmissions(ctx context.Context, sessionID string) ([]models.Submission, error)
}

type PriceSeries interface {
	Series() []models.PricePoint
}

// Deps 路由依赖，为 nil 的部分不注册对应接口
type Deps struct {
	Launch      LaunchFlow
	Revoker     MintRevoker
	Relay       Relay
	Submissions SubmissionReader
	Prices      PriceSeries
	Health      *Health
	Metrics     http.Handler
	Wallet      solana.PublicKey
	Cluster     string
}

type handlers struct {
	Deps
	log *utils.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := &handlers{Deps: d, log: utils.DefaultLogger}

	if d.Health != nil {
		r.GET("/healthz", d.Health.Healthz)
		r.GET("/readyz", d.Health.Readyz)
	}
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	if d.Relay != nil {
		r.Any("/api/bags-proxy", h.relay)
	}
	if d.Launch != nil {
		g := r.Group("/launch")
		g.POST("", h.startLaunch)
		g.GET("/:id", h.getSession)
		g.POST("/:id/metadata", h.uploadMetadata)
		g.POST("/:id/config", h.ensureConfig)
		g.POST("/:id/submit", h.submitLaunch)
	}
	if d.Submissions != nil {
		r.GET("/submissions/:signature", h.getSubmission)
		r.GET("/launch/:id/submissions", h.sessionSubmissions)
	}
	if d.Prices != nil {
		r.GET("/price", h.getPrice)
	}
	r.GET("/wallet/address", h.walletAddress)

	if d.Revoker != nil {
		owner := r.Group("/owner", middleware.LocalOnly())
		owner.POST("/revoke-mint", h.revokeMint)
	}
}

// statusFor 错误 -> HTTP 状态码
func statusFor(err error) int {
	var ue *bags.UpstreamError
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBusy),
		errors.Is(err, services.ErrLaunchPending),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrAlreadyRevoked):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotMintAuthority):
		return http.StatusForbidden
	case errors.Is(err, services.ErrConfirmation):
		return http.StatusGatewayTimeout
	case errors.As(err, &ue),
		errors.Is(err, bags.ErrUpstream),
		errors.Is(err, utils.ErrDecode),
		errors.Is(err, services.ErrMaterialize),
		errors.Is(err, services.ErrMissingTx),
		errors.Is(err, services.ErrSubmission):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "status": services.Describe(err)})
}

// writeSession 步骤失败时流程已经保存，连同错误一起返回当前状态
func (h *handlers) writeSession(c *gin.Context, sess *models.LaunchSession, err error) {
	if err != nil && sess == nil {
		writeError(c, err)
		return
	}
	view := services.SessionView(sess, h.Cluster)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "session": view})
		return
	}
	c.JSON(http.StatusOK, view)
}

// relay 转发到 Bags API，前端不持有 api key
func (h *handlers) relay(c *gin.Context) {
	path := c.DefaultQuery("path", "/ping")
	var body io.Reader
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		body = c.Request.Body
	}
	status, contentType, raw, err := h.Relay.Forward(c.Request.Context(), c.Request.Method, path, c.GetHeader("Content-Type"), body)
	if err != nil {
		h.log.Error("代理请求失败 %s %s: %v", c.Request.Method, path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(status, contentType, raw)
}

// tokenInfoFromForm 读取 multipart 表单：name symbol description telegram twitter website image
func tokenInfoFromForm(c *gin.Context) (bags.TokenInfo, error) {
	info := bags.TokenInfo{
		Name:        c.PostForm("name"),
		Symbol:      c.PostForm("symbol"),
		Description: c.PostForm("description"),
		Telegram:    c.PostForm("telegram"),
		Twitter:     c.PostForm("twitter"),
		Website:     c.PostForm("website"),
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return info, fmt.Errorf("%w: image is required", services.ErrInvalidRequest)
	}
	if fh.Size > maxImageBytes {
		return info, fmt.Errorf("%w: image larger than 15MB", services.ErrInvalidRequest)
	}
	f, err := fh.Open()
	if err != nil {
		return info, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
	}
	defer f.Close()
	img, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return info, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err)
	}
	info.Image = img
	info.ImageName = fh.Filename
	return info, nil
}

func (h *handlers) startLaunch(c *gin.Context) {
	info, err := tokenInfoFromForm(c)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.Launch.Start(c.Request.Context(), info)
	h.writeSession(c, sess, err)
}

func (h *handlers) getSession(c *gin.Context) {
	sess, err := h.Launch.Session(c.Request.Context(), c.Param("id"))
	h.writeSession(c, sess, err)
}

// uploadMetadata 上传失败后重试
func (h *handlers) uploadMetadata(c *gin.Context) {
	info, err := tokenInfoFromForm(c)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.Launch.UploadMetadata(c.Request.Context(), c.Param("id"), info)
	h.writeSession(c, sess, err)
}

func (h *handlers) ensureConfig(c *gin.Context) {
	sess, err := h.Launch.EnsureConfig(c.Request.Context(), c.Param("id"))
	h.writeSession(c, sess, err)
}

func (h *handlers) submitLaunch(c *gin.Context) {
	sess, err := h.Launch.Launch(c.Request.Context(), c.Param("id"))
	h.writeSession(c, sess, err)
}

func (h *handlers) getSubmission(c *gin.Context) {
	sub, err := h.Submissions.GetSubmission(c.Request.Context(), c.Param("signature"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "交易未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, h.submissionView(sub))
}

// sessionSubmissions 某个流程的全部交易（config、launch）
func (h *handlers) sessionSubmissions(c *gin.Context) {
	subs, err := h.Submissions.SessionSubmissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	out := make([]models.SubmissionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, h.submissionView(&subs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"submissions": out})
}

func (h *handlers) submissionView(sub *models.Submission) models.SubmissionResponse {
	return models.SubmissionResponse{
		Signature:   sub.Signature,
		SessionID:   sub.SessionID,
		Purpose:     sub.Purpose,
		Status:      sub.Status,
		Slot:        sub.Slot,
		Error:       sub.Error,
		ExplorerURL: services.ExplorerURL(sub.Signature, h.Cluster),
		CreatedAt:   sub.CreatedAt,
	}
}

func (h *handlers) getPrice(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"points": h.Prices.Series()})
}

// walletAddress 返回服务端签名钱包地址
func (h *handlers) walletAddress(c *gin.Context) {
	if h.Wallet.IsZero() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签名账户未初始化"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": h.Wallet.String()})
}

func (h *handlers) revokeMint(c *gin.Context) {
	var req models.RevokeRequest
	// body 可以为空，使用配置的 mint
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	sig, err := h.Revoker.RevokeMintAuthority(c.Request.Context(), req.Mint)
	if err != nil {
		h.log.Warn("撤销 mint 权限失败: %v", err)
		resp := gin.H{"error": err.Error(), "status": services.Describe(err)}
		if !sig.IsZero() {
			resp["signature"] = sig.String()
		}
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, models.BroadcastTxResponse{
		Signature:   sig.String(),
		ExplorerUrl: services.ExplorerURL(sig.String(), h.Cluster),
	})
}
