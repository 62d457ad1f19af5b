package bags

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://public-api-v2.bags.fm/api/v1"

var ErrUpstream = errors.New("upstream request failed")

// UpstreamError 上游返回非 2xx 或 success=false
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Envelope 上游响应。非 JSON 响应体会被包装成 {"raw": ..., "status": ...}
type Envelope struct {
	Status int
	Body   []byte
}

func (e Envelope) Root() gjson.Result    { return gjson.ParseBytes(e.Body) }
func (e Envelope) Payload() gjson.Result { return Unwrap(e.Root()) }

// TokenInfo create-token-info 的表单字段
type TokenInfo struct {
	Name        string `validate:"required,max=32"`
	Symbol      string `validate:"required,max=10"`
	Description string `validate:"max=1000"`
	Telegram    string `validate:"omitempty,max=255"`
	Twitter     string `validate:"omitempty,max=255"`
	Website     string `validate:"omitempty,url"`
	ImageName   string `validate:"required"`
	Image       []byte `validate:"required,min=1,max=15728640"`
}

// LaunchParams create-launch-transaction 请求体
type LaunchParams struct {
	IPFS               string `json:"ipfs"`
	TokenMint          string `json:"tokenMint"`
	Wallet             string `json:"wallet"`
	InitialBuyLamports uint64 `json:"initialBuyLamports"`
	ConfigKey          string `json:"configKey,omitempty"`
}

// Client Bags 公共 API，x-api-key 只在服务端持有
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}

// Forward 原样转发一个请求，返回上游状态码、Content-Type 和响应体
func (c *Client) Forward(ctx context.Context, method, path, contentType string, body io.Reader) (int, string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return 0, "", nil, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", nil, err
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), raw, nil
}

func (c *Client) call(ctx context.Context, op, method, path, contentType string, body io.Reader) (Envelope, error) {
	status, _, raw, err := c.Forward(ctx, method, path, contentType, body)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
	}
	env := Envelope{Status: status, Body: parseJSONSafe(raw, status)}
	if status < 200 || status >= 300 {
		return env, &UpstreamError{Op: op, Status: status, Body: string(raw)}
	}
	if ok := env.Root().Get("success"); ok.Exists() && ok.Type == gjson.False {
		return env, &UpstreamError{Op: op, Status: status, Body: string(raw)}
	}
	return env, nil
}

func (c *Client) Ping(ctx context.Context) (Envelope, error) {
	return c.call(ctx, "ping", http.MethodGet, "/ping", "", nil)
}

// CreateTokenInfo 上传图片和元数据，响应里带 tokenMint 和 tokenMetadata
func (c *Client) CreateTokenInfo(ctx context.Context, info TokenInfo) (Envelope, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range []struct{ k, v string }{
		{"name", info.Name},
		{"symbol", info.Symbol},
		{"description", info.Description},
		{"telegram", info.Telegram},
		{"twitter", info.Twitter},
		{"website", info.Website},
	} {
		// 可选字段为空时不发送
		if f.v == "" {
			continue
		}
		if err := w.WriteField(f.k, f.v); err != nil {
			return Envelope{}, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, info.ImageName))
	h.Set("Content-Type", http.DetectContentType(info.Image))
	part, err := w.CreatePart(h)
	if err != nil {
		return Envelope{}, err
	}
	if _, err := part.Write(info.Image); err != nil {
		return Envelope{}, err
	}
	if err := w.Close(); err != nil {
		return Envelope{}, err
	}
	return c.call(ctx, "create-token-info", http.MethodPost, "/token-launch/create-token-info", w.FormDataContentType(), &buf)
}

// CreateConfig 为发射钱包申请配置，可能附带一笔需要签名的交易
func (c *Client) CreateConfig(ctx context.Context, launchWallet string) (Envelope, error) {
	body, err := json.Marshal(map[string]string{"launchWallet": launchWallet})
	if err != nil {
		return Envelope{}, err
	}
	return c.call(ctx, "create-config", http.MethodPost, "/token-launch/create-config", "application/json", bytes.NewReader(body))
}

func (c *Client) CreateLaunchTransaction(ctx context.Context, p LaunchParams) (Envelope, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, err
	}
	return c.call(ctx, "create-launch-transaction", http.MethodPost, "/token-launch/create-launch-transaction", "application/json", bytes.NewReader(body))
}

func parseJSONSafe(raw []byte, status int) []byte {
	if len(bytes.TrimSpace(raw)) > 0 && gjson.ValidBytes(raw) {
		return raw
	}
	wrapped, _ := json.Marshal(map[string]interface{}{"raw": string(raw), "status": status})
	return wrapped
}
