package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

// PriceFeed 定时拉取代币价格，只保留最近 Window 个点
type PriceFeed struct {
	Endpoint string
	Mint     string
	Window   int
	HTTP     *http.Client
	Metrics  *Metrics
	Log      *utils.Logger

	mu     sync.RWMutex
	points []models.PricePoint
	now    func() time.Time
}

func NewPriceFeed(endpoint, mint string, window int) *PriceFeed {
	return &PriceFeed{
		Endpoint: endpoint,
		Mint:     mint,
		Window:   window,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Log:      utils.DefaultLogger,
		now:      time.Now,
	}
}

// Poll 拉取一次价格并追加
func (f *PriceFeed) Poll(ctx context.Context) error {
	if f.Mint == "" {
		return fmt.Errorf("%w: token mint not configured", ErrInvalidRequest)
	}
	u := f.Endpoint + "?ids=" + url.QueryEscape(f.Mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price endpoint returned %d", resp.StatusCode)
	}
	price := gjson.GetBytes(body, "data."+gjson.Escape(f.Mint)+".price")
	if price.Type != gjson.Number {
		return fmt.Errorf("no price for %s", f.Mint)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, models.PricePoint{Time: f.now(), Price: price.Num})
	if f.Window > 0 && len(f.points) > f.Window {
		f.points = append([]models.PricePoint(nil), f.points[len(f.points)-f.Window:]...)
	}
	return nil
}

// Series 返回副本
func (f *PriceFeed) Series() []models.PricePoint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.PricePoint, len(f.points))
	copy(out, f.points)
	return out
}

// Schedule 注册到 cron，失败只记录日志
func (f *PriceFeed) Schedule(ctx context.Context, c *cron.Cron, expr string) (cron.EntryID, error) {
	return c.AddFunc(expr, func() {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := f.Poll(pctx); err != nil {
			f.Metrics.priceFailure()
			f.Log.Warn("拉取价格失败: %v", err)
		}
	})
}
