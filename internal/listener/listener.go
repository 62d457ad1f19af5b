package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/services"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

// getSignatureStatuses 单次最多 256 个签名
const maxStatusBatch = 256

type StatusSource interface {
	SignatureStatuses(ctx context.Context, sigs ...solana.Signature) ([]services.SignatureStatus, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

type Store interface {
	PendingSubmissions(ctx context.Context, limit int) ([]models.Submission, error)
	SettleSubmission(ctx context.Context, signature, status string, slot uint64, errMsg string) error
	GetSession(ctx context.Context, sessionID string) (*models.LaunchSession, error)
	SaveSession(ctx context.Context, s *models.LaunchSession) error
}

// Reconciler 定期处理 journal 中仍为 pending 的签名（进程重启、确认超时后留下的）。
// 只查询状态，不会重新广播。
type Reconciler struct {
	source   StatusSource
	store    Store
	interval time.Duration
	cluster  string
	log      *utils.Logger
}

func New(source StatusSource, store Store, interval time.Duration, cluster string) *Reconciler {
	return &Reconciler{
		source:   source,
		store:    store,
		interval: interval,
		cluster:  cluster,
		log:      utils.DefaultLogger,
	}
}

// Run 启动时先跑一次，之后按 interval 执行，ctx 取消后返回
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info("对账任务启动，间隔 %s", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if n, err := r.ReconcileOnce(ctx); err != nil {
			r.log.Warn("对账失败: %v", err)
		} else if n > 0 {
			r.log.Info("对账完成，更新 %d 笔交易", n)
		}
		select {
		case <-ctx.Done():
			r.log.Info("对账任务停止")
			return nil
		case <-ticker.C:
		}
	}
}

// ReconcileOnce 返回状态发生变化的记录数
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	pending, err := r.store.PendingSubmissions(ctx, maxStatusBatch)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	subs := make([]models.Submission, 0, len(pending))
	sigs := make([]solana.Signature, 0, len(pending))
	settled := 0
	for _, sub := range pending {
		sig, err := solana.SignatureFromBase58(sub.Signature)
		if err != nil {
			if serr := r.store.SettleSubmission(ctx, sub.Signature, models.TxStatusFailed, 0, "invalid signature: "+err.Error()); serr == nil {
				settled++
			}
			continue
		}
		subs = append(subs, sub)
		sigs = append(sigs, sig)
	}

	statuses, err := r.source.SignatureStatuses(ctx, sigs...)
	if err != nil {
		return settled, fmt.Errorf("查询交易状态失败: %w", err)
	}

	var height uint64
	heightKnown := false
	for i, sub := range subs {
		st := statuses[i]
		status, errMsg := "", ""
		switch {
		case st.Found && st.Err != nil:
			status, errMsg = models.TxStatusFailed, fmt.Sprintf("%v", st.Err)
		case st.Found && services.Reached(st.ConfirmationStatus, rpc.CommitmentConfirmed):
			status = models.TxStatusConfirmed
		case !st.Found && sub.LastValidBlockHeight > 0:
			if !heightKnown {
				h, err := r.source.BlockHeight(ctx)
				if err != nil {
					r.log.Warn("获取区块高度失败: %v", err)
					continue
				}
				height, heightKnown = h, true
			}
			if height > sub.LastValidBlockHeight {
				status, errMsg = models.TxStatusExpired, "blockhash expired before the transaction landed"
			}
		}
		if status == "" {
			continue
		}

		if err := r.store.SettleSubmission(ctx, sub.Signature, status, st.Slot, errMsg); err != nil {
			r.log.Error("更新交易状态失败 %s: %v", sub.Signature, err)
			continue
		}
		settled++
		r.log.Info("交易 %s (%s) -> %s", sub.Signature, sub.Purpose, status)

		if status == models.TxStatusConfirmed && sub.Purpose == models.PurposeLaunch && sub.SessionID != "" {
			r.markLaunched(ctx, sub)
		}
	}
	return settled, nil
}

func (r *Reconciler) markLaunched(ctx context.Context, sub models.Submission) {
	sess, err := r.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		r.log.Warn("找不到交易 %s 对应的流程 %s: %v", sub.Signature, sub.SessionID, err)
		return
	}
	if sess.State == models.StateLaunched {
		return
	}
	sess.State = models.StateLaunched
	sess.LaunchSignature = sub.Signature
	sess.LastError = ""
	sess.Status = "Launched! View: " + services.ExplorerURL(sub.Signature, r.cluster)
	if err := r.store.SaveSession(ctx, sess); err != nil {
		r.log.Error("保存流程失败 %s: %v", sess.SessionID, err)
	}
}
