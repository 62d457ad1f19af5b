package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

// Journal 记录已广播的签名，确认前写入，进程重启后由对账任务接手
type Journal interface {
	RecordSubmission(ctx context.Context, sub *models.Submission) error
	SettleSubmission(ctx context.Context, signature, status string, slot uint64, errMsg string) error
}

// SubmitMeta 写入 journal 的附加信息
type SubmitMeta struct {
	Purpose   string
	SessionID string
}

// Pipeline checkpoint -> 签名广播 -> 确认，确认失败换新 checkpoint 再等一次，不重发
type Pipeline struct {
	Network  Network
	Wallet   Wallet
	Journal  Journal // 可为空
	Simulate bool
	Metrics  *Metrics
	Log      *utils.Logger
}

func NewPipeline(network Network, wallet Wallet, journal Journal) *Pipeline {
	return &Pipeline{Network: network, Wallet: wallet, Journal: journal, Log: utils.DefaultLogger}
}

var sendOptions = SendOptions{SkipPreflight: false, MaxRetries: 3}

func (p *Pipeline) Submit(ctx context.Context, s *Signable, meta SubmitMeta) (solana.Signature, error) {
	sig, err := p.submit(ctx, s, meta)
	p.Metrics.submission(meta.Purpose, err)
	return sig, err
}

func (p *Pipeline) submit(ctx context.Context, s *Signable, meta SubmitMeta) (solana.Signature, error) {
	if s == nil || s.Tx == nil {
		return solana.Signature{}, fmt.Errorf("%w: nil transaction", ErrInvalidRequest)
	}
	log := p.Log.With("purpose", meta.Purpose, "session", meta.SessionID)

	cp, err := p.Network.LatestCheckpoint(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: 获取 blockhash 失败: %v", ErrSubmission, err)
	}

	// 上游交易通常已带 blockhash 并部分签名，改了会让已有签名失效
	if s.Tx.Message.RecentBlockhash.IsZero() {
		s.Tx.Message.RecentBlockhash = cp.Blockhash
		log.Debug("Blockhash 为零，更新为最新: %s", cp.Blockhash)
	} else if s.Tx.Message.RecentBlockhash != cp.Blockhash {
		log.Debug("保留交易中的 blockhash %s（最新: %s）", s.Tx.Message.RecentBlockhash, cp.Blockhash)
	}

	if p.Simulate {
		p.simulate(ctx, log, s.Tx)
	}

	sig, err := p.Wallet.SignAndSend(ctx, s.Tx, sendOptions)
	if err != nil {
		if enc, eerr := utils.EncodeBase64Tx(s.Tx); eerr == nil {
			log.Debug("广播失败的交易: %s", enc)
		}
		if errors.Is(err, ErrSubmission) {
			return solana.Signature{}, err
		}
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	log.Info("交易已广播: %s (%s)", sig, s.Kind)

	if p.Journal != nil {
		if jerr := p.Journal.RecordSubmission(ctx, &models.Submission{
			Signature:            sig.String(),
			SessionID:            meta.SessionID,
			Purpose:              meta.Purpose,
			LastValidBlockHeight: cp.LastValidBlockHeight,
		}); jerr != nil {
			log.Error("写入交易记录失败 %s: %v", sig, jerr)
		}
	}

	slot, err := p.confirm(ctx, log, sig, cp)
	p.settle(ctx, log, sig, slot, err)
	return sig, err
}

func (p *Pipeline) confirm(ctx context.Context, log *utils.Logger, sig solana.Signature, cp Checkpoint) (uint64, error) {
	slot, err := p.Network.ConfirmSignature(ctx, sig, cp, rpc.CommitmentConfirmed)
	if err == nil {
		return slot, nil
	}
	if errors.Is(err, ErrTransactionFailed) {
		return slot, err
	}
	log.Warn("确认失败，换新 checkpoint 重试一次 %s: %v", sig, err)
	p.Metrics.retry()

	fresh, cerr := p.Network.LatestCheckpoint(ctx)
	if cerr != nil {
		return 0, fmt.Errorf("%w: %v (refresh checkpoint: %v)", ErrConfirmation, err, cerr)
	}
	slot, err = p.Network.ConfirmSignature(ctx, sig, fresh, rpc.CommitmentConfirmed)
	if err == nil {
		return slot, nil
	}
	if errors.Is(err, ErrTransactionFailed) {
		return slot, err
	}
	return 0, fmt.Errorf("%w: %s: %v", ErrConfirmation, sig, err)
}

func (p *Pipeline) settle(ctx context.Context, log *utils.Logger, sig solana.Signature, slot uint64, err error) {
	if p.Journal == nil {
		return
	}
	status, msg := models.TxStatusConfirmed, ""
	switch {
	case err == nil:
	case errors.Is(err, ErrTransactionFailed):
		status, msg = models.TxStatusFailed, err.Error()
	default:
		// 没等到确认不代表失败，留给对账任务
		return
	}
	if serr := p.Journal.SettleSubmission(ctx, sig.String(), status, slot, msg); serr != nil {
		log.Error("更新交易状态失败 %s: %v", sig, serr)
	}
}

// simulate 仅用于诊断，结果不影响提交
func (p *Pipeline) simulate(ctx context.Context, log *utils.Logger, tx *solana.Transaction) {
	res, err := p.Network.SimulateTransaction(ctx, tx)
	if err != nil {
		log.Warn("模拟交易失败: %v", err)
		return
	}
	if res != nil && res.Err != nil {
		log.Warn("模拟交易返回错误: %v, logs: %v", res.Err, res.Logs)
	}
}
