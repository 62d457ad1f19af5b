package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/bags"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

// Upstream Bags API 中发射流程用到的部分
type Upstream interface {
	CreateTokenInfo(ctx context.Context, info bags.TokenInfo) (bags.Envelope, error)
	CreateConfig(ctx context.Context, launchWallet string) (bags.Envelope, error)
	CreateLaunchTransaction(ctx context.Context, p bags.LaunchParams) (bags.Envelope, error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, s *models.LaunchSession) error
	GetSession(ctx context.Context, sessionID string) (*models.LaunchSession, error)
}

// SubmissionLookup 查询已广播交易的对账状态（db.Store 实现）
type SubmissionLookup interface {
	GetSubmission(ctx context.Context, signature string) (*models.Submission, error)
}

// Submitter 由 Pipeline 实现
type Submitter interface {
	Submit(ctx context.Context, s *Signable, meta SubmitMeta) (solana.Signature, error)
}

// Launcher 发币流程：idle -> metadata_uploaded -> config_ready -> launched。
// 失败时停在上一个稳定状态，Status 写入错误说明，可直接重试。
type Launcher struct {
	Upstream     Upstream
	Store        SessionStore
	Pipeline     Submitter
	Materializer Materializer
	Journal      SubmissionLookup // 为空时不检查上一次发射
	Wallet       solana.PublicKey
	Cluster      string
	Metrics      *Metrics
	Log          *utils.Logger

	validate *validator.Validate
	inflight sync.Map // sessionID -> struct{}
}

func NewLauncher(up Upstream, store SessionStore, pipeline Submitter, wallet solana.PublicKey, cluster string) *Launcher {
	l := &Launcher{
		Upstream: up,
		Store:    store,
		Pipeline: pipeline,
		Wallet:   wallet,
		Cluster:  cluster,
		Log:      utils.DefaultLogger,
		validate: validator.New(),
	}
	if j, ok := store.(SubmissionLookup); ok {
		l.Journal = j
	}
	return l
}

func (l *Launcher) validateInfo(info bags.TokenInfo) error {
	if l.validate == nil {
		l.validate = validator.New()
	}
	if err := l.validate.Struct(info); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Start 新建流程并上传元数据。参数不合法时不创建流程。
func (l *Launcher) Start(ctx context.Context, info bags.TokenInfo) (*models.LaunchSession, error) {
	if err := l.validateInfo(info); err != nil {
		return nil, err
	}
	sess := &models.LaunchSession{
		SessionID:   uuid.NewString(),
		Name:        info.Name,
		Symbol:      info.Symbol,
		Description: info.Description,
		Wallet:      l.Wallet.String(),
		State:       models.StateIdle,
		Status:      "Idle",
	}
	if err := l.Store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return l.UploadMetadata(ctx, sess.SessionID, info)
}

// Session 查询流程
func (l *Launcher) Session(ctx context.Context, sessionID string) (*models.LaunchSession, error) {
	return l.Store.GetSession(ctx, sessionID)
}

// run 同一个流程同一时间只允许一个步骤
func (l *Launcher) run(ctx context.Context, sessionID, target string, step func(*models.LaunchSession) error) (*models.LaunchSession, error) {
	if _, busy := l.inflight.LoadOrStore(sessionID, struct{}{}); busy {
		return nil, ErrBusy
	}
	defer l.inflight.Delete(sessionID)

	sess, err := l.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	err = step(sess)
	l.Metrics.transition(target, err)
	if err != nil {
		sess.Status = Describe(err)
		sess.LastError = err.Error()
		l.Log.Warn("流程 %s 在 %s 状态失败: %v", sessionID, sess.State, err)
	} else {
		sess.LastError = ""
	}
	if serr := l.Store.SaveSession(ctx, sess); serr != nil {
		l.Log.Error("保存流程失败 %s: %v", sessionID, serr)
		if err == nil {
			err = serr
		}
	}
	return sess, err
}

// UploadMetadata idle -> metadata_uploaded
func (l *Launcher) UploadMetadata(ctx context.Context, sessionID string, info bags.TokenInfo) (*models.LaunchSession, error) {
	return l.run(ctx, sessionID, models.StateMetadataUploaded, func(sess *models.LaunchSession) error {
		if sess.State != models.StateIdle {
			return fmt.Errorf("%w: metadata already uploaded", ErrInvalidTransition)
		}
		if err := l.validateInfo(info); err != nil {
			return err
		}
		env, err := l.Upstream.CreateTokenInfo(ctx, info)
		if err != nil {
			return err
		}
		mint, okMint := bags.ResolveTokenMint(env.Body)
		uri, okURI := bags.ResolveMetadataURI(env.Body)
		if !okMint || !okURI {
			return fmt.Errorf("%w: create-token-info response lacks token mint or metadata uri", bags.ErrUpstream)
		}
		sess.Name, sess.Symbol, sess.Description = info.Name, info.Symbol, info.Description
		sess.TokenMint = mint
		sess.MetadataURI = uri
		sess.State = models.StateMetadataUploaded
		sess.Status = "Token info created. Mint: " + mint
		return nil
	})
}

// EnsureConfig metadata_uploaded -> config_ready，已有 configKey 时直接通过
func (l *Launcher) EnsureConfig(ctx context.Context, sessionID string) (*models.LaunchSession, error) {
	return l.run(ctx, sessionID, models.StateConfigReady, func(sess *models.LaunchSession) error {
		return l.ensureConfig(ctx, sess)
	})
}

func (l *Launcher) ensureConfig(ctx context.Context, sess *models.LaunchSession) error {
	switch sess.State {
	case models.StateIdle:
		return fmt.Errorf("%w: upload token info first", ErrInvalidTransition)
	case models.StateConfigReady, models.StateLaunched:
		return nil
	}
	if sess.ConfigKey != "" {
		sess.State = models.StateConfigReady
		sess.Status = "Config ready: " + sess.ConfigKey
		return nil
	}

	env, err := l.Upstream.CreateConfig(ctx, l.Wallet.String())
	if err != nil {
		return err
	}
	key, hasKey := bags.ResolveConfigKey(env.Body)
	txStr, hasTx := bags.ResolveTxString(env.Body)
	switch {
	case !hasKey && !hasTx:
		return fmt.Errorf("%w: create-config response has neither config key nor transaction", ErrMissingTx)
	case !hasKey:
		return fmt.Errorf("%w: config key missing in create-config response", bags.ErrUpstream)
	}
	if hasTx {
		sig, err := l.submitPayload(ctx, sess, txStr, models.PurposeConfig)
		if err != nil {
			return err
		}
		l.Log.Info("流程 %s 配置交易已确认: %s", sess.SessionID, sig)
	} else {
		l.Log.Warn("create-config 未返回交易，直接使用 configKey %s", key)
	}
	sess.ConfigKey = key
	sess.State = models.StateConfigReady
	sess.Status = "Config ready: " + key
	return nil
}

// Launch config_ready -> launched，必要时先完成配置
func (l *Launcher) Launch(ctx context.Context, sessionID string) (*models.LaunchSession, error) {
	return l.run(ctx, sessionID, models.StateLaunched, func(sess *models.LaunchSession) error {
		switch sess.State {
		case models.StateLaunched:
			return fmt.Errorf("%w: already launched (%s)", ErrInvalidTransition, sess.LaunchSignature)
		case models.StateIdle:
			return fmt.Errorf("%w: upload token info first", ErrInvalidTransition)
		}
		if done, err := l.priorLaunch(ctx, sess); err != nil || done {
			return err
		}
		if err := l.ensureConfig(ctx, sess); err != nil {
			return err
		}

		env, err := l.Upstream.CreateLaunchTransaction(ctx, bags.LaunchParams{
			IPFS:               sess.MetadataURI,
			TokenMint:          sess.TokenMint,
			Wallet:             l.Wallet.String(),
			InitialBuyLamports: 0,
			ConfigKey:          sess.ConfigKey,
		})
		if err != nil {
			return err
		}
		txStr, ok := bags.ResolveTxString(env.Body)
		if !ok {
			return fmt.Errorf("%w: create-launch-transaction", ErrMissingTx)
		}
		sig, err := l.submitPayload(ctx, sess, txStr, models.PurposeLaunch)
		if !sig.IsZero() {
			// 已广播的签名留给对账任务
			sess.LaunchSignature = sig.String()
		}
		if err != nil {
			return err
		}
		sess.State = models.StateLaunched
		sess.Status = "Launched! View: " + ExplorerURL(sig.String(), l.Cluster)
		return nil
	})
}

// priorLaunch 上一次发射交易已广播但没确认时，先看 journal 再决定是否重新发射。
// 返回 true 表示上一次已经确认，流程直接进入 launched。
func (l *Launcher) priorLaunch(ctx context.Context, sess *models.LaunchSession) (bool, error) {
	if sess.LaunchSignature == "" || l.Journal == nil {
		return false, nil
	}
	sub, err := l.Journal.GetSubmission(ctx, sess.LaunchSignature)
	if err != nil {
		// 查不到记录时无法排除已上链，不重发
		return false, fmt.Errorf("%w: %s: %v", ErrLaunchPending, sess.LaunchSignature, err)
	}
	switch sub.Status {
	case models.TxStatusConfirmed:
		l.Log.Info("流程 %s 的发射交易已确认: %s", sess.SessionID, sub.Signature)
		sess.State = models.StateLaunched
		sess.Status = "Launched! View: " + ExplorerURL(sub.Signature, l.Cluster)
		return true, nil
	case models.TxStatusPending:
		return false, fmt.Errorf("%w: %s", ErrLaunchPending, sub.Signature)
	default:
		l.Log.Warn("流程 %s 上一次发射交易 %s 为 %s，重新发射", sess.SessionID, sub.Signature, sub.Status)
		sess.LaunchSignature = ""
		return false, nil
	}
}

// submitPayload 解码 -> 解析 -> 提交
func (l *Launcher) submitPayload(ctx context.Context, sess *models.LaunchSession, payload, purpose string) (solana.Signature, error) {
	raw, err := utils.DecodeTxPayload(payload)
	if err != nil {
		return solana.Signature{}, err
	}
	signable, err := l.Materializer.Materialize(raw)
	if err != nil {
		return solana.Signature{}, err
	}
	return l.Pipeline.Submit(ctx, signable, SubmitMeta{Purpose: purpose, SessionID: sess.SessionID})
}

// SessionView 转换为接口响应
func SessionView(sess *models.LaunchSession, cluster string) models.SessionResponse {
	out := models.SessionResponse{
		SessionID:       sess.SessionID,
		State:           sess.State,
		Status:          sess.Status,
		Name:            sess.Name,
		Symbol:          sess.Symbol,
		Wallet:          sess.Wallet,
		TokenMint:       sess.TokenMint,
		MetadataURI:     sess.MetadataURI,
		ConfigKey:       sess.ConfigKey,
		LaunchSignature: sess.LaunchSignature,
		LastError:       sess.LastError,
	}
	if sess.LaunchSignature != "" {
		out.ExplorerURL = ExplorerURL(sess.LaunchSignature, cluster)
	}
	return out
}
