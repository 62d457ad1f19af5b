package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

// Checkpoint 签名前取到的 blockhash 和有效高度，确认时沿用同一个（重试时换新的）
type Checkpoint struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

type SendOptions struct {
	SkipPreflight bool
	MaxRetries    uint
}

type SimulationResult struct {
	Err  interface{}
	Logs []string
}

// SignatureStatus 查询不到时 Found 为 false
type SignatureStatus struct {
	Found              bool
	Slot               uint64
	Err                interface{}
	ConfirmationStatus rpc.ConfirmationStatusType
}

// Network 链上能力集合，测试里用 fake 替换
type Network interface {
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error)
	ConfirmSignature(ctx context.Context, sig solana.Signature, cp Checkpoint, commitment rpc.CommitmentType) (uint64, error)
}

// RPCNetwork 基于 JSON-RPC 的实现
type RPCNetwork struct {
	Client         *rpc.Client
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Log            *utils.Logger
}

func NewRPCNetwork(client *rpc.Client, confirmTimeout, pollInterval time.Duration) *RPCNetwork {
	return &RPCNetwork{
		Client:         client,
		ConfirmTimeout: confirmTimeout,
		PollInterval:   pollInterval,
		Log:            utils.DefaultLogger,
	}
}

// LatestCheckpoint 优先 finalized，失败再用 confirmed
func (n *RPCNetwork) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	bh, err := n.Client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil || bh == nil || bh.Value == nil {
		n.Log.Warn("获取 Finalized blockhash 失败，尝试 Confirmed: %v", err)
		bh, err = n.Client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return Checkpoint{}, err
		}
		if bh == nil || bh.Value == nil {
			return Checkpoint{}, errors.New("empty getLatestBlockhash result")
		}
	}
	return Checkpoint{Blockhash: bh.Value.Blockhash, LastValidBlockHeight: bh.Value.LastValidBlockHeight}, nil
}

func (n *RPCNetwork) SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	maxRetries := opts.MaxRetries
	return n.Client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
}

func (n *RPCNetwork) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	out, err := n.Client.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return &SimulationResult{}, nil
	}
	return &SimulationResult{Err: out.Value.Err, Logs: out.Value.Logs}, nil
}

// SignatureStatuses 批量查询，结果与入参一一对应
func (n *RPCNetwork) SignatureStatuses(ctx context.Context, sigs ...solana.Signature) ([]SignatureStatus, error) {
	out := make([]SignatureStatus, len(sigs))
	if len(sigs) == 0 {
		return out, nil
	}
	res, err := n.Client.GetSignatureStatuses(ctx, true, sigs...)
	if errors.Is(err, rpc.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for i, st := range res.Value {
		if i >= len(out) || st == nil {
			continue
		}
		out[i] = SignatureStatus{Found: true, Slot: st.Slot, Err: st.Err, ConfirmationStatus: st.ConfirmationStatus}
	}
	return out, nil
}

func (n *RPCNetwork) BlockHeight(ctx context.Context) (uint64, error) {
	return n.Client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
}

// ConfirmSignature 轮询签名状态，直到达到 commitment、链上报错、blockhash 过期或超时
func (n *RPCNetwork) ConfirmSignature(ctx context.Context, sig solana.Signature, cp Checkpoint, commitment rpc.CommitmentType) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, n.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(n.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := n.SignatureStatuses(ctx, sig)
		if err != nil {
			n.Log.Warn("查询交易状态失败 %s: %v", sig, err)
		} else if st := statuses[0]; st.Found {
			if st.Err != nil {
				return st.Slot, fmt.Errorf("%w: %v", ErrTransactionFailed, st.Err)
			}
			if Reached(st.ConfirmationStatus, commitment) {
				return st.Slot, nil
			}
		}

		if cp.LastValidBlockHeight > 0 {
			height, err := n.BlockHeight(ctx)
			if err == nil && height > cp.LastValidBlockHeight {
				return 0, fmt.Errorf("%w: height %d > %d", ErrBlockhashExpired, height, cp.LastValidBlockHeight)
			}
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %s: %v", ErrConfirmTimeout, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Reached 状态是否已达到要求的 commitment
func Reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch commitment {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentConfirmed:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	default:
		return status != ""
	}
}

// AccountData 账户原始数据，账户不存在时返回 rpc.ErrNotFound
func (n *RPCNetwork) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	out, err := n.Client.GetAccountInfo(ctx, account)
	if err != nil {
		return nil, err
	}
	return out.GetBinary(), nil
}
