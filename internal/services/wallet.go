package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Wallet 负责签名并广播，不暴露私钥
type Wallet interface {
	PublicKey() solana.PublicKey
	SignAndSend(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error)
}

// Sender 广播已签名交易，RPCNetwork 实现了它
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error)
}

// KeypairWallet 服务端持有的钱包
type KeypairWallet struct {
	key    solana.PrivateKey
	sender Sender
	// 串行广播，避免 RPC 节点限流和余额竞争
	mu sync.Mutex
}

func NewKeypairWallet(key solana.PrivateKey, sender Sender) *KeypairWallet {
	return &KeypairWallet{key: key, sender: sender}
}

// KeypairWalletFromBase58 从配置里的 base58 私钥创建
func KeypairWalletFromBase58(secret string, sender Sender) (*KeypairWallet, error) {
	pk, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet secret as base58: %w", err)
	}
	return NewKeypairWallet(pk, sender), nil
}

func (w *KeypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// Sign 只填自己的签名位，上游已填好的签名（比如 mint keypair）保持不变
func (w *KeypairWallet) Sign(tx *solana.Transaction) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return fmt.Errorf("%w: header requires %d signers but only %d keys", ErrSubmission, required, len(tx.Message.AccountKeys))
	}
	me := w.PublicKey()
	idx := -1
	for i := 0; i < required; i++ {
		if tx.Message.AccountKeys[i].Equals(me) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: wallet %s is not a required signer", ErrSubmission, me)
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: 序列化消息失败: %v", ErrSubmission, err)
	}
	sig, err := w.key.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("%w: 签名失败: %v", ErrSubmission, err)
	}
	tx.Signatures[idx] = sig
	return nil
}

func (w *KeypairWallet) SignAndSend(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	if err := w.Sign(tx); err != nil {
		return solana.Signature{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sender.SendTransaction(ctx, tx, opts)
}
