package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
)

func newTestPipeline(t *testing.T, net *fakeNetwork) (*Pipeline, solana.PrivateKey) {
	t.Helper()
	key := newKey(t)
	return NewPipeline(net, NewKeypairWallet(key, net), nil), key
}

func TestSubmitStampsZeroBlockhashAndSigns(t *testing.T) {
	net := &fakeNetwork{}
	p, key := newTestPipeline(t, net)
	tx := memoTx(t, key.PublicKey(), "hello")

	sig, err := p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: tx}, SubmitMeta{Purpose: models.PurposeLaunch})
	require.NoError(t, err)
	require.Equal(t, 1, net.sends)
	require.Equal(t, byte(1), tx.Message.RecentBlockhash[0])

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	require.True(t, sig.Verify(key.PublicKey(), msg))

	// 确认使用签名前取到的同一个 checkpoint
	require.Len(t, net.confirmCPs, 1)
	require.Equal(t, uint64(101), net.confirmCPs[0].LastValidBlockHeight)
}

func TestSubmitKeepsUpstreamBlockhashAndSignatures(t *testing.T) {
	net := &fakeNetwork{}
	p, key := newTestPipeline(t, net)
	mintKey := newKey(t)

	// 上游交易：mint keypair 已签名，钱包签名位为空
	ix := solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{
		solana.Meta(mintKey.PublicKey()).SIGNER(),
	}, []byte("launch"))
	var upstreamHash solana.Hash
	upstreamHash[31] = 9
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, upstreamHash, solana.TransactionPayer(key.PublicKey()))
	require.NoError(t, err)
	_, err = tx.PartialSign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(mintKey.PublicKey()) {
			return &mintKey
		}
		return nil
	})
	require.NoError(t, err)
	mintSig := tx.Signatures[1]

	_, err = p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: tx}, SubmitMeta{Purpose: models.PurposeLaunch})
	require.NoError(t, err)
	require.Equal(t, upstreamHash, tx.Message.RecentBlockhash)
	require.Equal(t, mintSig, tx.Signatures[1])
	require.False(t, tx.Signatures[0].IsZero())
}

func TestConfirmationRetryDoesNotResubmit(t *testing.T) {
	net := &fakeNetwork{confirmErrs: []error{fmt.Errorf("%w: simulated", ErrConfirmTimeout)}}
	p, key := newTestPipeline(t, net)

	_, err := p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: memoTx(t, key.PublicKey(), "retry")}, SubmitMeta{Purpose: models.PurposeConfig})
	require.NoError(t, err)
	require.Equal(t, 1, net.sends)
	require.Equal(t, 2, net.checkpoints)
	require.Len(t, net.confirmCPs, 2)
	require.Greater(t, net.confirmCPs[1].LastValidBlockHeight, net.confirmCPs[0].LastValidBlockHeight)
}

func TestConfirmationFailsAfterOneRetry(t *testing.T) {
	net := &fakeNetwork{confirmErrs: []error{ErrConfirmTimeout, ErrBlockhashExpired}}
	p, key := newTestPipeline(t, net)
	store := newTestStore(t)
	p.Journal = store

	sig, err := p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: memoTx(t, key.PublicKey(), "x")}, SubmitMeta{Purpose: models.PurposeLaunch, SessionID: "s-1"})
	require.ErrorIs(t, err, ErrConfirmation)
	require.False(t, sig.IsZero())
	require.Equal(t, 1, net.sends)
	require.Len(t, net.confirmCPs, 2)

	// 未确认的签名保持 pending，交给对账任务
	sub, err := store.GetSubmission(context.Background(), sig.String())
	require.NoError(t, err)
	require.Equal(t, models.TxStatusPending, sub.Status)
	require.Equal(t, uint64(101), sub.LastValidBlockHeight)
	require.Equal(t, "s-1", sub.SessionID)
}

func TestOnChainFailureIsTerminal(t *testing.T) {
	net := &fakeNetwork{confirmErrs: []error{fmt.Errorf("%w: InstructionError", ErrTransactionFailed)}}
	p, key := newTestPipeline(t, net)
	store := newTestStore(t)
	p.Journal = store

	sig, err := p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: memoTx(t, key.PublicKey(), "x")}, SubmitMeta{Purpose: models.PurposeLaunch})
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.Len(t, net.confirmCPs, 1)

	sub, err := store.GetSubmission(context.Background(), sig.String())
	require.NoError(t, err)
	require.Equal(t, models.TxStatusFailed, sub.Status)
}

func TestJournalSettlesConfirmed(t *testing.T) {
	net := &fakeNetwork{}
	p, key := newTestPipeline(t, net)
	store := newTestStore(t)
	p.Journal = store

	sig, err := p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: memoTx(t, key.PublicKey(), "x")}, SubmitMeta{Purpose: models.PurposeRevoke})
	require.NoError(t, err)
	sub, err := store.GetSubmission(context.Background(), sig.String())
	require.NoError(t, err)
	require.Equal(t, models.TxStatusConfirmed, sub.Status)
	require.Equal(t, uint64(7), sub.Slot)
}

func TestSimulationNeverBlocks(t *testing.T) {
	net := &fakeNetwork{}
	p, key := newTestPipeline(t, net)
	p.Simulate = true

	_, err := p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: memoTx(t, key.PublicKey(), "x")}, SubmitMeta{})
	require.NoError(t, err)
	require.Equal(t, 1, net.simulations)
	require.Equal(t, 1, net.sends)
}

func TestSubmissionErrors(t *testing.T) {
	net := &fakeNetwork{}
	p, _ := newTestPipeline(t, net)

	// 钱包不是签名者
	_, err := p.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: memoTx(t, newKey(t).PublicKey(), "x")}, SubmitMeta{})
	require.ErrorIs(t, err, ErrSubmission)
	require.Equal(t, 0, net.sends)

	net.sendErr = errors.New("preflight: insufficient funds")
	p2, key := newTestPipeline(t, net)
	_, err = p2.Submit(context.Background(), &Signable{Kind: KindLegacy, Tx: memoTx(t, key.PublicKey(), "x")}, SubmitMeta{})
	require.ErrorIs(t, err, ErrSubmission)
	require.Contains(t, err.Error(), "insufficient funds")
	require.Empty(t, net.confirmCPs)

	_, err = p.Submit(context.Background(), nil, SubmitMeta{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}
