package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/bags"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/db"
)

type fakeNetwork struct {
	mu          sync.Mutex
	checkpoints int
	sends       int
	simulations int
	confirmErrs []error // 依次返回，用完后成功
	confirmCPs  []Checkpoint
	sent        []*solana.Transaction
	sendErr     error
}

func (n *fakeNetwork) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.checkpoints++
	var h solana.Hash
	h[0] = byte(n.checkpoints)
	return Checkpoint{Blockhash: h, LastValidBlockHeight: uint64(100 + n.checkpoints)}, nil
}

func (n *fakeNetwork) SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return solana.Signature{}, n.sendErr
	}
	n.sends++
	n.sent = append(n.sent, tx)
	for _, s := range tx.Signatures {
		if !s.IsZero() {
			return s, nil
		}
	}
	return solana.Signature{}, errors.New("unsigned transaction")
}

func (n *fakeNetwork) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.simulations++
	return nil, errors.New("simulation unavailable")
}

func (n *fakeNetwork) ConfirmSignature(ctx context.Context, sig solana.Signature, cp Checkpoint, commitment rpc.CommitmentType) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmCPs = append(n.confirmCPs, cp)
	if len(n.confirmErrs) > 0 {
		err := n.confirmErrs[0]
		n.confirmErrs = n.confirmErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return 7, nil
}

// fakeUpstream 返回固定的响应体
type fakeUpstream struct {
	tokenInfo string
	config    string
	launch    string
	launchErr error

	calls       []string
	launchParam bags.LaunchParams
	entered     chan struct{}
	block       chan struct{}
}

func (u *fakeUpstream) CreateTokenInfo(ctx context.Context, info bags.TokenInfo) (bags.Envelope, error) {
	u.calls = append(u.calls, "create-token-info")
	return bags.Envelope{Status: 200, Body: []byte(u.tokenInfo)}, nil
}

func (u *fakeUpstream) CreateConfig(ctx context.Context, wallet string) (bags.Envelope, error) {
	u.calls = append(u.calls, "create-config")
	if u.block != nil {
		u.entered <- struct{}{}
		<-u.block
	}
	return bags.Envelope{Status: 200, Body: []byte(u.config)}, nil
}

func (u *fakeUpstream) CreateLaunchTransaction(ctx context.Context, p bags.LaunchParams) (bags.Envelope, error) {
	u.calls = append(u.calls, "create-launch-transaction")
	u.launchParam = p
	if u.launchErr != nil {
		return bags.Envelope{}, u.launchErr
	}
	return bags.Envelope{Status: 200, Body: []byte(u.launch)}, nil
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

// memoTx 钱包为 fee payer 的最小 legacy 交易
func memoTx(t *testing.T, payer solana.PublicKey, memo string) *solana.Transaction {
	t.Helper()
	ix := solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{}, []byte(memo))
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	return tx
}

func txBytes(t *testing.T, tx *solana.Transaction) []byte {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	conn, err := db.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(conn))
	return db.NewStore(conn)
}

var _ Journal = (*db.Store)(nil)
var _ SessionStore = (*db.Store)(nil)
var _ SubmissionLookup = (*db.Store)(nil)
