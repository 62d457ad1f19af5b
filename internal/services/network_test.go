package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/require"
)

// cannedRPC 按方法名返回预置结果，队列用完后重复最后一个；以 "!" 开头表示返回错误
type cannedRPC struct {
	mu      sync.Mutex
	results map[string][]string
	calls   map[string]int
}

func newCannedRPC(results map[string][]string) *cannedRPC {
	return &cannedRPC{results: results, calls: map[string]int{}}
}

func (c *cannedRPC) CallForInto(ctx context.Context, out interface{}, method string, params []interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.results[method]
	if !ok || len(q) == 0 {
		return fmt.Errorf("unexpected method %s", method)
	}
	i := c.calls[method]
	c.calls[method]++
	if i >= len(q) {
		i = len(q) - 1
	}
	if strings.HasPrefix(q[i], "!") {
		return errors.New(q[i][1:])
	}
	return json.Unmarshal([]byte(q[i]), out)
}

func (c *cannedRPC) CallWithCallback(ctx context.Context, method string, params []interface{}, callback func(*http.Request, *http.Response) error) error {
	return errors.New("not supported")
}

func (c *cannedRPC) CallBatch(ctx context.Context, requests jsonrpc.RPCRequests) (jsonrpc.RPCResponses, error) {
	return nil, errors.New("not supported")
}

func testNetwork(results map[string][]string) (*RPCNetwork, *cannedRPC) {
	canned := newCannedRPC(results)
	return NewRPCNetwork(rpc.NewWithCustomRPCClient(canned), 200*time.Millisecond, time.Millisecond), canned
}

func blockhashJSON(h solana.Hash, lvbh uint64) string {
	return fmt.Sprintf(`{"context":{"slot":1},"value":{"blockhash":%q,"lastValidBlockHeight":%d}}`, h.String(), lvbh)
}

func statusJSON(status string) string {
	return `{"context":{"slot":9},"value":[{"slot":42,"confirmations":null,"err":null,"confirmationStatus":"` + status + `"}]}`
}

const unknownStatus = `{"context":{"slot":9},"value":[null]}`

func TestLatestCheckpointFallsBackToConfirmed(t *testing.T) {
	var h solana.Hash
	h[0] = 7
	n, canned := testNetwork(map[string][]string{
		"getLatestBlockhash": {"!finalized unavailable", blockhashJSON(h, 150)},
	})
	cp, err := n.LatestCheckpoint(context.Background())
	require.NoError(t, err)
	require.Equal(t, h, cp.Blockhash)
	require.Equal(t, uint64(150), cp.LastValidBlockHeight)
	require.Equal(t, 2, canned.calls["getLatestBlockhash"])
}

func TestConfirmSignaturePollsUntilConfirmed(t *testing.T) {
	n, canned := testNetwork(map[string][]string{
		"getSignatureStatuses": {unknownStatus, statusJSON("processed"), statusJSON("confirmed")},
		"getBlockHeight":       {"100"},
	})
	slot, err := n.ConfirmSignature(context.Background(), solana.Signature{1}, Checkpoint{LastValidBlockHeight: 150}, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	require.Equal(t, uint64(42), slot)
	require.Equal(t, 3, canned.calls["getSignatureStatuses"])
}

func TestConfirmSignatureOutcomes(t *testing.T) {
	ctx := context.Background()

	n, _ := testNetwork(map[string][]string{
		"getSignatureStatuses": {unknownStatus},
		"getBlockHeight":       {"200"},
	})
	_, err := n.ConfirmSignature(ctx, solana.Signature{1}, Checkpoint{LastValidBlockHeight: 150}, rpc.CommitmentConfirmed)
	require.ErrorIs(t, err, ErrBlockhashExpired)

	n, _ = testNetwork(map[string][]string{
		"getSignatureStatuses": {`{"context":{"slot":9},"value":[{"slot":5,"err":{"InstructionError":[0,{"Custom":1}]},"confirmationStatus":"processed"}]}`},
	})
	_, err = n.ConfirmSignature(ctx, solana.Signature{1}, Checkpoint{}, rpc.CommitmentConfirmed)
	require.ErrorIs(t, err, ErrTransactionFailed)

	n, _ = testNetwork(map[string][]string{
		"getSignatureStatuses": {unknownStatus},
		"getBlockHeight":       {"10"},
	})
	n.ConfirmTimeout = 20 * time.Millisecond
	_, err = n.ConfirmSignature(ctx, solana.Signature{1}, Checkpoint{LastValidBlockHeight: 150}, rpc.CommitmentConfirmed)
	require.ErrorIs(t, err, ErrConfirmTimeout)

	// finalized 要求更高
	n, _ = testNetwork(map[string][]string{
		"getSignatureStatuses": {statusJSON("confirmed")},
	})
	n.ConfirmTimeout = 20 * time.Millisecond
	_, err = n.ConfirmSignature(ctx, solana.Signature{1}, Checkpoint{}, rpc.CommitmentFinalized)
	require.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestSignatureStatusesAlignsWithInput(t *testing.T) {
	n, _ := testNetwork(map[string][]string{
		"getSignatureStatuses": {`{"context":{"slot":9},"value":[null,{"slot":3,"err":null,"confirmationStatus":"finalized"}]}`},
	})
	out, err := n.SignatureStatuses(context.Background(), solana.Signature{1}, solana.Signature{2})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.False(t, out[0].Found)
	require.True(t, out[1].Found)
	require.Equal(t, rpc.ConfirmationStatusFinalized, out[1].ConfirmationStatus)
}

func TestSendAndSimulate(t *testing.T) {
	key := newKey(t)
	sig, err := key.Sign([]byte("x"))
	require.NoError(t, err)
	n, canned := testNetwork(map[string][]string{
		"sendTransaction":     {fmt.Sprintf("%q", sig.String())},
		"simulateTransaction": {`{"context":{"slot":1},"value":{"err":"AccountNotFound","logs":["log1"]}}`},
	})
	tx := memoTx(t, key.PublicKey(), "x")

	got, err := n.SendTransaction(context.Background(), tx, SendOptions{MaxRetries: 3})
	require.NoError(t, err)
	require.Equal(t, sig, got)
	require.Equal(t, 1, canned.calls["sendTransaction"])

	res, err := n.SimulateTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, "AccountNotFound", res.Err)
	require.Equal(t, []string{"log1"}, res.Logs)
}

func TestReached(t *testing.T) {
	require.True(t, Reached(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	require.False(t, Reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	require.False(t, Reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
	require.True(t, Reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed))
}
