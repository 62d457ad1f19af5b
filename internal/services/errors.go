package services

import (
	"errors"
	"fmt"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/bags"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrBusy              = errors.New("another step is already in progress for this session")
	ErrMaterialize       = errors.New("unrecognized transaction shape")
	ErrSubmission        = errors.New("submission failed")
	ErrConfirmation      = errors.New("confirmation failed")
	ErrConfirmTimeout    = errors.New("confirmation timed out")
	ErrBlockhashExpired  = errors.New("blockhash expired before confirmation")
	ErrTransactionFailed = errors.New("transaction failed on chain")
	ErrAlreadyRevoked    = errors.New("mint authority already revoked")
	ErrNotMintAuthority  = errors.New("wallet is not the mint authority")
	ErrMissingTx         = errors.New("upstream response has no transaction")
	ErrLaunchPending     = errors.New("previous launch transaction is not settled yet")
)

// Describe 把错误转换成给用户看的状态文字
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ue *bags.UpstreamError
	switch {
	case errors.As(err, &ue):
		return fmt.Sprintf("Error: %s returned %d: %s", ue.Op, ue.Status, ue.Body)
	case errors.Is(err, utils.ErrDecode):
		return "Error: could not decode transaction payload (" + err.Error() + ")"
	case errors.Is(err, ErrMaterialize):
		return "Error: transaction payload has an unknown format (" + err.Error() + ")"
	case errors.Is(err, ErrBusy):
		return "Busy: " + err.Error()
	case errors.Is(err, ErrLaunchPending):
		return "Pending: " + err.Error()
	case errors.Is(err, ErrConfirmation):
		return "Error: transaction was sent but not confirmed (" + err.Error() + ")"
	default:
		return "Error: " + err.Error()
	}
}
