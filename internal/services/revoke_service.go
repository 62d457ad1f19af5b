package services

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

// AccountReader 读取链上账户数据
type AccountReader interface {
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// Revoker 撤销 mint 权限，之后无法再增发
type Revoker struct {
	Accounts    AccountReader
	Pipeline    Submitter
	Wallet      solana.PublicKey
	DefaultMint string
	Log         *utils.Logger
}

func NewRevoker(accounts AccountReader, pipeline Submitter, wallet solana.PublicKey, defaultMint string) *Revoker {
	return &Revoker{Accounts: accounts, Pipeline: pipeline, Wallet: wallet, DefaultMint: defaultMint, Log: utils.DefaultLogger}
}

// RevokeMintAuthority mint 为空时使用配置的 token.mint
func (r *Revoker) RevokeMintAuthority(ctx context.Context, mint string) (solana.Signature, error) {
	if mint == "" {
		mint = r.DefaultMint
	}
	if mint == "" {
		return solana.Signature{}, fmt.Errorf("%w: no mint configured", ErrInvalidRequest)
	}
	mintPk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: mint address: %v", ErrInvalidRequest, err)
	}

	data, err := r.Accounts.AccountData(ctx, mintPk)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("读取 mint 账户失败: %w", err)
	}
	var m token.Mint
	if err := m.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: not a token mint: %v", ErrInvalidRequest, err)
	}
	if m.MintAuthority == nil {
		return solana.Signature{}, ErrAlreadyRevoked
	}
	if !m.MintAuthority.Equals(r.Wallet) {
		return solana.Signature{}, fmt.Errorf("%w: authority is %s", ErrNotMintAuthority, m.MintAuthority)
	}

	tx, err := BuildRevokeTx(mintPk, r.Wallet)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := r.Pipeline.Submit(ctx, &Signable{Kind: KindLegacy, Tx: tx}, SubmitMeta{Purpose: models.PurposeRevoke})
	if err != nil {
		return sig, err
	}
	r.Log.Info("mint %s 权限已撤销: %s", mintPk, sig)
	return sig, nil
}

// BuildRevokeTx SetAuthority(MintTokens -> 无)，blockhash 留空由提交流程填写
func BuildRevokeTx(mint, owner solana.PublicKey) (*solana.Transaction, error) {
	ix, err := token.NewSetAuthorityInstructionBuilder().
		SetAuthorityType(token.AuthorityMintTokens).
		SetSubjectAccount(mint).
		SetAuthorityAccount(owner).
		ValidateAndBuild()
	if err != nil {
		return nil, err
	}
	return solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(owner))
}
