package services

import (
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type TxKind string

const (
	KindVersioned TxKind = "versioned"
	KindLegacy    TxKind = "legacy"
)

// Signable 解码后的可签名交易
type Signable struct {
	Kind TxKind
	Tx   *solana.Transaction
}

type attempt struct {
	name  string
	kind  TxKind
	parse func(raw []byte) (*solana.Transaction, error)
}

// 顺序即优先级：完整 v0 交易 -> 只有 v0 消息 -> legacy 交易
var attempts = []attempt{
	{name: "versioned-transaction", kind: KindVersioned, parse: parseVersionedTx},
	{name: "versioned-message", kind: KindVersioned, parse: parseVersionedMessage},
	{name: "legacy-transaction", kind: KindLegacy, parse: parseLegacyTx},
}

// Materializer 把字节解析成可签名交易。Observe 可选，每次尝试后调用
type Materializer struct {
	Observe func(name string, err error)
}

func Materialize(raw []byte) (*Signable, error) {
	return Materializer{}.Materialize(raw)
}

func (m Materializer) Materialize(raw []byte) (*Signable, error) {
	failures := make([]string, 0, len(attempts))
	for _, a := range attempts {
		tx, err := safeParse(a.parse, raw)
		if m.Observe != nil {
			m.Observe(a.name, err)
		}
		if err == nil {
			return &Signable{Kind: a.kind, Tx: tx}, nil
		}
		failures = append(failures, a.name+": "+err.Error())
	}
	return nil, fmt.Errorf("%w: %s", ErrMaterialize, strings.Join(failures, "; "))
}

// 解码器遇到截断数据可能 panic，这里转成错误
func safeParse(parse func([]byte) (*solana.Transaction, error), raw []byte) (tx *solana.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			tx, err = nil, fmt.Errorf("panic while decoding: %v", r)
		}
	}()
	return parse(raw)
}

func decodeTx(raw []byte) (*solana.Transaction, error) {
	dec := bin.NewBinDecoder(raw)
	var tx solana.Transaction
	if err := tx.UnmarshalWithDecoder(dec); err != nil {
		return nil, err
	}
	if n := dec.Remaining(); n != 0 {
		return nil, fmt.Errorf("%d trailing bytes", n)
	}
	return &tx, nil
}

func parseVersionedTx(raw []byte) (*solana.Transaction, error) {
	tx, err := decodeTx(raw)
	if err != nil {
		return nil, err
	}
	if !tx.Message.IsVersioned() {
		return nil, fmt.Errorf("message is not versioned")
	}
	return tx, nil
}

func parseVersionedMessage(raw []byte) (*solana.Transaction, error) {
	if len(raw) == 0 || raw[0] < 0x80 {
		return nil, fmt.Errorf("missing version prefix")
	}
	dec := bin.NewBinDecoder(raw)
	var msg solana.Message
	if err := msg.UnmarshalWithDecoder(dec); err != nil {
		return nil, err
	}
	if n := dec.Remaining(); n != 0 {
		return nil, fmt.Errorf("%d trailing bytes", n)
	}
	// 签名位留空，由钱包填写
	return &solana.Transaction{
		Signatures: make([]solana.Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

func parseLegacyTx(raw []byte) (*solana.Transaction, error) {
	tx, err := decodeTx(raw)
	if err != nil {
		return nil, err
	}
	if tx.Message.IsVersioned() {
		return nil, fmt.Errorf("message is versioned")
	}
	return tx, nil
}
