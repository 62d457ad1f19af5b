package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrDecode 交易字符串无法按任何支持的编码解码
var ErrDecode = errors.New("decode failed")

// Encoding 上游返回的交易字符串编码（上游没有显式标记，只能按字符集推断）
type Encoding string

const (
	EncodingBase58 Encoding = "base58"
	EncodingBase64 Encoding = "base64"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// DecodeError 记录分类结果和失败原因，errors.Is(err, ErrDecode) 为 true
type DecodeError struct {
	Encoding Encoding
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%v: %s payload: %s", ErrDecode, e.Encoding, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// IsLikelyBase58 所有字符都在 base58 字母表内（不含 0 O I l）
func IsLikelyBase58(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	for _, r := range t {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}

// ClassifyPayload 按字符集判断编码，不是 base58 的一律按 base64(url) 处理
func ClassifyPayload(payload string) Encoding {
	if IsLikelyBase58(payload) {
		return EncodingBase58
	}
	return EncodingBase64
}

// NormalizeBase64 去引号、去空白、url-safe 转标准字母表并补齐 '='
func NormalizeBase64(s string) string {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, `"`)
	t = strings.TrimSuffix(t, `"`)
	t = strings.Join(strings.Fields(t), "")
	t = strings.NewReplacer("-", "+", "_", "/").Replace(t)
	if rem := len(t) % 4; rem != 0 {
		t += strings.Repeat("=", 4-rem)
	}
	return t
}

// DecodeTxPayload 解码上游返回的交易字符串（base58 或 base64/base64url）
func DecodeTxPayload(payload string) ([]byte, error) {
	trimmed := strings.TrimSpace(payload)
	enc := ClassifyPayload(trimmed)
	if trimmed == "" {
		return nil, &DecodeError{Encoding: enc, Reason: "empty payload"}
	}

	switch enc {
	case EncodingBase58:
		raw, err := base58.Decode(trimmed)
		if err != nil {
			return nil, &DecodeError{Encoding: enc, Reason: "invalid character", Err: err}
		}
		return raw, nil
	default:
		normalized := NormalizeBase64(trimmed)
		if normalized == "" {
			return nil, &DecodeError{Encoding: enc, Reason: "empty payload"}
		}
		raw, err := base64.StdEncoding.DecodeString(normalized)
		if err != nil {
			return nil, &DecodeError{Encoding: enc, Reason: "invalid character", Err: err}
		}
		return raw, nil
	}
}

// EncodeBase58 用于测试数据和日志
func EncodeBase58(raw []byte) string {
	return base58.Encode(raw)
}

// EncodeBase64Tx 广播失败时把交易写进日志，方便手动重放
func EncodeBase64Tx(tx *solana.Transaction) (string, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}
