package bags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTxStringPrecedence(t *testing.T) {
	long := strings.Repeat("A", 150)
	cases := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{"bare string", `"abc"`, "abc", true},
		{"response wrapper string", `{"response":"xyz"}`, "xyz", true},
		{"transactionBase64 wins", `{"response":{"tx":"T","transactionBase64":"B"}}`, "B", true},
		{"data wrapper", `{"data":{"serializedTx":"S"}}`, "S", true},
		{"root fields", `{"txBase64":"X","serialized":"Y"}`, "X", true},
		{"null response falls to data", `{"response":null,"data":{"tx":"D"}}`, "D", true},
		{"empty known field skipped", `{"transaction":"","tx":"T"}`, "T", true},
		{"transaction over tx", `{"transaction":"T","tx":"X"}`, "T", true},
		{"known non-string stops at first field", `{"response":{"transaction":{"x":1},"tx":"abc"}}`, "", false},
		{"numeric known field stops", `{"txBase64":5,"serialized":"S"}`, "", false},
		{"fallback long string", `{"response":{"foo":"short","bar":"` + long + `"}}`, long, true},
		{"known non-string suppresses fallback", `{"response":{"transaction":{"x":1},"bar":"` + long + `"}}`, "", false},
		{"nothing", `{"response":{"foo":"short"}}`, "", false},
		{"not json", `<html>`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveTxString([]byte(tc.body))
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestFirstLongStringDocumentOrder(t *testing.T) {
	a := strings.Repeat("a", 101)
	b := strings.Repeat("b", 200)
	got, ok := ResolveTxString([]byte(`{"first":"` + a + `","second":"` + b + `"}`))
	require.True(t, ok)
	require.Equal(t, a, got)

	// 恰好 100 个字符不算
	_, ok = ResolveTxString([]byte(`{"x":"` + strings.Repeat("c", 100) + `"}`))
	require.False(t, ok)

	// 按字符计数：60 个 é 占 120 字节，仍然不够长
	_, ok = ResolveTxString([]byte(`{"x":"` + strings.Repeat("é", 60) + `"}`))
	require.False(t, ok)

	// 代理对按两个单元计
	emoji := strings.Repeat("😀", 51)
	got, ok = ResolveTxString([]byte(`{"x":"` + emoji + `"}`))
	require.True(t, ok)
	require.Equal(t, emoji, got)
}

func TestCompanionExtractors(t *testing.T) {
	body := []byte(`{"success":true,"response":{"tokenMint":"Mint1","tokenMetadata":"ipfs://meta","tokenLaunch":{"uri":"ipfs://launch"},"configKey":"Cfg1"}}`)

	mint, ok := ResolveTokenMint(body)
	require.True(t, ok)
	require.Equal(t, "Mint1", mint)

	uri, ok := ResolveMetadataURI(body)
	require.True(t, ok)
	require.Equal(t, "ipfs://launch", uri)

	uri, ok = ResolveMetadataURI([]byte(`{"response":{"tokenMetadata":"ipfs://meta"}}`))
	require.True(t, ok)
	require.Equal(t, "ipfs://meta", uri)

	key, ok := ResolveConfigKey(body)
	require.True(t, ok)
	require.Equal(t, "Cfg1", key)

	key, ok = ResolveConfigKey([]byte(`{"response":{"key":"K2"},"configKey":"Root"}`))
	require.True(t, ok)
	require.Equal(t, "K2", key)

	key, ok = ResolveConfigKey([]byte(`{"response":{},"configKey":"Root"}`))
	require.True(t, ok)
	require.Equal(t, "Root", key)

	_, ok = ResolveConfigKey([]byte(`{"response":{"tx":"T"}}`))
	require.False(t, ok)
}
