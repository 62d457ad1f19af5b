package bags

import (
	"unicode/utf16"

	"github.com/tidwall/gjson"
)

// LongStringMin 兜底规则：交易字符串总是很长，字段名和短字符串不会超过这个长度
const LongStringMin = 100

// Rule 从 payload 中提取一个字符串，按顺序求值，第一个命中的生效
type Rule struct {
	Name string
	Pick func(root, payload gjson.Result) (string, bool)
}

// Field 在解包后的 payload 上取字段
func Field(path string) Rule {
	return Rule{Name: path, Pick: func(_, payload gjson.Result) (string, bool) {
		return nonEmptyString(payload.Get(path))
	}}
}

// RootField 在原始响应上取字段
func RootField(path string) Rule {
	return Rule{Name: "$." + path, Pick: func(root, _ gjson.Result) (string, bool) {
		return nonEmptyString(root.Get(path))
	}}
}

// 已知的交易字段名，顺序即优先级
var txFieldNames = []string{
	"transactionBase64",
	"transaction",
	"txBase64",
	"tx",
	"serializedTx",
	"serialized",
}

var (
	ConfigKeyRules   = []Rule{Field("configKey"), Field("key"), RootField("configKey"), RootField("key")}
	TokenMintRules   = []Rule{Field("tokenMint")}
	MetadataURIRules = []Rule{Field("tokenLaunch.uri"), Field("tokenMetadata")}
)

// Unwrap 解开一层包装：response，其次 data，否则原样
func Unwrap(root gjson.Result) gjson.Result {
	for _, key := range []string{"response", "data"} {
		if v := root.Get(key); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return root
}

// Resolve 按规则顺序取第一个命中的值
func Resolve(body []byte, rules []Rule) (string, bool) {
	root := gjson.ParseBytes(body)
	return resolve(root, Unwrap(root), rules)
}

func resolve(root, payload gjson.Result, rules []Rule) (string, bool) {
	for _, r := range rules {
		if v, ok := r.Pick(root, payload); ok {
			return v, true
		}
	}
	return "", false
}

// ResolveTxString 提取交易字符串。
// 第一个有值的已知字段决定结果；已知字段都没有值时，才退到“第一个长度超过 100 的字符串字段”。
func ResolveTxString(body []byte) (string, bool) {
	payload := Unwrap(gjson.ParseBytes(body))
	if payload.Type == gjson.String {
		return payload.Str, payload.Str != ""
	}
	for _, name := range txFieldNames {
		// 有值但不是字符串（对象、数字）时不再往后找
		if v := payload.Get(name); truthy(v) {
			return nonEmptyString(v)
		}
	}
	return FirstLongString(payload, LongStringMin)
}

// FirstLongString 按文档顺序返回第一个长度超过 minLen 的字符串字段，长度按 UTF-16 单元计
func FirstLongString(payload gjson.Result, minLen int) (string, bool) {
	if !payload.IsObject() {
		return "", false
	}
	var out string
	payload.ForEach(func(_, value gjson.Result) bool {
		if value.Type == gjson.String && utf16Len(value.Str) > minLen {
			out = value.Str
			return false
		}
		return true
	})
	return out, out != ""
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func ResolveConfigKey(body []byte) (string, bool)   { return Resolve(body, ConfigKeyRules) }
func ResolveTokenMint(body []byte) (string, bool)   { return Resolve(body, TokenMintRules) }
func ResolveMetadataURI(body []byte) (string, bool) { return Resolve(body, MetadataURIRules) }

func nonEmptyString(v gjson.Result) (string, bool) {
	if v.Type == gjson.String && v.Str != "" {
		return v.Str, true
	}
	return "", false
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.True, gjson.JSON:
		return true
	default:
		return false
	}
}
