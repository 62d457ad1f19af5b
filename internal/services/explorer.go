package services

import "net/url"

// ExplorerURL mainnet-beta 不带 cluster 参数
func ExplorerURL(signature, cluster string) string {
	u := "https://explorer.solana.com/tx/" + url.PathEscape(signature)
	if cluster == "" || cluster == "mainnet-beta" {
		return u
	}
	return u + "?cluster=" + url.QueryEscape(cluster)
}
