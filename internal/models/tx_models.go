package models

import "time"

// SessionResponse 发射流程状态
type SessionResponse struct {
	SessionID       string `json:"sessionId"`
	State           string `json:"state"`
	Status          string `json:"status"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Wallet          string `json:"wallet"`
	TokenMint       string `json:"tokenMint,omitempty"`
	MetadataURI     string `json:"metadataUri,omitempty"`
	ConfigKey       string `json:"configKey,omitempty"`
	LaunchSignature string `json:"launchSignature,omitempty"`
	ExplorerURL     string `json:"explorerUrl,omitempty"`
	LastError       string `json:"lastError,omitempty"`
}

// SubmissionResponse 交易对账状态
type SubmissionResponse struct {
	Signature   string    `json:"signature"`
	SessionID   string    `json:"sessionId,omitempty"`
	Purpose     string    `json:"purpose"`
	Status      string    `json:"status"`
	Slot        uint64    `json:"slot,omitempty"`
	Error       string    `json:"error,omitempty"`
	ExplorerURL string    `json:"explorerUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RevokeRequest 撤销 mint 权限，mint 为空时使用配置的 token.mint
type RevokeRequest struct {
	Mint string `json:"mint"`
}

// BroadcastTxResponse 广播响应
type BroadcastTxResponse struct {
	Signature   string `json:"signature"`
	ExplorerUrl string `json:"explorerUrl"`
}

// PricePoint 价格点
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}
