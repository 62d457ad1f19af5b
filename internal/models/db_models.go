package models

import "gorm.io/gorm"

// 发射流程状态
const (
	StateIdle             = "idle"
	StateMetadataUploaded = "metadata_uploaded"
	StateConfigReady      = "config_ready"
	StateLaunched         = "launched"
)

// 交易状态
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
	TxStatusExpired   = "expired"
)

// 提交用途
const (
	PurposeConfig = "config"
	PurposeLaunch = "launch"
	PurposeRevoke = "revoke"
)

// LaunchSession 一次发币流程，按顺序填充 tokenMint/metadataUri -> configKey -> 发射签名
type LaunchSession struct {
	gorm.Model
	SessionID       string `gorm:"uniqueIndex;size:36"`
	Name            string `gorm:"size:64"`
	Symbol          string `gorm:"size:16"`
	Description     string `gorm:"size:1000"`
	Wallet          string `gorm:"size:44"`
	TokenMint       string `gorm:"size:44"`
	MetadataURI     string `gorm:"size:255"`
	ConfigKey       string `gorm:"size:88"`
	LaunchSignature string `gorm:"size:88"`
	State           string `gorm:"size:32;default:'idle'"`
	Status          string `gorm:"size:512"` // 给用户看的状态文字
	LastError       string `gorm:"size:2000"`
}

// Submission 已广播的交易（确认前写入，用于重启后对账）
type Submission struct {
	gorm.Model
	Signature            string `gorm:"uniqueIndex;size:88"`
	SessionID            string `gorm:"index;size:36"`
	Purpose              string `gorm:"size:16"`
	Status               string `gorm:"index;size:20;default:'pending'"` // "pending", "confirmed", "failed", "expired"
	LastValidBlockHeight uint64
	Slot                 uint64
	Error                string `gorm:"size:2000"`
}
