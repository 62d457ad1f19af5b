package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Open 按驱动打开数据库，sqlite 用于本地运行和测试
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// Migrate 创建或更新表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.LaunchSession{}, &models.Submission{})
}

// 保存发射流程
func SaveLaunchSession(db *gorm.DB, s *models.LaunchSession) error {
	return db.Save(s).Error
}

// 根据 session ID 查询发射流程
func GetLaunchSession(db *gorm.DB, sessionID string) (*models.LaunchSession, error) {
	var s models.LaunchSession
	err := db.Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &s, err
}

// 记录已广播的交易
func SaveSubmission(db *gorm.DB, sub *models.Submission) error {
	return db.Save(sub).Error
}

// 根据交易签名查询
func GetSubmissionBySignature(db *gorm.DB, signature string) (*models.Submission, error) {
	var sub models.Submission
	err := db.Where("signature = ?", signature).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &sub, err
}

// 更新交易状态
func UpdateSubmissionStatus(db *gorm.DB, signature, status string, slot uint64, errMsg string) error {
	res := db.Model(&models.Submission{}).Where("signature = ?", signature).Updates(map[string]interface{}{
		"status": status,
		"slot":   slot,
		"error":  errMsg,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// 查询待确认交易（按创建时间）
func GetPendingSubmissions(db *gorm.DB, limit int) ([]models.Submission, error) {
	var subs []models.Submission
	err := db.Where("status = ?", models.TxStatusPending).Order("id asc").Limit(limit).Find(&subs).Error
	return subs, err
}

// 查询某个流程的全部交易
func GetSubmissionsBySession(db *gorm.DB, sessionID string) ([]models.Submission, error) {
	var subs []models.Submission
	err := db.Where("session_id = ?", sessionID).Order("id asc").Find(&subs).Error
	return subs, err
}

// Store 把上面的函数包装成 services 需要的接口
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) SaveSession(ctx context.Context, sess *models.LaunchSession) error {
	return SaveLaunchSession(s.DB.WithContext(ctx), sess)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.LaunchSession, error) {
	return GetLaunchSession(s.DB.WithContext(ctx), sessionID)
}

// RecordSubmission 确认之前写入 pending 记录
func (s *Store) RecordSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.Status == "" {
		sub.Status = models.TxStatusPending
	}
	return SaveSubmission(s.DB.WithContext(ctx), sub)
}

func (s *Store) SettleSubmission(ctx context.Context, signature, status string, slot uint64, errMsg string) error {
	return UpdateSubmissionStatus(s.DB.WithContext(ctx), signature, status, slot, errMsg)
}

func (s *Store) PendingSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	return GetPendingSubmissions(s.DB.WithContext(ctx), limit)
}

func (s *Store) GetSubmission(ctx context.Context, signature string) (*models.Submission, error) {
	return GetSubmissionBySignature(s.DB.WithContext(ctx), signature)
}

func (s *Store) SessionSubmissions(ctx context.Context, sessionID string) ([]models.Submission, error) {
	return GetSubmissionsBySession(s.DB.WithContext(ctx), sessionID)
}

// Ping 就绪检查用
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
