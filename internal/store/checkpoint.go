package store

import (
	"errors"
	"fmt"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// indexerLockID Postgres 会话级咨询锁的键
// 同一条事件流只允许一个索引器实例处理
const indexerLockID = 0x5b10c

// LoadCheckpoint 读取事件流断点，没有记录时返回0
func (s *Store) LoadCheckpoint(name string) (uint64, error) {
	var cp model.IndexerCheckpoint
	err := s.db.Where("name = ?", name).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("读取断点失败: %w", err)
	}
	return cp.BlockNum, nil
}

// SaveCheckpoint 保存事件流断点
func (s *Store) SaveCheckpoint(name string, blockNum uint64) error {
	cp := model.IndexerCheckpoint{Name: name, BlockNum: blockNum}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_num", "updated_at"}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("保存断点失败: %w", err)
	}
	return nil
}

// AcquireIndexerLock 获取单写者锁
// Postgres 用会话级咨询锁实现互斥；其他方言（测试用 sqlite）单进程，直接放行
func (s *Store) AcquireIndexerLock() (bool, error) {
	if s.db.Dialector.Name() != "postgres" {
		return true, nil
	}

	var acquired bool
	err := s.db.Raw("SELECT pg_try_advisory_lock(?)", indexerLockID).Scan(&acquired).Error
	if err != nil {
		return false, fmt.Errorf("获取索引器锁失败: %w", err)
	}
	return acquired, nil
}

// ReleaseIndexerLock 释放单写者锁
func (s *Store) ReleaseIndexerLock() error {
	if s.db.Dialector.Name() != "postgres" {
		return nil
	}

	if err := s.db.Exec("SELECT pg_advisory_unlock(?)", indexerLockID).Error; err != nil {
		return fmt.Errorf("释放索引器锁失败: %w", err)
	}
	return nil
}
