package store

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicate 幂等键冲突：同一事件重复投递，视为已应用
	ErrDuplicate = errors.New("记录已存在")

	// ErrNotFound 引用的记录尚未物化
	ErrNotFound = errors.New("记录不存在")
)

// Store 派生记录存取器
// 只暴露事务性的 upsert / 自增 / 标记原语，幂等性由唯一索引保证，
// 不做先查后写
type Store struct {
	db *gorm.DB
}

// New 创建存取器
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction 在单个数据库事务内执行 fn
// fn 返回错误时整体回滚
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// EnsureUser 按地址创建用户，已存在时不动
func (s *Store) EnsureUser(address string) error {
	user := model.User{Address: model.NormalizeAddress(address)}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("创建用户失败: %w", err)
	}
	return nil
}

// IncrementUserDonated 累加用户捐赠总额并刷新最后交易时间
// 自增在数据库端完成，并发调用不会互相覆盖
func (s *Store) IncrementUserDonated(address string, amount *big.Int, txTime time.Time) error {
	err := s.db.Model(&model.User{}).
		Where("address = ?", model.NormalizeAddress(address)).
		Updates(map[string]interface{}{
			"total_donated":       gorm.Expr("total_donated + ?", amount.String()),
			"last_transaction_at": txTime,
		}).Error
	if err != nil {
		return fmt.Errorf("累加用户捐赠总额失败: %w", err)
	}
	return nil
}

// IncrementUserTokenCount 调整用户未销毁徽章数量
func (s *Store) IncrementUserTokenCount(address string, delta int64) error {
	err := s.db.Model(&model.User{}).
		Where("address = ?", model.NormalizeAddress(address)).
		Update("token_count", gorm.Expr("token_count + ?", delta)).Error
	if err != nil {
		return fmt.Errorf("调整用户徽章数量失败: %w", err)
	}
	return nil
}

// SetUserLock 设置合成锁定截止时间并刷新最后交易时间
func (s *Store) SetUserLock(address string, lockEnd, txTime time.Time) error {
	err := s.db.Model(&model.User{}).
		Where("address = ?", model.NormalizeAddress(address)).
		Updates(map[string]interface{}{
			"lock_end_time":       lockEnd,
			"last_transaction_at": txTime,
		}).Error
	if err != nil {
		return fmt.Errorf("设置用户锁定时间失败: %w", err)
	}
	return nil
}

// GetUserByAddress 按地址查用户
func (s *Store) GetUserByAddress(address string) (*model.User, error) {
	var user model.User
	err := s.db.Where("address = ?", model.NormalizeAddress(address)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// InsertProject 插入项目记录
// on_chain_id 唯一索引命中时返回 ErrDuplicate
func (s *Store) InsertProject(project *model.Project) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "on_chain_id"}},
		DoNothing: true,
	}).Create(project)
	if result.Error != nil {
		return fmt.Errorf("创建项目记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetProjectByOnChainID 按链上项目ID查项目
func (s *Store) GetProjectByOnChainID(onChainId uint64) (*model.Project, error) {
	var project model.Project
	err := s.db.Where("on_chain_id = ?", onChainId).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	return &project, nil
}

// IncrementProjectRaised 累加项目筹款总额
func (s *Store) IncrementProjectRaised(onChainId uint64, amount *big.Int) error {
	err := s.db.Model(&model.Project{}).
		Where("on_chain_id = ?", onChainId).
		Update("total_raised", gorm.Expr("total_raised + ?", amount.String())).Error
	if err != nil {
		return fmt.Errorf("累加项目筹款总额失败: %w", err)
	}
	return nil
}

// InsertDonation 插入捐赠记录
// tx_hash 唯一索引命中时返回 ErrDuplicate，调用方据此跳过所有关联自增
func (s *Store) InsertDonation(donation *model.Donation) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Create(donation)
	if result.Error != nil {
		return fmt.Errorf("创建捐赠记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// InsertToken 插入徽章记录
// token_id 唯一索引命中时返回 ErrDuplicate
func (s *Store) InsertToken(token *model.Token) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoNothing: true,
	}).Create(token)
	if result.Error != nil {
		return fmt.Errorf("创建徽章记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetConversionByTxHash 按交易哈希查合成记录
func (s *Store) GetConversionByTxHash(txHash string) (*model.TokenConversion, error) {
	var conversion model.TokenConversion
	err := s.db.Where("tx_hash = ?", txHash).First(&conversion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询合成记录失败: %w", err)
	}
	return &conversion, nil
}

// InsertConversion 插入合成审计记录
// tx_hash 唯一索引命中时返回 ErrDuplicate
func (s *Store) InsertConversion(conversion *model.TokenConversion) error {
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Create(conversion)
	if result.Error != nil {
		return fmt.Errorf("创建合成记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// MarkTokensBurned 标记徽章已销毁，返回实际转换的行数
// WHERE is_burned = false 保证 false→true 单向转换，重复投递不会重复计数
func (s *Store) MarkTokensBurned(tokenIds []uint64) (int64, error) {
	if len(tokenIds) == 0 {
		return 0, nil
	}
	result := s.db.Model(&model.Token{}).
		Where("token_id IN ? AND is_burned = ?", tokenIds, false).
		Update("is_burned", true)
	if result.Error != nil {
		return 0, fmt.Errorf("标记徽章销毁失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetTokensByIDs 按 tokenId 列表查徽章
func (s *Store) GetTokensByIDs(tokenIds []uint64) ([]model.Token, error) {
	var tokens []model.Token
	if len(tokenIds) == 0 {
		return tokens, nil
	}
	if err := s.db.Where("token_id IN ?", tokenIds).Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("查询徽章失败: %w", err)
	}
	return tokens, nil
}

// GetTokensByOwner 查某地址持有的全部未销毁徽章
func (s *Store) GetTokensByOwner(address string) ([]model.Token, error) {
	var tokens []model.Token
	err := s.db.Where("owner = ? AND is_burned = ?", model.NormalizeAddress(address), false).
		Order("token_id ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户徽章失败: %w", err)
	}
	return tokens, nil
}
