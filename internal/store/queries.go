package store

import (
	"fmt"
	"math/big"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
)

// 读路径和对账任务用的查询，全部走派生表，不回放原始事件

// ListProjects 分页获取项目列表
func (s *Store) ListProjects(activeOnly bool, page, pageSize int) ([]model.Project, int64, error) {
	var projects []model.Project
	var total int64

	query := s.db.Model(&model.Project{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("on_chain_id ASC").Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目列表失败: %w", err)
	}

	return projects, total, nil
}

// ListDonationsByProject 分页获取项目的捐赠记录
func (s *Store) ListDonationsByProject(onChainId uint64, page, pageSize int) ([]model.Donation, int64, error) {
	var donations []model.Donation
	var total int64

	query := s.db.Model(&model.Donation{}).Where("project_id = ?", onChainId)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取捐赠总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("block_num DESC").Find(&donations).Error; err != nil {
		return nil, 0, fmt.Errorf("获取捐赠列表失败: %w", err)
	}

	return donations, total, nil
}

// Leaderboard 按累计捐赠金额取前 limit 名用户
func (s *Store) Leaderboard(limit int) ([]model.User, error) {
	var users []model.User
	err := s.db.Where("total_donated > ?", "0").
		Order("total_donated DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("获取排行榜失败: %w", err)
	}
	return users, nil
}

// GlobalStats 全局统计
type GlobalStats struct {
	TotalProjects  int64        `json:"total_projects"`
	ActiveProjects int64        `json:"active_projects"`
	TotalDonations int64        `json:"total_donations"`
	TotalRaised    model.BigInt `json:"total_raised"`
	DonorCount     int64        `json:"donor_count"`
}

// GetGlobalStats 汇总全局统计信息
func (s *Store) GetGlobalStats() (*GlobalStats, error) {
	var stats GlobalStats

	if err := s.db.Model(&model.Project{}).Count(&stats.TotalProjects).Error; err != nil {
		return nil, fmt.Errorf("统计项目总数失败: %w", err)
	}
	if err := s.db.Model(&model.Project{}).Where("is_active = ?", true).Count(&stats.ActiveProjects).Error; err != nil {
		return nil, fmt.Errorf("统计活跃项目数失败: %w", err)
	}
	if err := s.db.Model(&model.Donation{}).Count(&stats.TotalDonations).Error; err != nil {
		return nil, fmt.Errorf("统计捐赠总数失败: %w", err)
	}
	if err := s.db.Model(&model.Donation{}).Distinct("donor").Count(&stats.DonorCount).Error; err != nil {
		return nil, fmt.Errorf("统计捐赠人数失败: %w", err)
	}

	row := s.db.Model(&model.Donation{}).Select("COALESCE(SUM(amount), 0)").Row()
	if err := row.Scan(&stats.TotalRaised); err != nil {
		return nil, fmt.Errorf("统计捐赠总额失败: %w", err)
	}

	return &stats, nil
}

// SumDonationsForProject 从捐赠记录汇总项目筹款额
// 非规范化的 total_raised 出现分歧时以这个汇总为准
func (s *Store) SumDonationsForProject(onChainId uint64) (*big.Int, error) {
	var sum model.BigInt
	row := s.db.Model(&model.Donation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("project_id = ?", onChainId).
		Row()
	if err := row.Scan(&sum); err != nil {
		return nil, fmt.Errorf("汇总项目捐赠额失败: %w", err)
	}
	return new(big.Int).Set(&sum.Int), nil
}

// CountActiveTokensByOwner 从徽章记录统计某地址的未销毁徽章数
// 非规范化的 token_count 出现分歧时以这个统计为准
func (s *Store) CountActiveTokensByOwner(address string) (int64, error) {
	var count int64
	err := s.db.Model(&model.Token{}).
		Where("owner = ? AND is_burned = ?", model.NormalizeAddress(address), false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计用户徽章数失败: %w", err)
	}
	return count, nil
}

// ListProjectIDs 获取全部链上项目ID
func (s *Store) ListProjectIDs() ([]uint64, error) {
	var ids []uint64
	if err := s.db.Model(&model.Project{}).Order("on_chain_id ASC").Pluck("on_chain_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("获取项目ID列表失败: %w", err)
	}
	return ids, nil
}

// ListUserAddresses 获取全部用户地址
func (s *Store) ListUserAddresses() ([]string, error) {
	var addresses []string
	if err := s.db.Model(&model.User{}).Pluck("address", &addresses).Error; err != nil {
		return nil, fmt.Errorf("获取用户地址列表失败: %w", err)
	}
	return addresses, nil
}

// SetProjectRaised 用汇总值覆盖项目筹款额（对账修复用）
func (s *Store) SetProjectRaised(onChainId uint64, amount *big.Int) error {
	err := s.db.Model(&model.Project{}).
		Where("on_chain_id = ?", onChainId).
		Update("total_raised", amount.String()).Error
	if err != nil {
		return fmt.Errorf("修复项目筹款额失败: %w", err)
	}
	return nil
}

// SetUserTokenCount 用统计值覆盖用户徽章数（对账修复用）
func (s *Store) SetUserTokenCount(address string, count int64) error {
	err := s.db.Model(&model.User{}).
		Where("address = ?", model.NormalizeAddress(address)).
		Update("token_count", count).Error
	if err != nil {
		return fmt.Errorf("修复用户徽章数失败: %w", err)
	}
	return nil
}
