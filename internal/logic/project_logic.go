package logic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/cache"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/model"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
)

// ProjectLogic 项目读路径业务逻辑
// 旁路缓存：先查缓存，未命中查派生表后回填。
// 缓存故障只记日志，降级为直接查库
type ProjectLogic struct {
	store *store.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewProjectLogic 创建项目业务逻辑
func NewProjectLogic(st *store.Store, c cache.Cache, ttl time.Duration) *ProjectLogic {
	return &ProjectLogic{store: st, cache: c, ttl: ttl}
}

// GetProject 获取项目详情
func (p *ProjectLogic) GetProject(ctx context.Context, onChainId uint64) (*model.Project, error) {
	key := cache.ProjectKey(onChainId)

	if p.cache != nil {
		if data, err := p.cache.Get(ctx, key); err == nil {
			var project model.Project
			if err := json.Unmarshal(data, &project); err == nil {
				return &project, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			logger.Warn("Cache read failed for %s: %v", key, err)
		}
	}

	project, err := p.store.GetProjectByOnChainID(onChainId)
	if err != nil {
		return nil, err
	}

	p.fill(ctx, key, project)
	return project, nil
}

// GetProjects 分页获取项目列表
func (p *ProjectLogic) GetProjects(activeOnly bool, page, pageSize int) ([]model.Project, int64, error) {
	return p.store.ListProjects(activeOnly, page, pageSize)
}

// GetProjectDonations 分页获取项目捐赠记录
func (p *ProjectLogic) GetProjectDonations(onChainId uint64, page, pageSize int) ([]model.Donation, int64, error) {
	return p.store.ListDonationsByProject(onChainId, page, pageSize)
}

// fill 回填缓存，失败只记日志
func (p *ProjectLogic) fill(ctx context.Context, key string, value interface{}) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, key, data, p.ttl); err != nil {
		logger.Warn("Cache fill failed for %s: %v", key, err)
	}
}
