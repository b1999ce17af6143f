package task

import (
	"sync"
	"time"

	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/config"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/logger"
	"github.com/Yoann-Michon/5Bloc-Donation-Hub-sub001/internal/store"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
)

// reconcilePoolSize 对账并发度
const reconcilePoolSize = 8

// ReconcileJob 非规范化计数器对账任务
// total_raised 和 token_count 是事件累加出来的缓存字段，真值是
// 底层 Donation/Token 记录的汇总；发现分歧时记日志并用汇总值修复
type ReconcileJob struct {
	store    *store.Store
	interval time.Duration
}

// NewReconcileJob 创建对账任务
func NewReconcileJob(st *store.Store, cfg *config.Config) *ReconcileJob {
	interval := time.Duration(cfg.Task.ReconcileInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconcileJob{store: st, interval: interval}
}

// GetName 任务名称
func (j *ReconcileJob) GetName() string {
	return "reconcile_job"
}

// GetSchedule 任务调度定义
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行对账
func (j *ReconcileJob) Execute() {
	logger.Info("Starting denormalized counter reconciliation")
	start := time.Now()

	j.reconcileProjects()
	j.reconcileUsers()

	logger.Info("Reconciliation finished in %s", time.Since(start))
}

// reconcileProjects 校对项目筹款额
func (j *ReconcileJob) reconcileProjects() {
	projectIds, err := j.store.ListProjectIDs()
	if err != nil {
		logger.Error("Reconcile: failed to list projects: %v", err)
		return
	}
	if len(projectIds) == 0 {
		return
	}

	pool, err := ants.NewPool(reconcilePoolSize)
	if err != nil {
		logger.Error("Reconcile: failed to create pool: %v", err)
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, id := range projectIds {
		projectId := id
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			j.reconcileProject(projectId)
		})
		if submitErr != nil {
			wg.Done()
			logger.Error("Reconcile: failed to submit task for project %d: %v", projectId, submitErr)
		}
	}
	wg.Wait()
}

// reconcileProject 校对单个项目
func (j *ReconcileJob) reconcileProject(projectId uint64) {
	sum, err := j.store.SumDonationsForProject(projectId)
	if err != nil {
		logger.Error("Reconcile: failed to sum donations for project %d: %v", projectId, err)
		return
	}

	project, err := j.store.GetProjectByOnChainID(projectId)
	if err != nil {
		logger.Error("Reconcile: failed to load project %d: %v", projectId, err)
		return
	}

	if project.TotalRaised.Cmp(sum) == 0 {
		return
	}

	logger.Warn("Reconcile: project %d total_raised drift (counter=%s, sum=%s), repairing",
		projectId, project.TotalRaised.String(), sum.String())
	if err := j.store.SetProjectRaised(projectId, sum); err != nil {
		logger.Error("Reconcile: failed to repair project %d: %v", projectId, err)
	}
}

// reconcileUsers 校对用户徽章数
func (j *ReconcileJob) reconcileUsers() {
	addresses, err := j.store.ListUserAddresses()
	if err != nil {
		logger.Error("Reconcile: failed to list users: %v", err)
		return
	}

	for _, address := range addresses {
		count, err := j.store.CountActiveTokensByOwner(address)
		if err != nil {
			logger.Error("Reconcile: failed to count tokens for %s: %v", address, err)
			continue
		}

		user, err := j.store.GetUserByAddress(address)
		if err != nil {
			logger.Error("Reconcile: failed to load user %s: %v", address, err)
			continue
		}

		if user.TokenCount == count {
			continue
		}

		logger.Warn("Reconcile: user %s token_count drift (counter=%d, count=%d), repairing",
			address, user.TokenCount, count)
		if err := j.store.SetUserTokenCount(address, count); err != nil {
			logger.Error("Reconcile: failed to repair user %s: %v", address, err)
		}
	}
}
