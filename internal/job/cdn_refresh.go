package job

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/cron"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/oss"
)

var _ cron.Job = (*CdnRefreshJob)(nil)

// CdnRefreshJob 定期刷新 CDN 分发配置快照。
// 存储实现不支持刷新时（非 S3 供应商）任务空转。
type CdnRefreshJob struct {
	cron.BaseJob
	storage oss.Storage
	log     *log.Helper
}

func NewCdnRefreshJob(storage oss.Storage, logger log.Logger) *CdnRefreshJob {
	return &CdnRefreshJob{
		BaseJob: cron.BaseJob{
			JobName: "CdnRefreshJob",
			JobSpec: cron.EveryFiveMinutesSpec,
			JobDesc: "刷新 CDN 分发配置快照",
		},
		storage: storage,
		log:     log.NewHelper(logger),
	}
}

func (j *CdnRefreshJob) Run() {
	refresher, ok := j.storage.(oss.ConfigRefresher)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	refresher.RefreshConfig(ctx)
}
