package server

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/sober-studio/asset-vault-go-kratos/internal/job"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/cron"
)

func NewCronServer(
	logger log.Logger,
	cdnRefresh *job.CdnRefreshJob,
) *cron.Server {
	srv := cron.NewServer(logger)

	srv.AddJob(cdnRefresh)

	return srv
}
