package server

import (
	"time"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/debug"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/render"
	"github.com/sober-studio/asset-vault-go-kratos/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	asset *service.AssetService,
	logger log.Logger,
) *http.Server {

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
		http.Filter(debug.Filter),
		http.ResponseEncoder(render.ResponseEncoder),
		http.ErrorEncoder(render.ErrorEncoder),
	}

	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout > 0 {
		opts = append(opts, http.Timeout(time.Duration(c.Http.Timeout)*time.Second))
	}

	srv := http.NewServer(opts...)

	r := srv.Route("/")
	r.POST("/v1/assets", asset.Upload)
	r.POST("/v1/assets/protected", asset.UploadProtected)
	r.PUT("/v1/assets/stream", asset.UploadStream)
	r.GET("/v1/assets", asset.List)
	r.GET("/v1/assets/download", asset.Download)
	r.GET("/v1/assets/url", asset.PresignedURL)
	r.DELETE("/v1/assets", asset.Delete)

	return srv
}
