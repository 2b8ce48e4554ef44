package service

import (
	"io"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"github.com/sober-studio/asset-vault-go-kratos/internal/biz"
)

// AssetService 文件上传下载服务
type AssetService struct {
	uc  *biz.AssetUseCase
	log *log.Helper
}

func NewAssetService(uc *biz.AssetUseCase, logger log.Logger) *AssetService {
	return &AssetService{uc: uc, log: log.NewHelper(logger)}
}

// AssetReply 文件元数据返回体
type AssetReply struct {
	FileKey    string `json:"file_key"`
	FileUrl    string `json:"file_url"`
	FileName   string `json:"file_name"`
	FileSize   int64  `json:"file_size"`
	IsPrivate  bool   `json:"is_private"`
	UploadedAt int64  `json:"uploaded_at"`
}

func toAssetReply(a *biz.Asset) *AssetReply {
	uploadedAt := a.CreatedAt.Unix()
	if a.CreatedAt.IsZero() {
		uploadedAt = time.Now().Unix()
	}
	return &AssetReply{
		FileKey:    a.Key,
		FileUrl:    a.URL,
		FileName:   a.Name,
		FileSize:   a.Size,
		IsPrivate:  a.IsPrivate,
		UploadedAt: uploadedAt,
	}
}

// Upload 表单上传
// POST /v1/assets  multipart: file, scene
func (s *AssetService) Upload(ctx khttp.Context) error {
	return s.upload(ctx, false)
}

// UploadProtected 表单上传，强制私有
// POST /v1/assets/protected
func (s *AssetService) UploadProtected(ctx khttp.Context) error {
	return s.upload(ctx, true)
}

func (s *AssetService) upload(ctx khttp.Context, protected bool) error {
	req := ctx.Request()

	// "file" 需与前端 FormData 中的 key 保持一致
	file, header, err := req.FormFile("file")
	if err != nil {
		return errors.BadRequest("FILE_MISSING", "file is required")
	}
	defer file.Close()

	input := &biz.UploadFileInput{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
		Scene:       req.FormValue("scene"),
		Protected:   protected,
	}

	asset, err := s.uc.UploadFile(ctx, input)
	if err != nil {
		return err
	}
	return ctx.Result(200, toAssetReply(asset))
}

// UploadStream 流式上传，请求体即文件内容
// PUT /v1/assets/stream?scene=&name=
func (s *AssetService) UploadStream(ctx khttp.Context) error {
	req := ctx.Request()
	scene := req.URL.Query().Get("scene")
	name := req.URL.Query().Get("name")
	if name == "" {
		return errors.BadRequest("FILE_NAME_MISSING", "name is required")
	}
	contentType := req.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	stream, err := s.uc.OpenUploadStream(ctx, scene, name, contentType)
	if err != nil {
		return err
	}

	if _, err := io.Copy(stream.Body, req.Body); err != nil {
		_ = stream.Body.Close()
		<-stream.Done
		// 场景校验产生的是带 reason 的业务错误，原样返回
		if errors.Code(err) < 500 {
			return err
		}
		return biz.ErrUploadFileFailed
	}
	if err := stream.Body.Close(); err != nil {
		if errors.Code(err) < 500 {
			return err
		}
		return biz.ErrUploadFileFailed
	}
	if err := <-stream.Done; err != nil {
		return err
	}

	return ctx.Result(200, &AssetReply{
		FileKey:    stream.Key,
		FileUrl:    stream.URL,
		FileName:   name,
		UploadedAt: time.Now().Unix(),
	})
}

// Download 下载文件内容
// GET /v1/assets/download?key=
func (s *AssetService) Download(ctx khttp.Context) error {
	key := ctx.Request().URL.Query().Get("key")
	if key == "" {
		return errors.BadRequest("FILE_KEY_MISSING", "key is required")
	}

	body, err := s.uc.DownloadStream(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	w := ctx.Response()
	contentType := "application/octet-stream"
	if asset, aerr := s.uc.GetAsset(ctx, key); aerr == nil && asset.ContentType != "" {
		contentType = asset.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	_, err = io.Copy(w, body)
	return err
}

// PresignedUrlReply 限时下载链接返回体
type PresignedUrlReply struct {
	Url string `json:"url"`
}

// PresignedURL 获取限时下载链接
// GET /v1/assets/url?key=
func (s *AssetService) PresignedURL(ctx khttp.Context) error {
	key := ctx.Request().URL.Query().Get("key")
	if key == "" {
		return errors.BadRequest("FILE_KEY_MISSING", "key is required")
	}
	u, err := s.uc.PresignedDownloadURL(ctx, key)
	if err != nil {
		return err
	}
	return ctx.Result(200, &PresignedUrlReply{Url: u})
}

// ListAssetsReply 分页返回体
type ListAssetsReply struct {
	Items []*AssetReply `json:"items"`
}

// List 按场景分页查询
// GET /v1/assets?scene=&limit=&offset=
func (s *AssetService) List(ctx khttp.Context) error {
	q := ctx.Request().URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	assets, err := s.uc.ListAssets(ctx, q.Get("scene"), limit, offset)
	if err != nil {
		return err
	}

	items := make([]*AssetReply, 0, len(assets))
	for _, a := range assets {
		items = append(items, toAssetReply(a))
	}
	return ctx.Result(200, &ListAssetsReply{Items: items})
}

// Delete 删除文件及其记录
// DELETE /v1/assets?key=
func (s *AssetService) Delete(ctx khttp.Context) error {
	key := ctx.Request().URL.Query().Get("key")
	if key == "" {
		return errors.BadRequest("FILE_KEY_MISSING", "key is required")
	}
	if err := s.uc.DeleteFile(ctx, key); err != nil {
		return err
	}
	return ctx.Result(200, map[string]string{"file_key": key})
}
