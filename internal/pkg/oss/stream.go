package oss

import (
	"context"
	"io"
)

// pipeUpload 用普通 Upload 实现 OpenUpload 的通用管道：调用方写 pw，
// 后台 goroutine 从 pr 读并完成实际写入，结果经 Done 返回。
func pipeUpload(ctx context.Context, s Storage, name, contentType string, isPrivate bool) (*UploadStream, error) {
	key := s.ObjectKey(ctx, name)
	url := s.ObjectURL(ctx, key, false)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := s.Upload(ctx, name, pr, -1, contentType, isPrivate)
		if err != nil {
			pr.CloseWithError(err)
		}
		done <- err
	}()

	return &UploadStream{
		Key:  key,
		URL:  url,
		Body: pw,
		Done: done,
	}, nil
}
