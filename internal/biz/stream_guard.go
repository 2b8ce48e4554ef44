package biz

import (
	"io"
	"net/http"
)

// sniffLen 类型嗅探所需的字节数，与 http.DetectContentType 一致
const sniffLen = 512

var _ io.WriteCloser = (*streamGuard)(nil)

// streamGuard 让流式上传经过与表单上传相同的场景校验：
// 前 512 字节先缓冲，类型嗅探通过后才转发到底层管道；
// 写入字节数超过 maxSize 或类型不在白名单时中断底层管道使上传失败，
// 不会留下半截对象。
type streamGuard struct {
	dst          io.WriteCloser
	allowedTypes []string
	maxSize      int64

	head    []byte
	sniffed bool
	written int64
	err     error
}

func newStreamGuard(dst io.WriteCloser, allowedTypes []string, maxSize int64) *streamGuard {
	return &streamGuard{
		dst:          dst,
		allowedTypes: allowedTypes,
		maxSize:      maxSize,
		// 白名单为空时不做嗅探，直接透传
		sniffed: len(allowedTypes) == 0,
	}
}

func (g *streamGuard) Write(p []byte) (int, error) {
	if g.err != nil {
		return 0, g.err
	}

	total := len(p)
	g.written += int64(total)
	if g.maxSize > 0 && g.written > g.maxSize {
		return 0, g.abort(ErrUploadFileSizeExceeded)
	}

	if !g.sniffed {
		need := sniffLen - len(g.head)
		if len(p) < need {
			g.head = append(g.head, p...)
			return total, nil
		}
		g.head = append(g.head, p[:need]...)
		p = p[need:]
		if err := g.sniff(); err != nil {
			return 0, err
		}
	}

	if len(p) > 0 {
		if _, err := g.dst.Write(p); err != nil {
			g.err = err
			return 0, err
		}
	}
	return total, nil
}

// Close 在数据不足 512 字节时兜底嗅探，然后关闭底层管道
func (g *streamGuard) Close() error {
	if g.err != nil {
		return g.err
	}
	if !g.sniffed {
		if err := g.sniff(); err != nil {
			return err
		}
	}
	return g.dst.Close()
}

func (g *streamGuard) sniff() error {
	fileType := http.DetectContentType(g.head)
	if !typeAllowed(fileType, g.allowedTypes) {
		return g.abort(errTypeNotAllowed(fileType))
	}
	g.sniffed = true
	if len(g.head) > 0 {
		if _, err := g.dst.Write(g.head); err != nil {
			g.err = err
			return err
		}
	}
	g.head = nil
	return nil
}

// abort 记录校验错误并中断底层管道。io.Pipe 的写端支持 CloseWithError，
// 能让存储侧读到错误并放弃写入，而不是把已缓冲内容当作完整对象收尾。
func (g *streamGuard) abort(cause error) error {
	g.err = cause
	if c, ok := g.dst.(interface{ CloseWithError(error) error }); ok {
		_ = c.CloseWithError(cause)
	} else {
		_ = g.dst.Close()
	}
	return cause
}
