package segment

import (
	"context"
	"image"
	"sync"

	"github.com/chaos-io/localrembg/rembg/mask"
)

// Mock 测试用分割器
type Mock struct {
	// SegmentFunc 为 nil 时返回全前景 mask
	SegmentFunc func(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error)
	MockName    string

	mu    sync.Mutex
	calls int
}

func NewMock() *Mock {
	return &Mock{MockName: "mock"}
}

// NewStaticMock 无论输入如何都返回 m
func NewStaticMock(m *mask.ConfidenceMask) *Mock {
	return &Mock{
		MockName: "mock",
		SegmentFunc: func(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
			return m, nil
		},
	}
}

// NewErrorMock 总是返回 err
func NewErrorMock(err error) *Mock {
	return &Mock{
		MockName: "mock",
		SegmentFunc: func(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
			return nil, err
		},
	}
}

func (m *Mock) Name() string {
	return m.MockName
}

func (m *Mock) Segment(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.SegmentFunc != nil {
		return m.SegmentFunc(ctx, img)
	}
	b := img.Bounds()
	out := mask.New(b.Dx(), b.Dy())
	out.Fill(1)
	return out, nil
}

// Calls 返回 Segment 被调用的次数
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
