package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/chaos-io/localrembg/rembg/mask"
	"github.com/chaos-io/localrembg/util"
	"go.uber.org/zap"
)

// Chain 按顺序尝试分割器：前一个失败或者没有检测到主体时换下一个
type Chain struct {
	segmenters []Segmenter
	threshold  int
}

// NewChain threshold 用来判断 mask 中是否有主体，0 表示使用 mask.BackgroundThreshold
func NewChain(threshold int, segmenters ...Segmenter) (*Chain, error) {
	if len(segmenters) == 0 {
		return nil, ErrNoSegmenter
	}
	if threshold <= 0 {
		threshold = mask.BackgroundThreshold
	}
	return &Chain{segmenters: segmenters, threshold: threshold}, nil
}

func (c *Chain) Name() string {
	names := make([]string, len(c.segmenters))
	for i, s := range c.segmenters {
		names[i] = s.Name()
	}
	return strings.Join(names, "->")
}

func (c *Chain) Segment(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
	var errs []error

	for i, s := range c.segmenters {
		m, err := s.Segment(ctx, img)
		if err == nil && (m == nil || m.CountForeground(c.threshold) == 0) {
			err = ErrNoSubject
		}
		if err == nil {
			if i > 0 {
				util.Logger.Info("fallback segmenter succeeded",
					zap.String("segmenter", s.Name()),
					zap.Int("index", i))
			}
			return m, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		util.Logger.Warn("segmenter failed, trying next",
			zap.String("segmenter", s.Name()),
			zap.Int("index", i),
			zap.Error(err))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// ChainError 汇总 Chain 中每个分割器的错误
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("segment chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("segment chain: all %d segmenters failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap 让 errors.Is 能匹配任意一个分割器的错误
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

// IsNoSubject 所有分割器都成功返回但都没有主体
func (e *ChainError) IsNoSubject() bool {
	for _, err := range e.Errors {
		if !errors.Is(err, ErrNoSubject) {
			return false
		}
	}
	return len(e.Errors) > 0
}
