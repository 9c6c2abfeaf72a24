// Package segment 对接外部的人像/主体分割服务。
// 分割模型本身不在本仓库内，这里只定义调用约定：输入一张图片，
// 返回同尺寸、数值在 [0,1] 的前景概率 mask。
package segment

import (
	"context"
	"errors"
	"image"

	"github.com/chaos-io/localrembg/rembg/mask"
)

var (
	// ErrNoSubject 分割成功，但阈值下没有任何前景像素
	ErrNoSubject = errors.New("segment: no subject detected")

	// ErrNoSegmenter Chain 里没有可用的分割器
	ErrNoSegmenter = errors.New("segment: no segmenter configured")
)

type Segmenter interface {
	// Name 用于日志和错误信息
	Name() string
	// Segment 返回与 img 同尺寸的前景概率 mask
	Segment(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error)
}
