package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"time"

	"github.com/chaos-io/localrembg/rembg/segment"
	"github.com/chaos-io/localrembg/util"
	"go.uber.org/zap"
)

// Config Remover 的默认参数
type Config struct {
	Options
	// MinInputDimension 输入图片宽高下限，0 表示不检查
	MinInputDimension int
	// WorkingSize 分割前最长边上限，0 表示不缩放
	WorkingSize int
}

func DefaultConfig() Config {
	return Config{
		Options:           DefaultOptions(),
		MinInputDimension: MinInputDimension,
		WorkingSize:       1024,
	}
}

// Remover 背景去除流程：准备输入 -> 分割 -> 合成 -> PNG 编码。
// Remover 没有可变状态，可以被多个 goroutine 同时使用。
type Remover struct {
	segmenter segment.Segmenter
	cfg       Config
}

func NewRemover(seg segment.Segmenter, cfg Config) *Remover {
	return &Remover{segmenter: seg, cfg: cfg}
}

// Options 返回默认合成参数，调用方可以在此基础上按次覆盖
func (r *Remover) Options() Options {
	return r.cfg.Options
}

// Remove 对已解码的图片去背景，opts 只作用于本次调用
func (r *Remover) Remove(ctx context.Context, img image.Image, opts Options) (*image.RGBA, error) {
	prepared, err := Prepare(img, r.cfg.MinInputDimension, r.cfg.WorkingSize)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := r.segmenter.Segment(ctx, prepared)
	if err != nil {
		return nil, &SegmentationError{Segmenter: r.segmenter.Name(), Err: err}
	}
	util.Logger.Debug("segmented",
		zap.String("segmenter", r.segmenter.Name()),
		zap.Duration("cost", time.Since(start)))

	out, err := Composite(prepared, m, opts)
	if err != nil {
		return nil, err
	}

	util.Logger.Debug("composited",
		zap.Stringer("input", img.Bounds().Size()),
		zap.Stringer("output", out.Bounds().Size()),
		zap.Bool("crop_to_content", opts.CropToContent),
		zap.Stringer("fill", opts.Fill))
	return out, nil
}

// RemoveFile 读取 path 上的图片去背景，返回 PNG 字节
func (r *Remover) RemoveFile(ctx context.Context, path string, opts Options) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInputNotFound)
	}

	img, err := util.OpenImage(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInputNotFound, path, err)
	}

	out, err := r.Remove(ctx, img, opts)
	if err != nil {
		return nil, err
	}
	return EncodePNG(out)
}

// EncodePNG 编码为 PNG 字节
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}
