package rembg

import (
	"errors"
	"fmt"
)

var (
	// ErrInputNotFound 源图片不存在或无法解码
	ErrInputNotFound = errors.New("rembg: input image not found")

	// ErrDimensionMismatch mask 与图片尺寸不一致
	ErrDimensionMismatch = errors.New("rembg: mask dimensions do not match image")

	// ErrInvalidSourceDimensions 宽或高 <= 0
	ErrInvalidSourceDimensions = errors.New("rembg: invalid source dimensions")

	// ErrSegmentationFailed 分割服务失败，原样透传，不重试
	ErrSegmentationFailed = errors.New("rembg: segmentation failed")

	// ErrImageTooSmall 图片任一边小于最小输入尺寸
	ErrImageTooSmall = errors.New("rembg: image is smaller than the minimum input dimension")

	ErrEncodeFailed = errors.New("rembg: encode output failed")
)

// DimensionMismatchError 同时记录图片和 mask 的尺寸
type DimensionMismatchError struct {
	ImageWidth, ImageHeight int
	MaskWidth, MaskHeight   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%v: image %dx%d, mask %dx%d",
		ErrDimensionMismatch, e.ImageWidth, e.ImageHeight, e.MaskWidth, e.MaskHeight)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// SegmentationError 分割器返回的错误，Err 保持原样
type SegmentationError struct {
	Segmenter string
	Err       error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrSegmentationFailed, e.Segmenter, e.Err)
}

func (e *SegmentationError) Is(target error) bool {
	return target == ErrSegmentationFailed
}

func (e *SegmentationError) Unwrap() error {
	return e.Err
}
