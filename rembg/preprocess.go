package rembg

import (
	"fmt"
	"image"
)

// Prepare 把任意输入图片变成分割器的输入
//
//	宽高都 >= minDimension（0 表示不检查）
//	最长边 <= workingSize（0 表示不缩放）
//	NRGBA、原点在 (0,0)
//
// 分割器返回的 mask 与 Prepare 的输出同尺寸，合成也在这个分辨率上进行。
func Prepare(input image.Image, minDimension, workingSize int) (*image.NRGBA, error) {
	b := input.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSourceDimensions, b.Dx(), b.Dy())
	}

	// 1. 最小尺寸
	if minDimension > 0 && (b.Dx() < minDimension || b.Dy() < minDimension) {
		return nil, fmt.Errorf("%w: %dx%d, need at least %d", ErrImageTooSmall, b.Dx(), b.Dy(), minDimension)
	}

	// 2. 转为 NRGBA
	src := toNRGBA(input)

	// 3. 缩放到工作尺寸
	return resizeWithinMax(src, workingSize), nil
}
