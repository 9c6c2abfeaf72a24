package segment

import (
	"context"
	"image"

	"github.com/chaos-io/localrembg/rembg/mask"
	"github.com/disintegration/imaging"
)

const AlphaName = "alpha"

// Alpha 直接使用图片已有的 alpha 通道作为 mask，适合已经抠过图的输入
type Alpha struct{}

func NewAlpha() *Alpha {
	return &Alpha{}
}

func (a *Alpha) Name() string {
	return AlphaName
}

func (a *Alpha) Segment(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, ok := img.(*image.NRGBA)
	if !ok || src.Rect.Min != (image.Point{}) {
		src = imaging.Clone(img)
	}
	if !hasUsefulAlpha(src) {
		return nil, ErrNoSubject
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	m := mask.New(w, h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			m.Values[y*w+x] = float32(row[x*4+3]) / 255
		}
	}
	return m, nil
}

// hasUsefulAlpha 检查 alpha 通道是否 真的包含透明信息
// 只要存在非 255（非完全不透明），就认为“已有抠图”
func hasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}
