package rembg

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

// resizeWithinMax 缩放（最长边 <= maxSize），分割前使用
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return toNRGBA(resized)
}

// targetHeight 等比例高度：round(width * srcH / srcW)，至少 1
func targetHeight(width, srcW, srcH int) int {
	h := int(math.Round(float64(width) * float64(srcH) / float64(srcW)))
	return max(1, h)
}

// ResizeToWidth 等比例缩放到固定宽度，双线性插值
func ResizeToWidth(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	height := targetHeight(width, b.Dx(), b.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// toNRGBA 转为原点在 (0,0) 的 NRGBA，方便统一按 Pix 下标处理
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(img)
}
