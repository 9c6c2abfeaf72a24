package rembg

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/chaos-io/localrembg/rembg/mask"
	"github.com/disintegration/imaging"
)

const (
	// TargetWidth 输出图片固定宽度
	TargetWidth = 1080
	// BackgroundThreshold 见 mask.BackgroundThreshold
	BackgroundThreshold = mask.BackgroundThreshold
	// MinInputDimension 输入图片任一边不得小于该值
	MinInputDimension = 600
)

// FillMode 画布背景填充方式
type FillMode int

const (
	FillTransparent FillMode = iota
	FillWhite
)

func (f FillMode) String() string {
	if f == FillWhite {
		return "white"
	}
	return "transparent"
}

func ParseFillMode(s string) (FillMode, error) {
	switch s {
	case "", "transparent":
		return FillTransparent, nil
	case "white":
		return FillWhite, nil
	default:
		return FillTransparent, fmt.Errorf("unknown fill mode %q", s)
	}
}

// Options 合成参数
//
//	CropToContent 裁剪到前景 bounding box，否则保持原尺寸只清空背景
//	Fill          画布背景
//	TargetWidth   输出宽度，0 表示 1080
//	CanvasHeight  画布高度，0 表示与缩放后的图片等高（透明输出）；
//	              大于 0 时图片在画布上居中（白底旧版输出）
//	Threshold     背景阈值，0 表示 100
type Options struct {
	CropToContent bool
	Fill          FillMode
	TargetWidth   int
	CanvasHeight  int
	Threshold     int
}

func DefaultOptions() Options {
	return Options{
		CropToContent: true,
		Fill:          FillTransparent,
		TargetWidth:   TargetWidth,
		Threshold:     BackgroundThreshold,
	}
}

func (o Options) targetWidth() int {
	if o.TargetWidth > 0 {
		return o.TargetWidth
	}
	return TargetWidth
}

func (o Options) threshold() int {
	if o.Threshold > 0 {
		return o.Threshold
	}
	return BackgroundThreshold
}

// CropRect 前景 bounding box，边界为闭区间
type CropRect struct {
	MinX, MinY, MaxX, MaxY int
}

func (r CropRect) Empty() bool {
	return r.MaxX < r.MinX || r.MaxY < r.MinY
}

func (r CropRect) Dx() int { return r.MaxX - r.MinX + 1 }
func (r CropRect) Dy() int { return r.MaxY - r.MinY + 1 }

// Rect 转成半开区间的 image.Rectangle
func (r CropRect) Rect() image.Rectangle {
	return image.Rect(r.MinX, r.MinY, r.MaxX+1, r.MaxY+1)
}

func fullRect(w, h int) CropRect {
	return CropRect{MinX: 0, MinY: 0, MaxX: w - 1, MaxY: h - 1}
}

// Classification 逐像素分类的结果
type Classification struct {
	// Image 工作副本，背景像素已清成全透明
	Image *image.NRGBA
	// Crop 前景 bounding box；没有前景时为整张图
	Crop CropRect
	// Foreground 参与 bounding box 的前景像素数
	Foreground int
}

// Classify 按 mask 把背景像素清成全透明，同时计算前景 bounding box。
// 只有原图本身不是全透明的前景像素才计入 bounding box。
// 输入图片不会被修改。
func Classify(img image.Image, m *mask.ConfidenceMask, threshold int) (*Classification, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSourceDimensions, w, h)
	}
	if m == nil {
		return nil, &DimensionMismatchError{ImageWidth: w, ImageHeight: h}
	}
	if m.Width != w || m.Height != h || len(m.Values) != w*h {
		return nil, &DimensionMismatchError{ImageWidth: w, ImageHeight: h, MaskWidth: m.Width, MaskHeight: m.Height}
	}

	work := imaging.Clone(img)

	minX, minY := w, h
	maxX, maxY := -1, -1
	count := 0

	for y := 0; y < h; y++ {
		row := work.Pix[y*work.Stride : y*work.Stride+w*4]
		values := m.Values[y*w : (y+1)*w]
		for x, v := range values {
			px := row[x*4 : x*4+4 : x*4+4]
			if mask.IsBackground(v, threshold) {
				px[0], px[1], px[2], px[3] = 0, 0, 0, 0
				continue
			}
			if px[3] == 0 {
				continue
			}
			count++
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}

	crop := CropRect{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
	if count == 0 {
		crop = fullRect(w, h)
	}

	return &Classification{Image: work, Crop: crop, Foreground: count}, nil
}

// Composite 把 mask 作用到图片上：分类、裁剪、缩放到固定宽度、铺到画布上。
// 返回的图片交给 PNG 编码。
func Composite(img image.Image, m *mask.ConfidenceMask, opts Options) (*image.RGBA, error) {
	c, err := Classify(img, m, opts.threshold())
	if err != nil {
		return nil, err
	}

	var out image.Image = c.Image
	if opts.CropToContent {
		out = imaging.Crop(c.Image, c.Crop.Rect())
	}

	width := opts.targetWidth()
	resized := ResizeToWidth(out, width)
	return Compose(resized, width, opts.CanvasHeight, opts.Fill), nil
}

// Compose 新建 width x canvasHeight 的画布，填充背景后把 img 居中画上去。
// canvasHeight <= 0 时画布与 img 等高；img 超出画布的部分被裁掉。
func Compose(img image.Image, width, canvasHeight int, fill FillMode) *image.RGBA {
	ib := img.Bounds()
	if canvasHeight <= 0 {
		canvasHeight = ib.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, canvasHeight))
	if fill == FillWhite {
		draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	}

	left := (width - ib.Dx()) / 2
	top := (canvasHeight - ib.Dy()) / 2
	dst := image.Rect(left, top, left+ib.Dx(), top+ib.Dy())
	draw.Draw(canvas, dst, img, ib.Min, draw.Over)

	return canvas
}
