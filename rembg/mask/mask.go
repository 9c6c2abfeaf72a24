package mask

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
)

// Polarity 说明分割服务输出的数值含义
type Polarity int

const (
	// Foreground 数值越大越可能是主体
	Foreground Polarity = iota
	// Background 数值越大越可能是背景，解码时会被翻转成前景概率
	Background
)

func (p Polarity) String() string {
	if p == Background {
		return "background"
	}
	return "foreground"
}

// ParsePolarity 解析配置里的 polarity 字段，空串按 foreground 处理
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "", "foreground":
		return Foreground, nil
	case "background":
		return Background, nil
	default:
		return Foreground, fmt.Errorf("unknown mask polarity %q", s)
	}
}

// BackgroundThreshold 0-255 刻度上的背景阈值：(1-v)*255 >= 100 即背景，约等于 v <= 0.608
const BackgroundThreshold = 100

var ErrBufferSize = errors.New("mask buffer size does not match dimensions")

// IsBackground 按阈值判断单个像素是否为背景，计算保持 float32 精度
func IsBackground(v float32, threshold int) bool {
	score := (1.0 - v) * 255
	return score >= float32(threshold)
}

// ConfidenceMask 每个像素一个 [0,1] 的前景概率，行优先存储
type ConfidenceMask struct {
	Width  int
	Height int
	Values []float32
}

func New(width, height int) *ConfidenceMask {
	return &ConfidenceMask{
		Width:  width,
		Height: height,
		Values: make([]float32, width*height),
	}
}

func (m *ConfidenceMask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *ConfidenceMask) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

func (m *ConfidenceMask) Set(x, y int, v float32) {
	m.Values[y*m.Width+x] = v
}

// CountForeground 统计阈值下被判为前景的像素数
func (m *ConfidenceMask) CountForeground(threshold int) int {
	n := 0
	for _, v := range m.Values {
		if !IsBackground(v, threshold) {
			n++
		}
	}
	return n
}

// Fill 把整张 mask 设为同一个值
func (m *ConfidenceMask) Fill(v float32) {
	for i := range m.Values {
		m.Values[i] = v
	}
}

// FillRect 把 r 内（与 mask 相交部分）设为 v
func (m *ConfidenceMask) FillRect(r image.Rectangle, v float32) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.Values[y*m.Width : (y+1)*m.Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x] = v
		}
	}
}

// FromFloat32Bytes 解码 float32 原始缓冲区（selfie 分割器的输出格式）
// order 是缓冲区的字节序，polarity 是数值含义
func FromFloat32Bytes(buf []byte, width, height int, order binary.ByteOrder, polarity Polarity) (*ConfidenceMask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask dimensions %dx%d", width, height)
	}
	if len(buf) != width*height*4 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSize, len(buf), width*height*4)
	}

	m := New(width, height)
	for i := range m.Values {
		v := math.Float32frombits(order.Uint32(buf[i*4:]))
		m.Values[i] = normalize(v, polarity)
	}
	return m, nil
}

// FromGray 解码单通道 8bit mask（person segmentation 的 OneComponent8 输出）
func FromGray(g *image.Gray, polarity Polarity) *ConfidenceMask {
	b := g.Bounds()
	m := New(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+m.Width]
		for x, v := range row {
			m.Values[y*m.Width+x] = normalize(float32(v)/255, polarity)
		}
	}
	return m
}

// FromImage 任意图像按亮度解码，PNG mask 通常不是 *image.Gray
func FromImage(img image.Image, polarity Polarity) *ConfidenceMask {
	if g, ok := img.(*image.Gray); ok {
		return FromGray(g, polarity)
	}

	b := img.Bounds()
	m := New(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := (299*r + 587*g + 114*bl) / 1000
			m.Values[y*m.Width+x] = normalize(float32(lum)/0xffff, polarity)
		}
	}
	return m
}

// Float32Bytes 按 order 编码成原始缓冲区，FromFloat32Bytes 的逆操作（不做翻转）
func (m *ConfidenceMask) Float32Bytes(order binary.ByteOrder) []byte {
	buf := make([]byte, len(m.Values)*4)
	for i, v := range m.Values {
		order.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func normalize(v float32, polarity Polarity) float32 {
	if math.IsNaN(float64(v)) {
		v = 0
	}
	v = min(max(v, 0), 1)
	if polarity == Background {
		return 1 - v
	}
	return v
}
