package segment

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaos-io/localrembg/rembg/mask"
	"github.com/disintegration/imaging"
)

const FileName = "file"

// File 从磁盘读取已经算好的 mask（例如设备端分割器导出的结果）
//
//	.f32 / .bin   原始 float32 缓冲区，小端序，尺寸取输入图片的尺寸
//	其他扩展名     按图片解码，取亮度；尺寸与输入不同时线性缩放到输入尺寸
type File struct {
	path     string
	polarity mask.Polarity
}

func NewFile(path string, polarity mask.Polarity) *File {
	return &File{path: path, polarity: polarity}
}

func (f *File) Name() string {
	return FileName
}

func (f *File) Segment(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".f32", ".bin":
		buf, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("read mask file: %w", err)
		}
		b := img.Bounds()
		return mask.FromFloat32Bytes(buf, b.Dx(), b.Dy(), binary.LittleEndian, f.polarity)
	default:
		maskImg, err := imaging.Open(f.path)
		if err != nil {
			return nil, fmt.Errorf("open mask file: %w", err)
		}
		// 输入在分割前可能被缩放到工作尺寸
		b := img.Bounds()
		if maskImg.Bounds().Size() != b.Size() {
			maskImg = imaging.Resize(maskImg, b.Dx(), b.Dy(), imaging.Linear)
		}
		return mask.FromImage(maskImg, f.polarity), nil
	}
}
