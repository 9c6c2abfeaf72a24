package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"time"

	"github.com/chaos-io/localrembg/rembg/mask"
	"github.com/chaos-io/localrembg/util"
	nhttp "github.com/chaos-io/localrembg/util/http"
	"go.uber.org/zap"
)

const RemoteName = "remote"

// Remote 通过 HTTP 调用分割服务
//
//	curl -X POST "$SEGMENT_URL" \
//	  -F "image=@my_image.png"
//
// 服务返回与输入同尺寸的单通道 PNG mask
type Remote struct {
	url      string
	polarity mask.Polarity
	timeout  time.Duration
	cli      nhttp.IClient
}

func NewRemote(url string, polarity mask.Polarity, timeout time.Duration) *Remote {
	return NewRemoteWithClient(url, polarity, timeout, nhttp.NewHTTPClient())
}

func NewRemoteWithClient(url string, polarity mask.Polarity, timeout time.Duration, cli nhttp.IClient) *Remote {
	return &Remote{
		url:      url,
		polarity: polarity,
		timeout:  timeout,
		cli:      cli,
	}
}

func (r *Remote) Name() string {
	return RemoteName
}

func (r *Remote) Segment(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
	body, contentType, err := multipartImage(img)
	if err != nil {
		return nil, err
	}

	var resp []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: r.url,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": contentType},
		Body:       body,
		Response:   &resp,
		Timeout:    r.timeout,
	}
	if err := r.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	maskImg, _, err := image.Decode(bytes.NewReader(resp))
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}

	util.Logger.Debug("got the mask",
		zap.String("url", r.url),
		zap.Int("bytes", len(resp)),
		zap.Stringer("bounds", maskImg.Bounds()))

	return mask.FromImage(maskImg, r.polarity), nil
}

func multipartImage(img image.Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// image 文件字段
	part, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, "", fmt.Errorf("encode form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}
