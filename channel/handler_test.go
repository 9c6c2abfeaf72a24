package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chaos-io/localrembg/rembg"
	"github.com/chaos-io/localrembg/rembg/mask"
	"github.com/chaos-io/localrembg/rembg/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePhoto(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}

	path := filepath.Join(dir, "photo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	require.NoError(t, png.Encode(f, img))
	return path
}

// boxSegmenter 前景为 [100, 500) 的正方形
func boxSegmenter() *segment.Mock {
	s := segment.NewMock()
	s.SegmentFunc = func(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
		b := img.Bounds()
		m := mask.New(b.Dx(), b.Dy())
		m.FillRect(image.Rect(100, 100, 500, 500), 1)
		return m, nil
	}
	return s
}

func newTestHandler(seg segment.Segmenter, cfg Config) *Handler {
	return NewHandler(rembg.NewRemover(seg, rembg.DefaultConfig()), cfg)
}

func call(t *testing.T, h *Handler, c MethodCall) Response {
	t.Helper()
	replies := make(chan Response, 1)
	h.Handle(context.Background(), c, func(r Response) { replies <- r })

	select {
	case r := <-replies:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("no reply")
		return Response{}
	}
}

func rawArgs(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestHandler_RemoveBackground(t *testing.T) {
	path := writePhoto(t, t.TempDir(), 600, 600)
	h := newTestHandler(boxSegmenter(), DefaultConfig())

	tests := []struct {
		name   string
		args   interface{}
		wantH  int
		corner color.NRGBA
	}{
		{
			name:   "path string",
			args:   path,
			wantH:  1080,
			corner: color.NRGBA{R: 30, G: 120, B: 200, A: 255},
		},
		{
			name:   "object with overrides",
			args:   map[string]interface{}{"path": path, "cropToContent": false, "fill": "white"},
			wantH:  1080,
			corner: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, h, MethodCall{ID: "req-1", Method: MethodRemoveBackground, Arguments: rawArgs(t, tt.args)})
			require.Equal(t, StatusSuccess, resp.Status, resp.Message)
			assert.Equal(t, MessageSuccess, resp.Message)
			assert.Equal(t, "req-1", resp.ID)

			out, err := png.Decode(bytes.NewReader(resp.ImageBytes))
			require.NoError(t, err)
			assert.Equal(t, image.Pt(1080, tt.wantH), out.Bounds().Size())
			assert.Equal(t, tt.corner, color.NRGBAModel.Convert(out.At(0, 0)))
		})
	}
}

func TestHandler_Failures(t *testing.T) {
	dir := t.TempDir()
	photo := writePhoto(t, dir, 600, 600)
	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	small := writePhoto(t, t.TempDir(), 300, 300)

	chain, err := segment.NewChain(0,
		segment.NewErrorMock(errors.New("remote down")),
		segment.NewErrorMock(errors.New("model unavailable")))
	require.NoError(t, err)

	tests := []struct {
		name      string
		call      MethodCall
		segmenter segment.Segmenter
		want      string
	}{
		{
			name: "unknown method",
			call: MethodCall{Method: "getPlatformVersion"},
			want: MessageNotImplemented,
		},
		{
			name: "unknown channel",
			call: MethodCall{Channel: "methodChannel.other", Method: MethodRemoveBackground, Arguments: json.RawMessage(`"x"`)},
			want: MessageNotImplemented,
		},
		{
			name: "missing arguments",
			call: MethodCall{Method: MethodRemoveBackground},
			want: MessageInvalidArguments,
		},
		{
			name: "arguments of wrong type",
			call: MethodCall{Method: MethodRemoveBackground, Arguments: json.RawMessage(`42`)},
			want: MessageInvalidArguments,
		},
		{
			name: "empty path",
			call: MethodCall{Method: MethodRemoveBackground, Arguments: json.RawMessage(`""`)},
			want: MessageEmptyPath,
		},
		{
			name: "file not found",
			call: MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, filepath.Join(dir, "none.png"))},
			want: MessageFileNotFound,
		},
		{
			name: "undecodable file",
			call: MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, garbage)},
			want: MessageInvalidArguments,
		},
		{
			name: "unknown fill",
			call: MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, map[string]string{"path": photo, "fill": "pink"})},
			want: MessageInvalidArguments,
		},
		{
			name:      "segmentation failure",
			call:      MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, photo)},
			segmenter: segment.NewErrorMock(errors.New("model unavailable")),
			want:      "model unavailable",
		},
		{
			name:      "all segmenters in chain fail",
			call:      MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, photo)},
			segmenter: chain,
			want:      "model unavailable",
		},
		{
			name: "image too small",
			call: MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, small)},
			want: MessageProcessFailed,
		},
		{
			name:      "mask size mismatch",
			call:      MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, photo)},
			segmenter: segment.NewStaticMock(mask.New(10, 10)),
			want:      MessageProcessFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := tt.segmenter
			if seg == nil {
				seg = segment.NewMock()
			}
			resp := call(t, newTestHandler(seg, DefaultConfig()), tt.call)
			assert.Equal(t, StatusFailure, resp.Status)
			assert.Equal(t, tt.want, resp.Message)
			assert.Empty(t, resp.ImageBytes)
		})
	}
}

func TestHandler_Busy(t *testing.T) {
	path := writePhoto(t, t.TempDir(), 600, 600)

	started := make(chan struct{})
	release := make(chan struct{})
	seg := segment.NewMock()
	seg.SegmentFunc = func(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
		close(started)
		<-release
		b := img.Bounds()
		m := mask.New(b.Dx(), b.Dy())
		m.Fill(1)
		return m, nil
	}

	h := newTestHandler(seg, Config{MaxConcurrent: 1, QueueTimeout: 50 * time.Millisecond})

	first := make(chan Response, 1)
	h.Handle(context.Background(), MethodCall{ID: "first", Method: MethodRemoveBackground, Arguments: rawArgs(t, path)},
		func(r Response) { first <- r })
	<-started

	second := call(t, h, MethodCall{ID: "second", Method: MethodRemoveBackground, Arguments: rawArgs(t, path)})
	assert.Equal(t, StatusFailure, second.Status)
	assert.Equal(t, MessageBusy, second.Message)

	close(release)
	resp := <-first
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "first", resp.ID)
	assert.Equal(t, 1, seg.Calls())
}

func TestHandler_HandleReturnsImmediately(t *testing.T) {
	path := writePhoto(t, t.TempDir(), 600, 600)

	release := make(chan struct{})
	seg := segment.NewMock()
	seg.SegmentFunc = func(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
		<-release
		return nil, segment.ErrNoSubject
	}
	h := newTestHandler(seg, DefaultConfig())

	replied := make(chan Response, 1)
	h.Handle(context.Background(), MethodCall{Method: MethodRemoveBackground, Arguments: rawArgs(t, path)},
		func(r Response) { replied <- r })

	select {
	case <-replied:
		t.Fatal("reply delivered before processing finished")
	default:
	}

	close(release)
	h.Wait()
	resp := <-replied
	assert.Equal(t, segment.ErrNoSubject.Error(), resp.Message)
}

func TestHandler_CancelledWhileQueued(t *testing.T) {
	path := writePhoto(t, t.TempDir(), 600, 600)

	started := make(chan struct{})
	release := make(chan struct{})
	seg := segment.NewMock()
	seg.SegmentFunc = func(ctx context.Context, img image.Image) (*mask.ConfidenceMask, error) {
		close(started)
		<-release
		b := img.Bounds()
		m := mask.New(b.Dx(), b.Dy())
		m.Fill(1)
		return m, nil
	}
	h := newTestHandler(seg, Config{MaxConcurrent: 1, QueueTimeout: time.Minute})

	first := make(chan Response, 1)
	h.Handle(context.Background(), MethodCall{ID: "first", Method: MethodRemoveBackground, Arguments: rawArgs(t, path)},
		func(r Response) { first <- r })
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan Response, 1)
	h.Handle(ctx, MethodCall{ID: "second", Method: MethodRemoveBackground, Arguments: rawArgs(t, path)},
		func(r Response) { second <- r })
	cancel()

	select {
	case resp := <-second:
		assert.Equal(t, StatusFailure, resp.Status)
		assert.Equal(t, MessageCancelled, resp.Message)
	case <-time.After(10 * time.Second):
		t.Fatal("no reply")
	}

	close(release)
	assert.Equal(t, StatusSuccess, (<-first).Status)
}

func TestHandler_Serve(t *testing.T) {
	path := writePhoto(t, t.TempDir(), 600, 600)
	h := newTestHandler(boxSegmenter(), DefaultConfig())

	lines := []string{
		`{"id":"a","channel":"methodChannel.localRembg","method":"removeBackground","arguments":` + string(rawArgs(t, path)) + `}`,
		``,
		`{"id":"b","method":"getPlatformVersion"}`,
		`not json`,
	}

	var out bytes.Buffer
	err := h.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")), &out)
	require.NoError(t, err)

	got := map[string]Response{}
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		got[resp.ID] = resp
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 3)

	assert.Equal(t, StatusSuccess, got["a"].Status)
	assert.NotEmpty(t, got["a"].ImageBytes)
	assert.Equal(t, MessageNotImplemented, got["b"].Message)
	assert.Equal(t, MessageInvalidArguments, got[""].Message)
}

func TestRemoveBackgroundArgs_UnmarshalJSON(t *testing.T) {
	var a RemoveBackgroundArgs
	require.NoError(t, json.Unmarshal([]byte(`"/tmp/a.png"`), &a))
	assert.Equal(t, RemoveBackgroundArgs{Path: "/tmp/a.png"}, a)

	require.NoError(t, json.Unmarshal([]byte(`{"path":"/tmp/b.png","cropToContent":true,"fill":"white"}`), &a))
	assert.Equal(t, "/tmp/b.png", a.Path)
	require.NotNil(t, a.CropToContent)
	assert.True(t, *a.CropToContent)
	assert.Equal(t, "white", a.Fill)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &a))
}
