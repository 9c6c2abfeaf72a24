package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/chaos-io/localrembg/rembg"
	"github.com/chaos-io/localrembg/rembg/segment"
	"github.com/chaos-io/localrembg/util"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

const maxLineSize = 16 * 1024 * 1024

type Config struct {
	MaxConcurrent int
	QueueTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 3,
		QueueTimeout:  30 * time.Second,
	}
}

// Handler 处理 method channel 调用，调用方线程不会被阻塞
type Handler struct {
	remover      *rembg.Remover
	semaphore    chan struct{}
	queueTimeout time.Duration
	wg           sync.WaitGroup
}

func NewHandler(remover *rembg.Remover, cfg Config) *Handler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultConfig().QueueTimeout
	}
	return &Handler{
		remover:      remover,
		semaphore:    make(chan struct{}, cfg.MaxConcurrent),
		queueTimeout: cfg.QueueTimeout,
	}
}

// Handle 立即返回；removeBackground 在 worker goroutine 中执行，结果通过 reply 回传。
// 未知方法直接在当前 goroutine 回复 notImplemented。
func (h *Handler) Handle(ctx context.Context, call MethodCall, reply func(Response)) {
	if (call.Channel != "" && call.Channel != MethodChannelName) || call.Method != MethodRemoveBackground {
		reply(failure(call.ID, MessageNotImplemented))
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		reply(h.removeBackground(ctx, call))
	}()
}

// Wait 等待所有已受理的调用完成
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) removeBackground(ctx context.Context, call MethodCall) Response {
	requestID := call.ID
	if requestID == "" {
		requestID = ksuid.New().String()
	}
	logger := util.Logger.With(zap.String("request_id", requestID))

	args, err := parseArgs(call.Arguments)
	if err != nil {
		logger.Warn("invalid arguments", zap.Error(err))
		return failure(call.ID, MessageInvalidArguments)
	}
	if args.Path == "" {
		return failure(call.ID, MessageEmptyPath)
	}
	if !util.FileExists(args.Path) {
		logger.Warn("image file not found", zap.String("path", args.Path))
		return failure(call.ID, MessageFileNotFound)
	}

	opts := h.remover.Options()
	if args.CropToContent != nil {
		opts.CropToContent = *args.CropToContent
	}
	if args.Fill != "" {
		fill, err := rembg.ParseFillMode(args.Fill)
		if err != nil {
			logger.Warn("invalid fill", zap.Error(err))
			return failure(call.ID, MessageInvalidArguments)
		}
		opts.Fill = fill
	}

	// 并发控制
	queueCtx, cancel := context.WithTimeout(ctx, h.queueTimeout)
	defer cancel()

	select {
	case h.semaphore <- struct{}{}:
		defer func() { <-h.semaphore }()
	case <-queueCtx.Done():
		if err := ctx.Err(); err != nil {
			logger.Warn("cancelled while queued", zap.Error(err))
			return failure(call.ID, MessageCancelled)
		}
		logger.Warn("queue is full", zap.Duration("queue_timeout", h.queueTimeout))
		return failure(call.ID, MessageBusy)
	}

	start := time.Now()
	data, err := h.remover.RemoveFile(ctx, args.Path, opts)
	if err != nil {
		logger.Error("remove background failed", zap.String("path", args.Path), zap.Error(err))
		return failure(call.ID, failureMessage(err))
	}

	logger.Info("background removed",
		zap.String("path", args.Path),
		zap.Int("bytes", len(data)),
		zap.Duration("cost", time.Since(start)))

	return Response{
		ID:         call.ID,
		Status:     StatusSuccess,
		Message:    MessageSuccess,
		ImageBytes: data,
	}
}

func failureMessage(err error) string {
	var segErr *rembg.SegmentationError
	switch {
	case errors.As(err, &segErr):
		return segmenterMessage(segErr.Err)
	case errors.Is(err, rembg.ErrInputNotFound):
		return MessageInvalidArguments
	case errors.Is(err, rembg.ErrEncodeFailed):
		return MessageEncodeFailed
	default:
		return MessageProcessFailed
	}
}

// segmenterMessage 分割器的错误原样返回给调用方；Chain 取最后一个分割器的错误
func segmenterMessage(err error) string {
	var chainErr *segment.ChainError
	if errors.As(err, &chainErr) && len(chainErr.Errors) > 0 {
		err = chainErr.Errors[len(chainErr.Errors)-1]
		if cause := errors.Unwrap(err); cause != nil {
			err = cause
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MessageProcessFailed
}

// Serve 从 r 按行读取 JSON MethodCall，响应按完成顺序逐行写入 w。
// r 读完后等待所有调用结束再返回。
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	reply := func(resp Response) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(resp); err != nil {
			util.Logger.Error("write response failed", zap.String("id", resp.ID), zap.Error(err))
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var call MethodCall
		if err := json.Unmarshal(line, &call); err != nil {
			util.Logger.Warn("invalid method call", zap.Error(err))
			reply(failure("", MessageInvalidArguments))
			continue
		}
		h.Handle(ctx, call, reply)
	}

	h.Wait()
	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
