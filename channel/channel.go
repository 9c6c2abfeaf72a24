// Package channel 以 method channel 的形式对外提供去背景能力：
// 请求是 MethodCall，结果通过回调异步返回 Response。
package channel

import (
	"bytes"
	"encoding/json"
	"errors"
)

const (
	MethodChannelName      = "methodChannel.localRembg"
	MethodRemoveBackground = "removeBackground"
)

const (
	StatusFailure = 0
	StatusSuccess = 1
)

const (
	MessageSuccess          = "Success"
	MessageNotImplemented   = "notImplemented"
	MessageEmptyPath        = "Image path cannot be empty"
	MessageFileNotFound     = "Image file not found"
	MessageInvalidArguments = "Invalid arguments or unable to load image"
	MessageProcessFailed    = "Unable to process image"
	MessageEncodeFailed     = "Unable to convert image to bytes"
	MessageBusy             = "Processing queue is full, please retry later"
	MessageCancelled        = "Request cancelled"
)

var errNoArguments = errors.New("channel: missing arguments")

// MethodCall 一次调用。Channel 为空时视为 MethodChannelName
type MethodCall struct {
	ID        string          `json:"id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response 调用结果，ImageBytes 为 PNG
type Response struct {
	ID         string `json:"id,omitempty"`
	Status     int    `json:"status"`
	Message    string `json:"message"`
	ImageBytes []byte `json:"imageBytes,omitempty"`
}

// RemoveBackgroundArgs removeBackground 的参数。
// 既可以是单纯的路径字符串，也可以是带覆盖选项的对象。
type RemoveBackgroundArgs struct {
	Path          string `json:"path"`
	CropToContent *bool  `json:"cropToContent,omitempty"`
	Fill          string `json:"fill,omitempty"`
}

func (a *RemoveBackgroundArgs) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		*a = RemoveBackgroundArgs{Path: path}
		return nil
	}

	type plain RemoveBackgroundArgs
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = RemoveBackgroundArgs(p)
	return nil
}

func parseArgs(raw json.RawMessage) (RemoveBackgroundArgs, error) {
	var args RemoveBackgroundArgs
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return args, errNoArguments
	}
	err := json.Unmarshal(trimmed, &args)
	return args, err
}

func failure(id, message string) Response {
	return Response{ID: id, Status: StatusFailure, Message: message}
}
