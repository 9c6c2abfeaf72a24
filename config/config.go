package config

import (
	"fmt"
	"time"

	"github.com/chaos-io/localrembg/channel"
	"github.com/chaos-io/localrembg/rembg"
	"github.com/chaos-io/localrembg/rembg/mask"
	"github.com/chaos-io/localrembg/rembg/segment"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Compositor CompositorConfig `mapstructure:"compositor"`
	Segmenter  SegmenterConfig  `mapstructure:"segmenter"`
	Channel    ChannelConfig    `mapstructure:"channel"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type CompositorConfig struct {
	TargetWidth       int    `mapstructure:"target_width"`
	Threshold         int    `mapstructure:"threshold"`
	CropToContent     bool   `mapstructure:"crop_to_content"`
	Fill              string `mapstructure:"fill"`
	CanvasHeight      int    `mapstructure:"canvas_height"`
	MinInputDimension int    `mapstructure:"min_input_dimension"`
	WorkingSize       int    `mapstructure:"working_size"`
}

type SegmenterConfig struct {
	Primary  string       `mapstructure:"primary"`
	Fallback string       `mapstructure:"fallback"`
	Remote   RemoteConfig `mapstructure:"remote"`
	File     FileConfig   `mapstructure:"file"`
}

type RemoteConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Polarity string        `mapstructure:"polarity"`
}

type FileConfig struct {
	Path     string `mapstructure:"path"`
	Polarity string `mapstructure:"polarity"`
}

type ChannelConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return getDefaultConfig()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.mode", "debug")

	v.SetDefault("compositor.target_width", rembg.TargetWidth)
	v.SetDefault("compositor.threshold", rembg.BackgroundThreshold)
	v.SetDefault("compositor.crop_to_content", true)
	v.SetDefault("compositor.fill", "transparent")
	v.SetDefault("compositor.canvas_height", 0)
	v.SetDefault("compositor.min_input_dimension", rembg.MinInputDimension)
	v.SetDefault("compositor.working_size", 1024)

	v.SetDefault("segmenter.primary", segment.RemoteName)
	v.SetDefault("segmenter.fallback", segment.AlphaName)
	v.SetDefault("segmenter.remote.url", "http://127.0.0.1:7000/segment")
	v.SetDefault("segmenter.remote.timeout", 30*time.Second)
	v.SetDefault("segmenter.remote.polarity", "foreground")
	v.SetDefault("segmenter.file.path", "")
	v.SetDefault("segmenter.file.polarity", "foreground")

	v.SetDefault("channel.max_concurrent", 3)
	v.SetDefault("channel.queue_timeout", 30*time.Second)
}

func getDefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Mode: "debug",
		},
		Compositor: CompositorConfig{
			TargetWidth:       rembg.TargetWidth,
			Threshold:         rembg.BackgroundThreshold,
			CropToContent:     true,
			Fill:              "transparent",
			CanvasHeight:      0,
			MinInputDimension: rembg.MinInputDimension,
			WorkingSize:       1024,
		},
		Segmenter: SegmenterConfig{
			Primary:  segment.RemoteName,
			Fallback: segment.AlphaName,
			Remote: RemoteConfig{
				URL:      "http://127.0.0.1:7000/segment",
				Timeout:  30 * time.Second,
				Polarity: "foreground",
			},
			File: FileConfig{
				Polarity: "foreground",
			},
		},
		Channel: ChannelConfig{
			MaxConcurrent: 3,
			QueueTimeout:  30 * time.Second,
		},
	}
}

// RemoverConfig 转换为 rembg.Config
func (c *Config) RemoverConfig() (rembg.Config, error) {
	fill, err := rembg.ParseFillMode(c.Compositor.Fill)
	if err != nil {
		return rembg.Config{}, err
	}
	if c.Compositor.MinInputDimension < 0 || c.Compositor.WorkingSize < 0 || c.Compositor.CanvasHeight < 0 {
		return rembg.Config{}, fmt.Errorf("compositor sizes must not be negative")
	}

	workingSize := c.Compositor.WorkingSize
	if c.Segmenter.Primary == segment.FileName {
		// 预先算好的 mask 与原图同尺寸，不能先缩放
		workingSize = 0
	}

	return rembg.Config{
		Options: rembg.Options{
			CropToContent: c.Compositor.CropToContent,
			Fill:          fill,
			TargetWidth:   c.Compositor.TargetWidth,
			CanvasHeight:  c.Compositor.CanvasHeight,
			Threshold:     c.Compositor.Threshold,
		},
		MinInputDimension: c.Compositor.MinInputDimension,
		WorkingSize:       workingSize,
	}, nil
}

// ChannelConfig 转换为 channel.Config
func (c *Config) ChannelConfig() channel.Config {
	return channel.Config{
		MaxConcurrent: c.Channel.MaxConcurrent,
		QueueTimeout:  c.Channel.QueueTimeout,
	}
}

// BuildSegmenter 按 primary/fallback 组装分割器，配置了 fallback 时返回 segment.Chain
func (c *Config) BuildSegmenter() (segment.Segmenter, error) {
	if c.Segmenter.Primary == "" {
		return nil, segment.ErrNoSegmenter
	}

	primary, err := c.newSegmenter(c.Segmenter.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary segmenter: %w", err)
	}
	if c.Segmenter.Fallback == "" {
		return primary, nil
	}

	fallback, err := c.newSegmenter(c.Segmenter.Fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback segmenter: %w", err)
	}
	return segment.NewChain(c.Compositor.Threshold, primary, fallback)
}

func (c *Config) newSegmenter(kind string) (segment.Segmenter, error) {
	switch kind {
	case segment.RemoteName:
		if c.Segmenter.Remote.URL == "" {
			return nil, fmt.Errorf("segmenter.remote.url is required")
		}
		polarity, err := mask.ParsePolarity(c.Segmenter.Remote.Polarity)
		if err != nil {
			return nil, err
		}
		return segment.NewRemote(c.Segmenter.Remote.URL, polarity, c.Segmenter.Remote.Timeout), nil
	case segment.FileName:
		if c.Segmenter.File.Path == "" {
			return nil, fmt.Errorf("segmenter.file.path is required")
		}
		polarity, err := mask.ParsePolarity(c.Segmenter.File.Polarity)
		if err != nil {
			return nil, err
		}
		return segment.NewFile(c.Segmenter.File.Path, polarity), nil
	case segment.AlphaName:
		return segment.NewAlpha(), nil
	default:
		return nil, fmt.Errorf("unknown segmenter %q", kind)
	}
}
