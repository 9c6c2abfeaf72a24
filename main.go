package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chaos-io/localrembg/channel"
	"github.com/chaos-io/localrembg/config"
	"github.com/chaos-io/localrembg/rembg"
	"github.com/chaos-io/localrembg/rembg/segment"
	"github.com/chaos-io/localrembg/util"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "config file, defaults to ./config.yaml when present")
	inputPath  = flag.String("in", "", "input image path or http(s) URL")
	outputPath = flag.String("out", "", "output PNG path, defaults to ./output/<id>.png")
	maskPath   = flag.String("mask", "", "precomputed mask (.png/.jpg or raw float32 .f32/.bin), replaces the configured segmenter")
	crop       = flag.Bool("crop", true, "crop to the foreground bounding box")
	fill       = flag.String("fill", "", "canvas fill: transparent or white")
	stdio      = flag.Bool("stdio", false, "serve method channel calls as JSON lines over stdin/stdout")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *maskPath != "" {
		cfg.Segmenter.Primary = segment.FileName
		cfg.Segmenter.Fallback = ""
		cfg.Segmenter.File.Path = *maskPath
	}

	// 初始化日志
	if err := util.InitLogger(cfg.Log.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	removerCfg, err := cfg.RemoverConfig()
	if err != nil {
		util.Logger.Fatal("invalid compositor config", zap.Error(err))
	}
	seg, err := cfg.BuildSegmenter()
	if err != nil {
		util.Logger.Fatal("failed to build segmenter", zap.Error(err))
	}
	remover := rembg.NewRemover(seg, removerCfg)

	util.Logger.Info("starting localrembg",
		zap.String("segmenter", seg.Name()),
		zap.Bool("stdio", *stdio))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *stdio {
		handler := channel.NewHandler(remover, cfg.ChannelConfig())
		if err := handler.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			util.Logger.Fatal("serve failed", zap.Error(err))
		}
		return
	}

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := remover.Options()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "crop" {
			opts.CropToContent = *crop
		}
	})
	if *fill != "" {
		opts.Fill, err = rembg.ParseFillMode(*fill)
		if err != nil {
			util.Logger.Fatal("invalid fill", zap.Error(err))
		}
	}

	out := *outputPath
	if out == "" {
		out = filepath.Join("output", ksuid.New().String()+".png")
	}

	data, err := removeBackground(ctx, remover, *inputPath, opts)
	if err != nil {
		util.Logger.Fatal("failed to remove background", zap.String("input", *inputPath), zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(out), os.ModePerm); err != nil {
		util.Logger.Fatal("failed to create output directory", zap.Error(err))
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		util.Logger.Fatal("failed to write output", zap.Error(err))
	}

	util.Logger.Info("done", zap.String("output", out))
}

// loadConfig 显式指定的配置文件必须能读取，否则回退到 config.New
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

func removeBackground(ctx context.Context, remover *rembg.Remover, input string, opts rembg.Options) ([]byte, error) {
	defer util.Trace("remove background")()

	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return remover.RemoveFile(ctx, input, opts)
	}

	img, err := util.DownloadImage(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rembg.ErrInputNotFound, err)
	}
	out, err := remover.Remove(ctx, img, opts)
	if err != nil {
		return nil, err
	}
	return rembg.EncodePNG(out)
}
