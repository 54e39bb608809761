package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rehiy/web-shortrange/config"
)

// Setup 将标准日志同时写到标准错误与滚动文件
// 返回的关闭函数在退出前调用
func Setup(cfg config.LogConfig) (func() error, error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	log.Printf("Logging to %s", cfg.File)

	return func() error {
		log.SetOutput(os.Stderr)
		return lj.Close()
	}, nil
}

// Printf 返回带 [name] 前缀的日志函数
func Printf(name string) func(string, ...any) {
	return func(s string, v ...any) {
		log.Printf(fmt.Sprintf("[%s] %s", name, s), v...)
	}
}
