package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	logLevel    string
	outputPaths []string
}

type Option func(o *options)

func WithLogLevel(lv string) Option {
	return Option(func(o *options) {
		o.logLevel = lv
	})
}

// WithOutputPaths 替换默认的 stderr 输出。
func WithOutputPaths(paths ...string) Option {
	return Option(func(o *options) {
		o.outputPaths = paths
	})
}

// NewLogger 创建服务和压测工具共用的 JSON logger。
func NewLogger(opts ...Option) (*zap.Logger, error) {
	options := options{
		logLevel:    "info",
		outputPaths: []string{"stderr"},
	}

	for _, e := range opts {
		e(&options)
	}

	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var al zap.AtomicLevel
	err := al.UnmarshalText([]byte(options.logLevel))
	if err != nil {
		return nil, fmt.Errorf("al.UnmarshalText: level=%s, %w", options.logLevel, err)
	}

	zc := zap.Config{
		DisableCaller:     true,
		DisableStacktrace: true,
		Level:             al,
		Development:       false,
		Encoding:          "json",
		EncoderConfig:     encConfig,
		OutputPaths:       options.outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
	}

	zl, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("zap.Build: %w", err)
	}
	return zl, nil
}

func Must(zl *zap.Logger, err error) *zap.Logger {
	if err != nil {
		panic(err)
	}
	return zl
}
