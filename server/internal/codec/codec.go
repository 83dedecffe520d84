// Package codec 负责计数文本与 contents API 使用的 base64 之间的转换。
package codec

import (
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"
	"unicode"

	"github.com/cloudwego/base64x"
	"github.com/klauspost/cpuid/v2"
)

// Codec 编解码标准的带填充 base64。
type Codec interface {
	Name() string
	EncodeString(s string) string
	// DecodeString 忽略空白字符，contents API 每 60 个字符插入一个换行。
	DecodeString(s string) (string, error)
}

// Std 基于 encoding/base64，任何平台都可用。
type Std struct{}

func (Std) Name() string { return "std" }

func (Std) EncodeString(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func (Std) DecodeString(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(stripSpace(s))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	return string(b), nil
}

// SIMD 基于 base64x，只能在有汇编实现的平台上运行。
type SIMD struct{}

func (SIMD) Name() string { return "simd" }

func (SIMD) EncodeString(s string) string {
	return base64x.StdEncoding.EncodeToString([]byte(s))
}

func (SIMD) DecodeString(s string) (string, error) {
	b, err := base64x.StdEncoding.DecodeString(stripSpace(s))
	if err != nil {
		return "", fmt.Errorf("base64x decode: %w", err)
	}
	return string(b), nil
}

// SIMDAvailable 判断当前 CPU 能否使用 SIMD。
func SIMDAvailable() bool {
	return runtime.GOARCH == "amd64" && cpuid.CPU.Supports(cpuid.AVX2)
}

// Probe 在 CPU 支持时选 SIMD，否则退回 Std。
func Probe() Codec {
	if SIMDAvailable() {
		return SIMD{}
	}
	return Std{}
}

// ByName 按配置名取得实现。"auto" 探测 CPU；
// 在不支持的机器上显式要求 "simd" 直接报错，不悄悄降级。
func ByName(name string) (Codec, error) {
	switch name {
	case "", "auto":
		return Probe(), nil
	case "std":
		return Std{}, nil
	case "simd":
		if !SIMDAvailable() {
			return nil, fmt.Errorf("codec simd: not supported on %s", runtime.GOARCH)
		}
		return SIMD{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func stripSpace(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
