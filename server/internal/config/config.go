package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr    = ":8080"
	DefaultAPIURL  = "https://api.github.com"
	DefaultBranch  = "counter-data"
	DefaultPath    = "data/counter.txt"
	DefaultCodec   = "auto"
	DefaultLogLvl  = "info"
	redactedSecret = "********"
)

// Config 全局配置。Load 之后不再修改。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Cron     CronConfig     `yaml:"cron"`
	GitHub   GitHubConfig   `yaml:"github"`
	Counter  CounterConfig  `yaml:"counter"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Ping     PingConfig     `yaml:"ping"`
	Runs     RunsConfig     `yaml:"runs"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// upstreamCallsPerRun 是一次运行最多发起的上游请求数：读、写、自 ping。
const upstreamCallsPerRun = 3

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type CronConfig struct {
	Secret string `yaml:"secret"`
}

type GitHubConfig struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`
}

type CounterConfig struct {
	Branch string `yaml:"branch"`
	Path   string `yaml:"path"`
	// Codec 选择 base64 实现：auto | simd | std
	Codec string `yaml:"codec"`
}

type UpstreamConfig struct {
	// Timeout 为 0 表示不设超时，等待网络层自行返回。
	Timeout time.Duration `yaml:"timeout"`
}

type PingConfig struct {
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

// Active 判断运行结束后是否需要自 ping。
func (p PingConfig) Active() bool {
	if p.URL == "" {
		return false
	}
	return p.Enabled == nil || *p.Enabled
}

type RunsConfig struct {
	RedisAddr string `yaml:"redis_addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load 读取可选的 YAML 文件，再用环境变量覆盖，最后校验。
// path 为空时只使用环境变量。
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("apply env: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnv 从环境变量覆盖配置，敏感信息只应来自环境变量。
func (c *Config) applyEnv() error {
	overrides := []struct {
		env string
		dst *string
	}{
		{"ADDR", &c.Server.Addr},
		{"CRON_SECRET", &c.Cron.Secret},
		{"GITHUB_OWNER", &c.GitHub.Owner},
		{"GITHUB_REPO", &c.GitHub.Repo},
		{"GITHUB_TOKEN", &c.GitHub.Token},
		{"GITHUB_API_URL", &c.GitHub.APIURL},
		{"COUNTER_BRANCH", &c.Counter.Branch},
		{"COUNTER_PATH", &c.Counter.Path},
		{"COUNTER_CODEC", &c.Counter.Codec},
		{"REDIS_ADDR", &c.Runs.RedisAddr},
		{"LOG_LEVEL", &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	// 部署地址沿用托管平台注入的变量，按优先级取第一个非空值。
	if u, ok := lo.Coalesce(os.Getenv("DEPLOYMENT_URL"), os.Getenv("VERCEL_URL"), os.Getenv("NEXT_PUBLIC_VERCEL_URL")); ok {
		c.Ping.URL = u
	}

	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := parseutil.ParseDurationSecond(v)
		if err != nil {
			return fmt.Errorf("UPSTREAM_TIMEOUT: %w", err)
		}
		c.Upstream.Timeout = d
	}
	if v := os.Getenv("PING_ENABLED"); v != "" {
		b, err := parseutil.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PING_ENABLED: %w", err)
		}
		c.Ping.Enabled = &b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = DefaultAPIURL
	}
	c.GitHub.APIURL = strings.TrimRight(c.GitHub.APIURL, "/")
	if c.Counter.Branch == "" {
		c.Counter.Branch = DefaultBranch
	}
	if c.Counter.Path == "" {
		c.Counter.Path = DefaultPath
	}
	if c.Counter.Codec == "" {
		c.Counter.Codec = DefaultCodec
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLvl
	}
	if c.Ping.URL != "" && !strings.Contains(c.Ping.URL, "://") {
		c.Ping.URL = "https://" + c.Ping.URL
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var missing []string
	if c.Cron.Secret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if c.GitHub.Owner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if c.GitHub.Repo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	if c.GitHub.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required values: %s", strings.Join(missing, ", "))
	}
	if c.Upstream.Timeout < 0 {
		return errors.New("upstream timeout must not be negative")
	}
	// 写超时先于上游返回时，连接被服务端切断，调用方收不到 500 响应体。
	if w := c.Server.WriteTimeout; w > 0 {
		if c.Upstream.Timeout == 0 {
			return fmt.Errorf("server write_timeout %s requires a non-zero upstream timeout", w)
		}
		if w <= upstreamCallsPerRun*c.Upstream.Timeout {
			return fmt.Errorf("server write_timeout %s must exceed %d x upstream timeout %s",
				w, upstreamCallsPerRun, c.Upstream.Timeout)
		}
	}
	switch c.Counter.Codec {
	case "auto", "simd", "std":
	default:
		return fmt.Errorf("unknown codec %q (want auto, simd or std)", c.Counter.Codec)
	}
	return nil
}

// Summary 返回可以安全写入日志的关键配置，密钥已脱敏。
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"addr":        c.Server.Addr,
		"secret":      redactedSecret,
		"owner":       c.GitHub.Owner,
		"repo":        c.GitHub.Repo,
		"api_url":     c.GitHub.APIURL,
		"branch":      c.Counter.Branch,
		"path":        c.Counter.Path,
		"codec":       c.Counter.Codec,
		"timeout":     c.Upstream.Timeout.String(),
		"ping_url":    c.Ping.URL,
		"ping_active": c.Ping.Active(),
		"runs_redis":  c.Runs.RedisAddr != "",
	}
}
