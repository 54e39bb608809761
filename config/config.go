package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/rehiy/web-shortrange/shortrange"
)

// Config 服务配置
type Config struct {
	HTTP     HTTPConfig    `yaml:"http"`
	Database DBConfig      `yaml:"database"`
	Log      LogConfig     `yaml:"log"`
	Radios   []RadioConfig `yaml:"radios"`
	// Scan 未显式配置模块时用于探测的串口通配符
	Scan       []string `yaml:"scan"`
	ScanModule string   `yaml:"scanModule"`
}

// HTTPConfig HTTP 服务设置
type HTTPConfig struct {
	Port   string `yaml:"port"`
	Static string `yaml:"static"`
}

// DBConfig 数据库设置
type DBConfig struct {
	Path string `yaml:"path"`
	// RetentionDays 事件日志保留天数，0 表示不清理
	RetentionDays int `yaml:"retentionDays"`
}

// LogConfig 日志设置，File 为空时只写标准错误
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// RadioConfig 一个短距模块的串口与型号
type RadioConfig struct {
	Port   string `yaml:"port"`
	Module string `yaml:"module"`
	Baud   int    `yaml:"baud"`
	// Mode 打开后切换到的模式，为空则保持命令模式
	Mode string `yaml:"mode"`
}

const (
	defaultBaud   = 115200
	defaultModule = "NINA-B3"
)

// Load 依次应用默认值、配置文件与环境变量，并校验
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		HTTP:     HTTPConfig{Port: "8080", Static: "./webview"},
		Database: DBConfig{Path: "data/shortrange.db", RetentionDays: 30},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		ScanModule: defaultModule,
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides RADIO_PORT 形如 /dev/ttyUSB0:NINA-W15,/dev/ttyUSB1
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("RADIO_PORT"); v != "" {
		cfg.Radios = ParseRadios(v, cfg.ScanModule)
	}
}

// ParseRadios 解析逗号分隔的 port[:module] 列表
func ParseRadios(s, module string) []RadioConfig {
	var list []RadioConfig
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		rc := RadioConfig{Port: item, Module: module}
		// Windows 端口名不含冒号，盘符路径不在考虑范围内
		if i := strings.LastIndex(item, ":"); i > 0 {
			rc.Port, rc.Module = item[:i], item[i+1:]
		}
		list = append(list, rc)
	}
	return list
}

// Validate 校验并补全模块配置
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.HTTP.Port); err != nil {
		return fmt.Errorf("invalid http port %q", c.HTTP.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is empty")
	}
	if c.ScanModule == "" {
		c.ScanModule = defaultModule
	}
	if _, err := shortrange.ParseModuleType(c.ScanModule); err != nil {
		return fmt.Errorf("scanModule: %w", err)
	}

	for i := range c.Radios {
		rc := &c.Radios[i]
		if rc.Port == "" {
			return fmt.Errorf("radios[%d]: port is empty", i)
		}
		if rc.Module == "" {
			rc.Module = c.ScanModule
		}
		if _, err := shortrange.ParseModuleType(rc.Module); err != nil {
			return fmt.Errorf("radios[%d]: %w", i, err)
		}
		if rc.Baud <= 0 {
			rc.Baud = defaultBaud
		}
		if rc.Mode != "" {
			if _, err := shortrange.ParseMode(rc.Mode); err != nil {
				return fmt.Errorf("radios[%d]: %w", i, err)
			}
		}
	}
	return nil
}
