package config

import (
	"fmt"
	"os"

	envutil "github.com/projectdiscovery/utils/env"
	fileutil "github.com/projectdiscovery/utils/file"
	"gopkg.in/yaml.v3"
)

// Settings 是没有对应命令行参数的环境性配置
// 从工作目录的 config.yaml 读取，文件不存在时使用默认值
type Settings struct {
	UserAgent        string  `yaml:"user_agent"`        // 测速请求的 User-Agent
	WarmupSecs       int     `yaml:"warmup_secs"`       // 下载测速预热时间（秒）
	RateLimitMB      float64 `yaml:"rate_limit_mb"`     // 下载限速（MB/s），0 为不限速
	BufferMultiplier int     `yaml:"buffer_multiplier"` // IP 缓冲区容量相对并发数的倍数
}

// DefaultSettingsPath 返回配置文件路径，可由环境变量覆盖
func DefaultSettingsPath() string {
	return envutil.GetEnvOrDefault("CFST_CONFIG", "config.yaml")
}

func defaultSettings() *Settings {
	return &Settings{
		WarmupSecs:       3,
		BufferMultiplier: 4,
	}
}

// LoadSettings 加载环境性配置
func LoadSettings(path string) (*Settings, error) {
	s := defaultSettings()
	if !fileutil.FileExists(path) {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取配置文件 '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("解析配置文件 '%s' 失败: %w", path, err)
	}

	if s.WarmupSecs < 0 {
		s.WarmupSecs = 0
	}
	if s.BufferMultiplier < 2 {
		s.BufferMultiplier = 2
	}
	return s, nil
}
