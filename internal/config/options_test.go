package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validOptions() *Options {
	return &Options{
		IPText:          "1.1.1.1",
		URL:             "https://speed.example/big",
		PingTimes:       4,
		DownloadSecs:    10,
		TargetDownloads: 10,
		Concurrency:     256,
		PrintNum:        10,
		MaxDelayMS:      2000,
	}
}

func TestValidateRequiresSource(t *testing.T) {
	o := validOptions()
	o.IPText = ""
	if err := o.Validate(); err == nil {
		t.Errorf("缺少 IP 来源应报错")
	}
}

func TestValidateRequiresSpeedURL(t *testing.T) {
	o := validOptions()
	o.URL = ""
	if err := o.Validate(); err == nil {
		t.Errorf("未禁用下载且无测速地址应报错")
	}

	o.DisableDownload = true
	if err := o.Validate(); err != nil {
		t.Errorf("-dd 时无测速地址不应报错: %v", err)
	}
}

func TestValidateHuWithoutURL(t *testing.T) {
	o := validOptions()
	o.URL = ""
	o.DisableDownload = true
	o.HttpingURLs = HuFromSpeedURL
	if err := o.Validate(); err == nil {
		t.Errorf("-hu 不带值且无 -url/-urlist 应报错")
	}

	o.HttpingURLs = "https://example.com"
	if err := o.Validate(); err != nil {
		t.Errorf("-hu 带值时不应报错: %v", err)
	}
}

func TestValidateClamps(t *testing.T) {
	o := validOptions()
	o.PingTimes = 0
	o.DownloadSecs = 600
	o.Concurrency = 99999
	o.MaxDelayMS = 5000
	o.MinDelayMS = 9999
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.PingTimes != 1 {
		t.Errorf("PingTimes = %d", o.PingTimes)
	}
	if o.DownloadSecs != 120 {
		t.Errorf("DownloadSecs = %d", o.DownloadSecs)
	}
	if o.Concurrency != 1024 {
		t.Errorf("Concurrency = %d", o.Concurrency)
	}
	if o.MaxDelayMS != 2000 {
		t.Errorf("MaxDelayMS = %d", o.MaxDelayMS)
	}
	if o.MinDelayMS != 2000 {
		t.Errorf("MinDelayMS 应收敛到延迟上限: %d", o.MinDelayMS)
	}
}

func TestValidateLossRateRange(t *testing.T) {
	o := validOptions()
	o.MaxLossRateText = "1.5"
	if err := o.Validate(); err == nil {
		t.Errorf("丢包率超出 [0,1] 应报错")
	}

	o = validOptions()
	o.MaxLossRateText = "0.25"
	o.MinSpeedText = "15"
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.MaxLossRate != 0.25 || o.MinSpeed != 15 {
		t.Errorf("数值解析错误: %v, %v", o.MaxLossRate, o.MinSpeed)
	}

	o = validOptions()
	o.MinSpeedText = "abc"
	if err := o.Validate(); err == nil {
		t.Errorf("无效速度下限应报错")
	}
}

func TestParseTimeout(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 0},
		{"120", 120 * time.Second},
		{"1h3m", 63 * time.Minute},
		{"50000", 36000 * time.Second}, // 超出上限收敛
	}
	for _, c := range cases {
		got, err := parseTimeout(c.raw)
		if err != nil {
			t.Errorf("parseTimeout(%q): %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseTimeout(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
	if _, err := parseTimeout("abc"); err == nil {
		t.Errorf("无效超时应报错")
	}
}

func TestParseStatusCodes(t *testing.T) {
	codes, err := parseStatusCodes("")
	if err != nil {
		t.Fatalf("默认状态码: %v", err)
	}
	for _, c := range []int{200, 301, 302} {
		if _, ok := codes[c]; !ok {
			t.Errorf("默认集合缺少 %d", c)
		}
	}

	codes, err = parseStatusCodes("200,204")
	if err != nil {
		t.Fatalf("parseStatusCodes: %v", err)
	}
	if len(codes) != 2 {
		t.Errorf("集合大小 = %d", len(codes))
	}
	if _, ok := codes[301]; ok {
		t.Errorf("自定义集合不应包含默认值")
	}

	if _, err := parseStatusCodes("abc"); err == nil {
		t.Errorf("无效状态码应报错")
	}
	if _, err := parseStatusCodes("99"); err == nil {
		t.Errorf("超出范围的状态码应报错")
	}
}

func TestResolvedPort(t *testing.T) {
	o := validOptions()
	if got := o.ResolvedPort(); got != 443 {
		t.Errorf("默认端口 = %d", got)
	}

	o.Httping = true
	if got := o.ResolvedPort(); got != 80 {
		t.Errorf("非 TLS Httping 默认端口 = %d", got)
	}

	o.HttpingURLs = HuFromSpeedURL // TLS 模式回到 443
	if got := o.ResolvedPort(); got != 443 {
		t.Errorf("TLS Httping 默认端口 = %d", got)
	}

	o.Port = 8443
	if got := o.ResolvedPort(); got != 8443 {
		t.Errorf("显式端口 = %d", got)
	}
}

func TestResolvedOutput(t *testing.T) {
	o := validOptions()
	if got := o.ResolvedOutput(); got != "result.csv" {
		t.Errorf("默认输出 = %q", got)
	}
	o.Output = OutputDisabled
	if got := o.ResolvedOutput(); got != "" {
		t.Errorf("禁用输出 = %q", got)
	}
	o.Output = "custom.csv"
	if got := o.ResolvedOutput(); got != "custom.csv" {
		t.Errorf("自定义输出 = %q", got)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("缺失文件应使用默认值: %v", err)
	}
	if s.WarmupSecs != 3 || s.BufferMultiplier != 4 {
		t.Errorf("默认配置 = %+v", s)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("user_agent: test-ua\nwarmup_secs: 1\nrate_limit_mb: 8.5\nbuffer_multiplier: 3\n"), 0644)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.UserAgent != "test-ua" || s.WarmupSecs != 1 || s.RateLimitMB != 8.5 || s.BufferMultiplier != 3 {
		t.Errorf("配置解析错误: %+v", s)
	}
}

func TestLoadSettingsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("user_agent: [broken"), 0644)
	if _, err := LoadSettings(path); err == nil {
		t.Errorf("无效 YAML 应报错")
	}
}
