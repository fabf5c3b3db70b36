package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
)

// -hu 和 -o 不带值时由 goflags 写入的哨兵值
const (
	HuFromSpeedURL = "default"
	OutputDisabled = "none"
)

// Options 包含全部命令行参数
type Options struct {
	// 目标参数
	URL     string
	URLList string
	IPFile  string
	IPText  string
	IPURL   string
	Port    int

	// 测试参数
	PingTimes       int
	DownloadSecs    int
	TargetDownloads int
	Concurrency     int
	TargetNum       int
	Interface       string

	// 控制参数
	Httping         bool
	HttpingURLs     string // -hu 动态参数，空表示未使用
	DisableDownload bool
	All4            bool
	Timeout         string

	// 过滤参数
	MaxDelayMS      int
	MinDelayMS      int
	MaxLossRateText string
	MinSpeedText    string
	HttpingCodes    string
	Colo            string

	// 结果参数
	PrintNum int
	ShowPort bool
	Output   string

	// 解析后的派生值
	GlobalTimeout time.Duration
	AcceptedCodes map[int]struct{}
	MaxLossRate   float64
	MinSpeed      float64
}

// ParseOptions 解析命令行参数
func ParseOptions() *Options {
	opts := &Options{}
	flagSet := goflags.NewFlagSet()
	flagSet.SetDescription(`CloudflareST-Go 测试各 IP 的延迟和速度，获取最快 IP`)

	flagSet.CreateGroup("target", "目标参数",
		flagSet.StringVar(&opts.URL, "url", "", "TLS 模式的 Httping 或下载测速所使用的 URL"),
		flagSet.StringVar(&opts.URLList, "urlist", "", "从 URL 内读取测速地址列表"),
		flagSet.StringVar(&opts.IPFile, "f", "", "从指定文件名或文件路径获取 IP 或 CIDR"),
		flagSet.StringVar(&opts.IPText, "ip", "", "直接指定 IP 或 CIDR（多个用逗号分隔）"),
		flagSet.StringVar(&opts.IPURL, "ipurl", "", "从 URL 读取 IP 或 CIDR"),
		flagSet.IntVar(&opts.Port, "tp", 0, "测速端口"),
	)

	flagSet.CreateGroup("test", "测试参数",
		flagSet.IntVar(&opts.PingTimes, "t", 4, "延迟测速次数"),
		flagSet.IntVar(&opts.DownloadSecs, "dt", 10, "下载测速时间（秒）"),
		flagSet.IntVar(&opts.TargetDownloads, "dn", 10, "下载测速所需符合要求的结果数量"),
		flagSet.IntVar(&opts.Concurrency, "n", 256, "延迟测速的并发数量"),
		flagSet.IntVar(&opts.TargetNum, "tn", 0, "当 Ping 到指定可用数量，提前结束 Ping"),
		flagSet.StringVar(&opts.Interface, "intf", "", "绑定到指定接口名或 IP"),
	)

	flagSet.CreateGroup("control", "控制参数",
		flagSet.BoolVar(&opts.Httping, "httping", false, "使用非 TLS 模式的 Httping"),
		flagSet.DynamicVar(&opts.HttpingURLs, "hu", HuFromSpeedURL, "使用 HTTPS 进行延迟测速，可指定测速地址"),
		flagSet.BoolVar(&opts.DisableDownload, "dd", false, "禁用下载测速"),
		flagSet.BoolVar(&opts.All4, "all4", false, "测速全部 IPv4 地址"),
		flagSet.StringVar(&opts.Timeout, "timeout", "", "程序超时退出时间（秒或 1h3m 形式）"),
	)

	flagSet.CreateGroup("filter", "过滤参数",
		flagSet.IntVar(&opts.MaxDelayMS, "tl", 2000, "延迟上限（毫秒）"),
		flagSet.IntVar(&opts.MinDelayMS, "tll", 0, "延迟下限（毫秒）"),
		flagSet.StringVar(&opts.MaxLossRateText, "tlr", "1.00", "丢包率上限"),
		flagSet.StringVar(&opts.MinSpeedText, "sl", "0.00", "下载速度下限（MB/s）"),
		flagSet.StringVar(&opts.HttpingCodes, "hc", "", "指定 Httping 的状态码（例如：200,301,302）"),
		flagSet.StringVar(&opts.Colo, "colo", "", "指定地区（例如：HKG,SJC）"),
	)

	flagSet.CreateGroup("result", "结果参数",
		flagSet.IntVar(&opts.PrintNum, "p", 10, "终端显示结果数量"),
		flagSet.BoolVar(&opts.ShowPort, "sp", false, "结果中带端口号"),
		flagSet.DynamicVar(&opts.Output, "o", OutputDisabled, "输出结果文件（不带值则不输出文件）"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}
	return opts
}

// HttpingTLS 返回是否使用 TLS 模式的 Httping（-hu）
func (o *Options) HttpingTLS() bool { return o.HttpingURLs != "" }

// ResolvedPort 返回生效的测速端口
// 未指定时默认 443，非 TLS 的 Httping 模式默认 80
func (o *Options) ResolvedPort() uint16 {
	if o.Port > 0 {
		return uint16(o.Port)
	}
	if o.Httping && !o.HttpingTLS() {
		return 80
	}
	return 443
}

// ResolvedOutput 返回生效的输出文件路径，空表示不输出
func (o *Options) ResolvedOutput() string {
	switch o.Output {
	case "":
		return "result.csv"
	case OutputDisabled:
		return ""
	default:
		return o.Output
	}
}

// Validate 校验参数组合并计算派生值，配置错误是致命的
func (o *Options) Validate() error {
	if o.IPFile == "" && o.IPText == "" && o.IPURL == "" {
		return fmt.Errorf("必须指定一个或多个 IP 来源参数 (-f, -ipurl 或 -ip)")
	}

	if o.HttpingURLs == HuFromSpeedURL && o.URL == "" && o.URLList == "" {
		return fmt.Errorf("使用 -hu 参数并且没有传入测速地址时，必须通过 -url 或 -urlist 参数指定测速地址")
	}
	if !o.DisableDownload && o.URL == "" && o.URLList == "" {
		return fmt.Errorf("未设置测速地址，在没有使用 -dd 参数时，请使用 -url 或 -urlist 参数指定下载测速的测速地址")
	}
	if o.DisableDownload && (o.URL != "" || o.URLList != "") && o.HttpingURLs != HuFromSpeedURL {
		gologger.Warning().Msgf("注意：使用了 -dd 参数，但仍设置了 -url 或 -urlist，且未用于 -hu")
	}

	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("无效的测速端口: %d", o.Port)
	}

	// 参数范围收敛
	o.PingTimes = clamp(o.PingTimes, 1, 65535)
	o.DownloadSecs = clamp(o.DownloadSecs, 1, 120)
	o.TargetDownloads = clamp(o.TargetDownloads, 1, 65535)
	o.Concurrency = clamp(o.Concurrency, 1, 1024)
	o.PrintNum = clamp(o.PrintNum, 1, 65535)
	o.MaxDelayMS = clamp(o.MaxDelayMS, 0, 2000)
	o.MinDelayMS = clamp(o.MinDelayMS, 0, o.MaxDelayMS)

	lossRate, err := parseRate(o.MaxLossRateText, 1.0)
	if err != nil || lossRate < 0 || lossRate > 1 {
		return fmt.Errorf("无效的丢包率上限: %s", o.MaxLossRateText)
	}
	o.MaxLossRate = lossRate

	minSpeed, err := parseRate(o.MinSpeedText, 0)
	if err != nil || minSpeed < 0 {
		return fmt.Errorf("无效的下载速度下限: %s", o.MinSpeedText)
	}
	o.MinSpeed = minSpeed
	if o.TargetNum < 0 {
		return fmt.Errorf("无效的目标数量: %d", o.TargetNum)
	}

	timeout, err := parseTimeout(o.Timeout)
	if err != nil {
		return err
	}
	o.GlobalTimeout = timeout

	codes, err := parseStatusCodes(o.HttpingCodes)
	if err != nil {
		return err
	}
	o.AcceptedCodes = codes

	return nil
}

// parseRate 解析浮点数参数，空值回退默认
func parseRate(raw string, def float64) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

// parseTimeout 解析全局超时，支持纯秒数和 1h3m 形式
func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	var d time.Duration
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		d = time.Duration(secs) * time.Second
	} else {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("无效的超时时间: %s", raw)
		}
		d = parsed
	}
	if d < time.Second {
		d = time.Second
	}
	if d > 36000*time.Second {
		d = 36000 * time.Second
	}
	return d, nil
}

// parseStatusCodes 解析 -hc 参数，未指定时默认 200, 301, 302
func parseStatusCodes(raw string) (map[int]struct{}, error) {
	codes := make(map[int]struct{})
	if raw == "" {
		codes[200] = struct{}{}
		codes[301] = struct{}{}
		codes[302] = struct{}{}
		return codes, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("无效的状态码: %s", part)
		}
		codes[code] = struct{}{}
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("无效的状态码参数: %s", raw)
	}
	return codes, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
