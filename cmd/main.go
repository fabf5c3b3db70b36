package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/gologger"

	"github.com/GuangYu-yu/CloudflareST-Go/internal/config"
	"github.com/GuangYu-yu/CloudflareST-Go/internal/control"
	"github.com/GuangYu-yu/CloudflareST-Go/internal/datasource"
	"github.com/GuangYu-yu/CloudflareST-Go/internal/engine"
	"github.com/GuangYu-yu/CloudflareST-Go/internal/output"
	"github.com/GuangYu-yu/CloudflareST-Go/internal/tester"
	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

func main() {
	fmt.Println(aurora.Bold(aurora.Blue("# CloudflareST-Go")))
	fmt.Println()

	opts := config.ParseOptions()
	if err := opts.Validate(); err != nil {
		gologger.Fatal().Msgf("%s", err)
	}

	settings, err := config.LoadSettings(config.DefaultSettingsPath())
	if err != nil {
		gologger.Fatal().Msgf("%s", err)
	}

	bind, err := tester.ResolveBinding(opts.Interface)
	if err != nil {
		gologger.Fatal().Msgf("%s", err)
	}

	// 全局超时由一次性定时器置位，各阶段协作收尾
	flag := control.NewDeadlineFlag()
	if opts.GlobalTimeout > 0 {
		gologger.Info().Msgf("程序执行时间超过 %v 后，将提前结算结果并退出", opts.GlobalTimeout)
		flag.Arm(opts.GlobalTimeout)
	}
	ctx, cancel := flag.Context(context.Background())
	defer cancel()

	speedURLs := collectSpeedURLs(opts)

	// --- C1: IP 来源解析与缓冲区 ---
	tokens, err := datasource.CollectSources(opts.IPText, opts.IPFile, opts.IPURL)
	if err != nil {
		gologger.Fatal().Msgf("%s", err)
	}
	parsed := datasource.ParseTokens(tokens, opts.ResolvedPort())
	if parsed.Malformed > 0 {
		gologger.Warning().Msgf("已跳过 %d 条无效的 IP 条目", parsed.Malformed)
	}
	if len(parsed.Endpoints) == 0 && len(parsed.Cidrs) == 0 {
		gologger.Fatal().Msgf("IP 来源中未找到有效的 IP 或 CIDR")
	}

	// 生产者在延迟测速结束后停止，提前结束时避免继续采样
	bufCtx, bufCancel := context.WithCancel(ctx)
	defer bufCancel()
	buf := datasource.BuildBuffer(bufCtx, parsed, opts.ResolvedPort(), opts.All4,
		opts.Concurrency*settings.BufferMultiplier)

	// --- C2: 延迟测速 ---
	pol := engine.Policy{
		Mode:        probeMode(opts),
		Attempts:    uint16(opts.PingTimes),
		Timeout:     attemptTimeout(opts),
		Concurrency: opts.Concurrency,
		Interval:    200 * time.Millisecond,
		DelayMin:    time.Duration(opts.MinDelayMS) * time.Millisecond,
		DelayMax:    time.Duration(opts.MaxDelayMS) * time.Millisecond,
		LossMax:     opts.MaxLossRate,
		Accepted:    opts.AcceptedCodes,
		ColoFilter:  tester.ParseColoFilter(opts.Colo),
		UserAgent:   settings.UserAgent,
		Bind:        bind,
		EarlyStop:   earlyStop(opts, buf.TotalExpected()),
	}
	if pol.Mode == engine.ModeHTTPTLS {
		pol.URLs = traceURLs(opts, speedURLs)
		if len(pol.URLs) == 0 {
			gologger.Fatal().Msgf("URL 列表为空")
		}
	}

	var success control.SuccessCounter
	sink := control.NewLogSink()
	delaySet, _ := engine.Run(ctx, buf, pol, flag, &success, sink)
	bufCancel()

	// --- C3: 下载测速 ---
	var final model.SpeedSet
	switch {
	case opts.DisableDownload:
		gologger.Info().Msgf("已禁用下载测速")
		final = model.SpeedSet(delaySet)
	case flag.IsSet():
		gologger.Info().Msgf("由于全局超时，跳过下载测速")
		final = model.SpeedSet(delaySet)
	case len(delaySet) == 0:
		gologger.Info().Msgf("延迟测速结果为空，跳过下载测速")
		final = model.SpeedSet(delaySet)
	default:
		dpol := tester.DownloadPolicy{
			URLs:            speedURLs,
			Duration:        time.Duration(opts.DownloadSecs) * time.Second,
			Warmup:          time.Duration(settings.WarmupSecs) * time.Second,
			MinSpeedMBps:    opts.MinSpeed,
			TargetQualified: opts.TargetDownloads,
			ColoFilter:      tester.ParseColoFilter(opts.Colo),
			RateLimitMBps:   settings.RateLimitMB,
			UserAgent:       settings.UserAgent,
			Bind:            bind,
		}
		final = tester.RunDownloads(ctx, delaySet, dpol, flag, sink)
	}
	final.Sort()

	// --- 结果输出 ---
	if path := opts.ResolvedOutput(); path != "" {
		if err := output.WriteCSV(path, final, opts.ShowPort); err != nil {
			gologger.Fatal().Msgf("导出 CSV 失败: %s", err)
		}
		gologger.Info().Msgf("完整测速结果已写入 %s 文件，可使用记事本/表格软件查看", path)
	}
	output.PrintTable(final, opts.PrintNum, opts.ShowPort)
	gologger.Info().Msgf("程序执行完毕")
}

// probeMode 根据参数选择延迟测速方式
func probeMode(opts *config.Options) engine.Mode {
	switch {
	case opts.HttpingTLS():
		return engine.ModeHTTPTLS
	case opts.Httping:
		return engine.ModeHTTPPlain
	default:
		return engine.ModeTCP
	}
}

// attemptTimeout 返回单次测试超时，默认与延迟上限一致
func attemptTimeout(opts *config.Options) time.Duration {
	if opts.MaxDelayMS > 0 {
		return time.Duration(opts.MaxDelayMS) * time.Millisecond
	}
	return 2000 * time.Millisecond
}

// earlyStop 返回提前结束的目标数量，不超过预期 IP 总数
func earlyStop(opts *config.Options, total int) int {
	if opts.TargetNum <= 0 {
		return 0
	}
	if total > 0 && opts.TargetNum > total {
		return total
	}
	return opts.TargetNum
}

// collectSpeedURLs 汇总下载测速地址，-urlist 优先于单个 -url
func collectSpeedURLs(opts *config.Options) []string {
	if opts.URLList != "" {
		urls, err := datasource.FetchURLList(opts.URLList)
		if err != nil {
			gologger.Fatal().Msgf("%s", err)
		}
		return urls
	}
	if opts.URL != "" {
		return []string{opts.URL}
	}
	return nil
}

// traceURLs 计算 TLS Httping 使用的 trace 地址列表
// -hu 带值时使用指定列表，否则从测速地址推导
func traceURLs(opts *config.Options, speedURLs []string) []string {
	var sources []string
	if opts.HttpingURLs != config.HuFromSpeedURL {
		sources = strings.Split(opts.HttpingURLs, ",")
	} else {
		sources = speedURLs
	}

	var traces []string
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		traces = append(traces, toTraceURL(s))
	}
	return traces
}

// toTraceURL 把任意测速地址转换为其主机的 trace 地址
func toTraceURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return fmt.Sprintf("https://%s/cdn-cgi/trace", u.Host)
	}
	return fmt.Sprintf("https://%s/cdn-cgi/trace", raw)
}
