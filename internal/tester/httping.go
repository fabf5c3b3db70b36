package tester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// HTTPProbe 通过 HTTP HEAD 请求测量延迟
// TLS 模式轮询测速地址列表，非 TLS 模式直接对目标 IP 请求 /cdn-cgi/trace
type HTTPProbe struct {
	TLS        bool
	URLs       []string // TLS 模式使用的 trace 地址列表
	Attempts   uint16
	Timeout    time.Duration
	Interval   time.Duration
	Accepted   map[int]struct{} // 接受的 HTTP 状态码
	ColoFilter map[string]struct{}
	UserAgent  string
	Bind       *Binding

	urlIndex atomic.Uint32 // 端点间轮询下标
}

// Probe 对单个端点串行执行多次 HEAD 请求并聚合结果
// 首次成功响应时提取数据中心代码；Colo 不符合过滤条件时
// 中止剩余测试并丢弃该端点
func (p *HTTPProbe) Probe(ctx context.Context, ep model.Endpoint) *model.Measurement {
	url := p.targetURL(ep)

	// 连接复用摊薄握手成本，拨号固定到目标端点
	client := &http.Client{
		Timeout: p.Timeout,
		Transport: &http.Transport{
			DialContext:         PinnedDialContext(ep, p.Bind, p.Timeout),
			MaxIdleConnsPerHost: 1,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	defer client.CloseIdleConnections()

	var (
		received uint16
		totalMS  float64
		colo     string
	)

	for i := uint16(0); i < p.Attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		delay, header, ok := p.headOnce(ctx, client, url, i == p.Attempts-1)
		if !ok {
			continue
		}

		if received == 0 {
			colo = ExtractColo(header)
			if len(p.ColoFilter) > 0 {
				// 无法提取或不匹配时中止，避免在被过滤的端点上继续消耗
				if colo == "" || !ColoMatched(colo, p.ColoFilter) {
					return nil
				}
			}
		}

		received++
		totalMS += delay
		if i+1 < p.Attempts {
			sleepCtx(ctx, p.Interval)
		}
	}

	if received == 0 {
		return nil
	}
	return &model.Measurement{
		Endpoint: ep,
		Sent:     p.Attempts,
		Received: received,
		DelayMS:  roundDelayMS(totalMS, received),
		Colo:     colo,
	}
}

// headOnce 执行单次 HEAD 请求，成功时返回毫秒延迟和响应头
func (p *HTTPProbe) headOnce(ctx context.Context, client *http.Client, url string, last bool) (float64, http.Header, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		return 0, nil, false
	}
	req.Header.Set("User-Agent", p.userAgent())
	if last {
		req.Header.Set("Connection", "close")
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, false
	}
	delay := float64(time.Since(start)) / float64(time.Millisecond)

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// 未配置状态码集合时全部接受
	if len(p.Accepted) > 0 {
		if _, ok := p.Accepted[resp.StatusCode]; !ok {
			return 0, nil, false
		}
	}
	return delay, resp.Header, true
}

// targetURL 选择本端点使用的测速地址
func (p *HTTPProbe) targetURL(ep model.Endpoint) string {
	if p.TLS && len(p.URLs) > 0 {
		idx := p.urlIndex.Add(1) - 1
		return p.URLs[int(idx)%len(p.URLs)]
	}
	host := ep.Addr.String()
	if ep.Addr.Is6() {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s/cdn-cgi/trace", host)
}

func (p *HTTPProbe) userAgent() string {
	if p.UserAgent != "" {
		return p.UserAgent
	}
	return DefaultUserAgent
}
