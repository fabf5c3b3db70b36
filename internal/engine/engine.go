package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectdiscovery/gologger"

	"github.com/GuangYu-yu/CloudflareST-Go/internal/control"
	"github.com/GuangYu-yu/CloudflareST-Go/internal/datasource"
	"github.com/GuangYu-yu/CloudflareST-Go/internal/tester"
	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// Mode 是延迟测速方式
type Mode int

const (
	ModeTCP       Mode = iota // TCP 连接测速
	ModeHTTPPlain             // 非 TLS 的 Httping
	ModeHTTPTLS               // TLS 的 Httping
)

func (m Mode) String() string {
	switch m {
	case ModeHTTPPlain:
		return "Httping"
	case ModeHTTPTLS:
		return "Httping-TLS"
	default:
		return "Tcping"
	}
}

// Policy 是延迟测速阶段的配置
type Policy struct {
	Mode        Mode
	Attempts    uint16        // 每个端点的测试次数
	Timeout     time.Duration // 单次测试超时
	Concurrency int           // 并发上限
	Interval    time.Duration // 同一端点成功后的间隔

	DelayMin time.Duration
	DelayMax time.Duration
	LossMax  float64

	Accepted   map[int]struct{} // Httping 接受的状态码
	ColoFilter map[string]struct{}
	URLs       []string // TLS Httping 轮询的 trace 地址
	UserAgent  string
	Bind       *tester.Binding

	// 合格数量达到该值后不再派发新端点，0 表示不限制
	EarlyStop int
}

// prober 是按模式可插拔的单端点测速实现
type prober interface {
	Probe(ctx context.Context, ep model.Endpoint) *model.Measurement
}

func (p *Policy) newProber() prober {
	switch p.Mode {
	case ModeHTTPPlain, ModeHTTPTLS:
		return &tester.HTTPProbe{
			TLS:        p.Mode == ModeHTTPTLS,
			URLs:       p.URLs,
			Attempts:   p.Attempts,
			Timeout:    p.Timeout,
			Interval:   p.Interval,
			Accepted:   p.Accepted,
			ColoFilter: p.ColoFilter,
			UserAgent:  p.UserAgent,
			Bind:       p.Bind,
		}
	default:
		return &tester.TCPProbe{
			Attempts: p.Attempts,
			Timeout:  p.Timeout,
			Interval: p.Interval,
			Bind:     p.Bind,
		}
	}
}

// Run 驱动延迟测速阶段
// 固定数量的工作协程从缓冲区取端点并发测速，
// 结果按过滤条件收入 DelaySet，结束时按（延迟，丢包率）排序
func Run(ctx context.Context, buf *datasource.IPBuffer, pol Policy, flag *control.DeadlineFlag, success *control.SuccessCounter, sink control.ProgressSink) (model.DelaySet, int) {
	gologger.Info().Msgf("开始延迟测速（模式：%s, 范围：%d ~ %d ms, 丢包：%.2f）",
		pol.Mode, pol.DelayMin.Milliseconds(), pol.DelayMax.Milliseconds(), pol.LossMax)

	workers := pol.Concurrency
	if workers < 1 {
		workers = 1
	}

	// DelaySet 上限，防止错误配置导致内存失控
	admitCap := 0
	if pol.EarlyStop > 0 {
		admitCap = pol.EarlyStop * 10
	}

	p := pol.newProber()

	var (
		mu      sync.Mutex
		results model.DelaySet
		tested  atomic.Int64
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if flag.IsSet() || ctx.Err() != nil {
					return
				}
				// 达到目标数量后不再派发新端点，在途测试自行收尾
				if pol.EarlyStop > 0 && success.Load() >= int64(pol.EarlyStop) {
					return
				}

				ep, ok := <-buf.C()
				if !ok {
					return
				}

				m := p.Probe(ctx, ep)
				attempted := int(tested.Add(1))

				if m != nil && pol.admit(m) {
					mu.Lock()
					if admitCap == 0 || len(results) < admitCap {
						results = append(results, m)
					}
					mu.Unlock()
					success.Inc()
				}
				sink.Update(attempted, int(success.Load()), 0)
			}
		}()
	}
	wg.Wait()

	results.Sort()
	gologger.Info().Msgf("延迟测速完成（已测：%d, 合格：%d）", tested.Load(), len(results))
	return results, int(tested.Load())
}

// admit 检查测量结果是否满足延迟、丢包和数据中心过滤条件
func (p *Policy) admit(m *model.Measurement) bool {
	if m.Received == 0 {
		return false
	}
	delayMS := float64(p.DelayMax) / float64(time.Millisecond)
	minMS := float64(p.DelayMin) / float64(time.Millisecond)
	if m.DelayMS < minMS || m.DelayMS > delayMS {
		return false
	}
	if m.LossRate() > p.LossMax {
		return false
	}
	// 数据中心已知时校验过滤条件，TCP 模式下 Colo 为空、过滤不生效
	if m.Colo != "" && !tester.ColoMatched(m.Colo, p.ColoFilter) {
		return false
	}
	return true
}
