package tester

import (
	"context"
	"net/http"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/projectdiscovery/gologger"
	"golang.org/x/time/rate"

	"github.com/GuangYu-yu/CloudflareST-Go/internal/control"
	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

const (
	// 首字节超时（毫秒）
	ttfbTimeout = 1200 * time.Millisecond
	// 实时速率的滑动窗口宽度
	speedWindow = 500 * time.Millisecond
	// EWMA 的时间片宽度
	ewmaSlice = 100 * time.Millisecond
	// 读缓冲区大小
	readBufSize = 8192

	mb = 1024 * 1024
)

// DownloadPolicy 是下载测速阶段的配置
type DownloadPolicy struct {
	URLs            []string      // 测速地址，端点间轮询
	Duration        time.Duration // 单个端点的测速窗口
	Warmup          time.Duration // 预热时间，之后才开始累计测量
	MinSpeedMBps    float64       // 下载速度下限（MB/s）
	TargetQualified int           // 所需符合要求的结果数量
	ColoFilter      map[string]struct{}
	RateLimitMBps   float64 // 可选的下载限速（MB/s），0 为不限速
	UserAgent       string
	Bind            *Binding
}

// RunDownloads 按延迟升序对队列逐个下载测速
// 串行执行以避免并行下载互相干扰测速结果；
// 达到目标数量、队列耗尽或全局超时时结束
func RunDownloads(ctx context.Context, queue model.DelaySet, pol DownloadPolicy, flag *control.DeadlineFlag, sink control.ProgressSink) model.SpeedSet {
	if len(queue) < pol.TargetQualified {
		gologger.Warning().Msgf("队列的 IP 数量不足，可能需要降低延迟测速筛选条件！")
	}
	gologger.Info().Msgf("开始下载测速（下限：%.2f MB/s, 所需：%d, 队列：%d）",
		pol.MinSpeedMBps, pol.TargetQualified, len(queue))

	var qualified model.SpeedSet
	tested := 0

	for i, m := range queue {
		if flag.IsSet() || ctx.Err() != nil || len(qualified) >= pol.TargetQualified {
			break
		}

		// 已知数据中心且不符合过滤条件的端点直接跳过
		if m.Colo != "" && !ColoMatched(m.Colo, pol.ColoFilter) {
			continue
		}

		url := pol.URLs[i%len(pol.URLs)]
		speed, colo, ok := pol.measureOne(ctx, m, url, flag, sink, tested, len(qualified))
		tested++

		if m.Colo == "" && colo != "" {
			m.Colo = colo
		}

		if !ok || !ColoMatched(m.Colo, pol.ColoFilter) {
			sink.Update(tested, len(qualified), 0)
			continue
		}
		if speed < pol.MinSpeedMBps*mb {
			sink.Update(tested, len(qualified), 0)
			continue
		}

		m.DownloadSpeed = speed
		m.HasSpeed = true
		qualified = append(qualified, m)
		sink.Update(tested, len(qualified), speed)
	}

	if len(qualified) < pol.TargetQualified {
		gologger.Warning().Msgf("下载测速符合要求的 IP 数量不足！")
	}
	gologger.Info().Msgf("下载测速完成（已测：%d, 合格：%d）", tested, len(qualified))
	qualified.Sort()
	return qualified
}

// measureOne 对单个端点执行一次下载测速
// 返回测量窗口内的平均速度（B/s）和可能提取到的数据中心
func (pol *DownloadPolicy) measureOne(ctx context.Context, m *model.Measurement, url string, flag *control.DeadlineFlag, sink control.ProgressSink, tested, qualified int) (float64, string, bool) {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext:           PinnedDialContext(m.Endpoint, pol.Bind, ttfbTimeout),
			ResponseHeaderTimeout: ttfbTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	defer client.CloseIdleConnections()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", false
	}
	ua := pol.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", false
	}

	colo := ExtractColo(resp.Header)
	// 需要数据中心信息但响应未携带时放弃该端点
	if m.Colo == "" && len(pol.ColoFilter) > 0 {
		if colo == "" {
			return 0, "", false
		}
		if !ColoMatched(colo, pol.ColoFilter) {
			return 0, colo, false
		}
	}

	var limiter *rate.Limiter
	if pol.RateLimitMBps > 0 {
		limiter = rate.NewLimiter(rate.Limit(pol.RateLimitMBps*mb), int(pol.RateLimitMBps*mb))
	}

	meter := newSpeedMeter(pol.Warmup)
	buf := make([]byte, readBufSize)
	start := time.Now()
	deadline := start.Add(pol.Warmup + pol.Duration)
	lastReport := start

	for {
		now := time.Now()
		if now.After(deadline) || flag.IsSet() || ctx.Err() != nil {
			break
		}

		if limiter != nil {
			if err := limiter.WaitN(reqCtx, len(buf)); err != nil {
				break
			}
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			meter.add(int64(n))
		}
		if err != nil {
			break
		}

		if time.Since(lastReport) >= speedWindow {
			sink.Update(tested, qualified, meter.liveRate())
			lastReport = time.Now()
		}
	}

	speed, ok := meter.measuredRate()
	return speed, colo, ok
}

// speedMeter 同时维护两个独立的速率观测值：
// 滑动窗口和 EWMA 驱动实时展示，预热后的累计字节数驱动最终测量
type speedMeter struct {
	start       time.Time
	warmup      time.Duration
	samples     []speedSample // 最近窗口内的（时间，累计字节）样本
	cumulative  int64
	avg         ewma.MovingAverage
	sliceStart  time.Time
	sliceBytes  int64
	windowStart time.Time // 测量窗口的起点（首个预热后的数据点）
	windowBytes int64
	lastData    time.Time
}

type speedSample struct {
	t   time.Time
	cum int64
}

func newSpeedMeter(warmup time.Duration) *speedMeter {
	now := time.Now()
	return &speedMeter{
		start:      now,
		warmup:     warmup,
		avg:        ewma.NewMovingAverage(),
		sliceStart: now,
	}
}

// add 记录一次读取
func (s *speedMeter) add(n int64) {
	now := time.Now()
	s.cumulative += n
	s.samples = append(s.samples, speedSample{t: now, cum: s.cumulative})
	s.trim(now)

	// 按时间片向 EWMA 投喂增量
	s.sliceBytes += n
	if now.Sub(s.sliceStart) >= ewmaSlice {
		s.avg.Add(float64(s.sliceBytes) / now.Sub(s.sliceStart).Seconds())
		s.sliceStart = now
		s.sliceBytes = 0
	}

	if now.Sub(s.start) >= s.warmup {
		if s.windowStart.IsZero() {
			s.windowStart = now
		} else {
			s.windowBytes += n
		}
		s.lastData = now
	}
}

func (s *speedMeter) trim(now time.Time) {
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(s.samples) && s.samples[i].t.Before(cutoff) {
		i++
	}
	s.samples = s.samples[i:]
}

// liveRate 返回用于展示的平滑速率（B/s）
func (s *speedMeter) liveRate() float64 {
	if v := s.avg.Value(); v > 0 {
		return v
	}
	return s.windowRate()
}

// windowRate 返回滑动窗口内的原始速率（B/s）
func (s *speedMeter) windowRate() float64 {
	if len(s.samples) < 2 {
		return 0
	}
	first, last := s.samples[0], s.samples[len(s.samples)-1]
	elapsed := last.t.Sub(first.t).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.cum-first.cum) / elapsed
}

// measuredRate 返回测量窗口的平均速率（B/s）
// 预热结束后没有收到数据（或只有窗口起点那一次读取）时测量无效
func (s *speedMeter) measuredRate() (float64, bool) {
	if s.windowStart.IsZero() || s.lastData.IsZero() {
		return 0, false
	}
	elapsed := s.lastData.Sub(s.windowStart).Seconds()
	if elapsed <= 0 || s.windowBytes == 0 {
		return 0, false
	}
	return float64(s.windowBytes) / elapsed, true
}
