package tester

import (
	"context"
	"time"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// TCPProbe 通过建立 TCP 连接测量延迟
type TCPProbe struct {
	Attempts uint16        // 每个端点的测试次数
	Timeout  time.Duration // 单次连接超时
	Interval time.Duration // 成功后的间隔等待
	Bind     *Binding
}

// Probe 对单个端点串行执行多次连接测试并聚合结果
// 全部失败时返回 nil
func (p *TCPProbe) Probe(ctx context.Context, ep model.Endpoint) *model.Measurement {
	var (
		received uint16
		totalMS  float64
	)

	for i := uint16(0); i < p.Attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		if delay, ok := p.connectOnce(ctx, ep); ok {
			received++
			totalMS += delay
			// 限制对单个目标的突发压力
			if i+1 < p.Attempts {
				sleepCtx(ctx, p.Interval)
			}
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
	}
}

// connectOnce 执行单次连接并返回毫秒延迟
func (p *TCPProbe) connectOnce(ctx context.Context, ep model.Endpoint) (float64, bool) {
	dialCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := NewDialer(p.Bind, ep.Addr, p.Timeout).DialContext(dialCtx, "tcp", ep.String())
	if err != nil {
		return 0, false
	}
	delay := float64(time.Since(start)) / float64(time.Millisecond)
	conn.Close()
	return delay, true
}

// sleepCtx 可被取消的等待
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
