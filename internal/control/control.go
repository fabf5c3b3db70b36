package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DeadlineFlag 是全局超时标志，由一次性定时器置位
// 所有测速循环只读该标志，置位后各阶段尽快结算收尾
type DeadlineFlag struct {
	set  atomic.Bool
	done chan struct{}
	once sync.Once
}

func NewDeadlineFlag() *DeadlineFlag {
	return &DeadlineFlag{done: make(chan struct{})}
}

// Arm 启动一次性定时器，到期后置位标志
func (d *DeadlineFlag) Arm(timeout time.Duration) {
	time.AfterFunc(timeout, d.Set)
}

// Set 置位标志，幂等
func (d *DeadlineFlag) Set() {
	d.once.Do(func() {
		d.set.Store(true)
		close(d.done)
	})
}

// IsSet 返回标志是否已置位
func (d *DeadlineFlag) IsSet() bool { return d.set.Load() }

// Done 返回置位时关闭的通道
func (d *DeadlineFlag) Done() <-chan struct{} { return d.done }

// Context 派生一个在标志置位时取消的上下文
func (d *DeadlineFlag) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-d.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// SuccessCounter 统计已合格的端点数量，只增不减
type SuccessCounter struct {
	n atomic.Int64
}

// Inc 计数加一并返回新值
func (c *SuccessCounter) Inc() int64 { return c.n.Add(1) }

// Load 读取当前计数
func (c *SuccessCounter) Load() int64 { return c.n.Load() }

// ProgressSink 接收测速进度，核心逻辑不依赖具体展示方式
type ProgressSink interface {
	// Update 上报已测数量、合格数量和实时速度（B/s，无下载时为 0）
	Update(attempted, qualified int, liveSpeed float64)
}

// NopSink 丢弃全部进度上报
type NopSink struct{}

func (NopSink) Update(int, int, float64) {}
