package control

import (
	"sync"
	"time"

	"github.com/projectdiscovery/gologger"
)

// LogSink 以节流方式把进度写入日志，保持核心逻辑无界面依赖
type LogSink struct {
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewLogSink 创建默认每 500ms 上报一次的进度日志
func NewLogSink() *LogSink {
	return &LogSink{Interval: 500 * time.Millisecond}
}

func (s *LogSink) Update(attempted, qualified int, liveSpeed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.last) < s.Interval {
		return
	}
	s.last = now
	if liveSpeed > 0 {
		gologger.Debug().Msgf("已测 %d, 合格 %d, 当前速度 %.2f MB/s", attempted, qualified, liveSpeed/1024/1024)
	} else {
		gologger.Debug().Msgf("已测 %d, 合格 %d", attempted, qualified)
	}
}
