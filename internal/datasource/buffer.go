package datasource

import (
	"context"
	"math/rand"
	"time"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// IPBuffer 是生产者到测速协程之间唯一的有界通道
// 通道关闭表示来源耗尽，容量限制形成背压
type IPBuffer struct {
	ch    chan model.Endpoint
	total int
}

// C 返回消费端通道，消费者必须容忍通道提前关闭
func (b *IPBuffer) C() <-chan model.Endpoint { return b.ch }

// TotalExpected 返回预期产出的端点总数
// 仅用于进度展示，采样可能略多或略少于该值
func (b *IPBuffer) TotalExpected() int { return b.total }

// BuildBuffer 根据解析结果构建 IP 缓冲区并启动生产者协程
// 先投放单个 IP，再轮询各网段采样流，使早期结果覆盖全部网段；
// 缓冲区写满时生产者让出，ctx 取消时立即停止，结束后关闭通道
func BuildBuffer(ctx context.Context, res ParseResult, defaultPort uint16, all4 bool, capacity int) *IPBuffer {
	if capacity < 1 {
		capacity = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	streams := make([]stream, 0, len(res.Cidrs))
	total := len(res.Endpoints)
	for _, spec := range res.Cidrs {
		s := newStream(spec, defaultPort, all4, rng)
		total += s.size()
		streams = append(streams, s)
	}

	buf := &IPBuffer{
		ch:    make(chan model.Endpoint, capacity),
		total: total,
	}

	go func() {
		defer close(buf.ch)

		for _, ep := range res.Endpoints {
			select {
			case buf.ch <- ep:
			case <-ctx.Done():
				return
			}
		}

		// 网段轮询，耗尽的流被移除
		for len(streams) > 0 {
			alive := streams[:0]
			for _, s := range streams {
				ep, ok := s.next()
				if !ok {
					continue
				}
				select {
				case buf.ch <- ep:
				case <-ctx.Done():
					return
				}
				alive = append(alive, s)
			}
			streams = alive
		}
	}()

	return buf
}
