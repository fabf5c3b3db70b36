package tester

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// listenEndpoint 启动一个本地监听并返回对应端点
func listenEndpoint(t *testing.T) (net.Listener, model.Endpoint) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	ap := netip.MustParseAddrPort(ln.Addr().String())
	return ln, model.Endpoint{Addr: ap.Addr(), Port: ap.Port()}
}

func TestTCPProbeSuccess(t *testing.T) {
	ln, ep := listenEndpoint(t)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := &TCPProbe{Attempts: 3, Timeout: time.Second, Interval: time.Millisecond}
	m := p.Probe(context.Background(), ep)
	if m == nil {
		t.Fatalf("本地监听测速失败")
	}
	if m.Sent != 3 || m.Received != 3 {
		t.Errorf("Sent = %d, Received = %d", m.Sent, m.Received)
	}
	if m.DelayMS <= 0 {
		t.Errorf("DelayMS = %v", m.DelayMS)
	}
	if m.LossRate() != 0 {
		t.Errorf("LossRate = %v", m.LossRate())
	}
	if m.Colo != "" {
		t.Errorf("TCP 模式不应有数据中心: %q", m.Colo)
	}
}

func TestTCPProbeRefusedDiscards(t *testing.T) {
	ln, ep := listenEndpoint(t)
	ln.Close() // 释放端口，连接将被拒绝

	p := &TCPProbe{Attempts: 1, Timeout: 500 * time.Millisecond, Interval: 0}
	if m := p.Probe(context.Background(), ep); m != nil {
		t.Errorf("连接拒绝时应返回 nil，实际 %+v", m)
	}
}

func TestTCPProbeCancelledContext(t *testing.T) {
	_, ep := listenEndpoint(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &TCPProbe{Attempts: 4, Timeout: time.Second, Interval: time.Second}
	if m := p.Probe(ctx, ep); m != nil {
		t.Errorf("取消后的探测应返回 nil")
	}
}

func TestTCPProbePartialLoss(t *testing.T) {
	ln, ep := listenEndpoint(t)
	// 只接受一个连接后关闭监听
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		ln.Close()
	}()

	p := &TCPProbe{Attempts: 2, Timeout: 500 * time.Millisecond, Interval: 100 * time.Millisecond}
	m := p.Probe(context.Background(), ep)
	if m == nil {
		t.Fatalf("存在成功连接时不应返回 nil")
	}
	if m.Received != 1 || m.Sent != 2 {
		t.Errorf("Sent = %d, Received = %d, want 2/1", m.Sent, m.Received)
	}
	if m.LossRate() != 0.5 {
		t.Errorf("LossRate = %v, want 0.5", m.LossRate())
	}
}
