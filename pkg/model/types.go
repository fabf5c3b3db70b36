package model

import (
	"fmt"
	"net/netip"
	"sort"
)

// Endpoint 表示一个待测速的目标（IP + 端口）
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// String 返回带端口的地址字符串，IPv6 使用方括号包裹
func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

// Display 返回用于展示的地址，showPort 控制是否带端口
func (e Endpoint) Display(showPort bool) string {
	if showPort {
		return e.String()
	}
	return e.Addr.String()
}

// CidrSpec 表示一个待采样的 CIDR 网段
type CidrSpec struct {
	Prefix      netip.Prefix
	SampleCount uint32 // 0 表示使用默认采样数量
}

// Measurement 是贯穿各阶段的单 IP 聚合结果
type Measurement struct {
	Endpoint Endpoint
	Sent     uint16
	Received uint16
	DelayMS  float64 // 平均延迟（毫秒，保留两位小数），仅在 Received > 0 时有效
	Colo     string  // 数据中心代码，未知时为空
	// 下载速度（B/s），仅在 HasSpeed 为 true 时有效
	DownloadSpeed float64
	HasSpeed      bool
}

// LossRate 按需计算丢包率，不存储以避免过期
func (m *Measurement) LossRate() float64 {
	if m.Sent == 0 {
		return 1.0
	}
	return 1.0 - float64(m.Received)/float64(m.Sent)
}

// SpeedMBps 返回以 MB/s 为单位的下载速度（1 MB = 1,048,576 字节）
func (m *Measurement) SpeedMBps() float64 {
	return m.DownloadSpeed / 1024.0 / 1024.0
}

// DelaySet 是延迟测速阶段的合格结果集合
type DelaySet []*Measurement

// SpeedSet 是下载测速阶段的合格结果集合
type SpeedSet []*Measurement

// Sort 按（平均延迟，丢包率）升序排序，为下载测速准备队列
func (s DelaySet) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].DelayMS != s[j].DelayMS {
			return s[i].DelayMS < s[j].DelayMS
		}
		return s[i].LossRate() < s[j].LossRate()
	})
}

// Sort 按组合键排序：下载速度降序（无速度视为最小），再延迟升序，再丢包率升序
func (s SpeedSet) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.HasSpeed != b.HasSpeed {
			return a.HasSpeed
		}
		if a.HasSpeed && a.DownloadSpeed != b.DownloadSpeed {
			return a.DownloadSpeed > b.DownloadSpeed
		}
		if a.DelayMS != b.DelayMS {
			return a.DelayMS < b.DelayMS
		}
		return a.LossRate() < b.LossRate()
	})
}

// Fields 将结果转换为输出用的字符串字段
// 列顺序与 CSV 表头一致：IP, Sent, Received, LossRate, AvgDelayMs, SpeedMBps, Colo
func (m *Measurement) Fields(showPort bool) []string {
	speed := ""
	if m.HasSpeed {
		speed = fmt.Sprintf("%.2f", m.SpeedMBps())
	}
	return []string{
		m.Endpoint.Display(showPort),
		fmt.Sprintf("%d", m.Sent),
		fmt.Sprintf("%d", m.Received),
		fmt.Sprintf("%.2f", m.LossRate()),
		fmt.Sprintf("%.2f", m.DelayMS),
		speed,
		m.Colo,
	}
}
