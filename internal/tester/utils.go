package tester

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// DefaultUserAgent 是测速请求使用的浏览器 User-Agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Binding 描述出站连接绑定的本地接口或源地址
type Binding struct {
	Device string     // 接口名，Linux 下通过 SO_BINDTODEVICE 绑定
	V4     netip.Addr // 本地 IPv4 源地址
	V6     netip.Addr // 本地 IPv6 源地址
}

// ResolveBinding 解析 -intf 参数
// 参数既可以是本地 IP 地址，也可以是网络接口名
func ResolveBinding(intf string) (*Binding, error) {
	if intf == "" {
		return nil, nil
	}

	if addr, err := netip.ParseAddr(intf); err == nil {
		b := &Binding{}
		if addr.Is4() {
			b.V4 = addr
		} else {
			b.V6 = addr
		}
		return b, nil
	}

	iface, err := net.InterfaceByName(intf)
	if err != nil {
		return nil, fmt.Errorf("无效的绑定: %s", intf)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("获取接口 %s 地址失败: %w", intf, err)
	}

	b := &Binding{Device: iface.Name}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		// 跳过环回、链路本地和组播地址
		if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsMulticast() {
			continue
		}
		if addr.Is4() && !b.V4.IsValid() {
			b.V4 = addr
		}
		if addr.Is6() && !b.V6.IsValid() {
			b.V6 = addr
		}
	}
	return b, nil
}

// localAddr 返回与目标地址族匹配的本地 TCP 源地址
func (b *Binding) localAddr(target netip.Addr) *net.TCPAddr {
	if b == nil {
		return nil
	}
	if target.Is4() && b.V4.IsValid() {
		return &net.TCPAddr{IP: b.V4.AsSlice()}
	}
	if target.Is6() && b.V6.IsValid() {
		return &net.TCPAddr{IP: b.V6.AsSlice()}
	}
	return nil
}

// NewDialer 创建绑定了本地接口的拨号器
func NewDialer(bind *Binding, target netip.Addr, timeout time.Duration) *net.Dialer {
	d := &net.Dialer{Timeout: timeout}
	if bind != nil {
		d.LocalAddr = bind.localAddr(target)
		if bind.Device != "" {
			d.Control = bindToDevice(bind.Device)
		}
	}
	return d
}

// PinnedDialContext 创建固定拨号目标的 DialContext
// 无论请求的主机名是什么都连接到指定端点，实现 DNS 旁路
func PinnedDialContext(ep model.Endpoint, bind *Binding, timeout time.Duration) func(ctx context.Context, network, address string) (net.Conn, error) {
	target := ep.String()
	return func(ctx context.Context, network, _ string) (net.Conn, error) {
		return NewDialer(bind, ep.Addr, timeout).DialContext(ctx, network, target)
	}
}

// ExtractColo 从响应头中提取数据中心代码
// Cloudflare 从 cf-ray 提取（示例 7bd32409eda7b020-SJC），
// 其他 CDN 回退到 AWS CloudFront 的 x-amz-cf-pop
func ExtractColo(header http.Header) string {
	if ray := header.Get("cf-ray"); ray != "" {
		parts := strings.Split(ray, "-")
		if len(parts) >= 2 && parts[1] != "" {
			return strings.ToUpper(parts[1])
		}
		return ""
	}
	if pop := header.Get("x-amz-cf-pop"); pop != "" {
		colo, _, _ := strings.Cut(pop, "-")
		return strings.ToUpper(colo)
	}
	return ""
}

// ParseColoFilter 将 -colo 参数解析为大写代码集合
func ParseColoFilter(colo string) map[string]struct{} {
	if colo == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, c := range strings.Split(colo, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// ColoMatched 判断数据中心是否满足过滤条件，空过滤集视为全部通过
func ColoMatched(colo string, filter map[string]struct{}) bool {
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[strings.ToUpper(colo)]
	return ok
}

// roundDelayMS 将平均延迟四舍五入到两位小数
func roundDelayMS(totalMS float64, received uint16) float64 {
	if received == 0 {
		return 0
	}
	avg := totalMS / float64(received)
	return float64(int64(avg*100+0.5)) / 100
}
