package datasource

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// ParseResult 是 IP 来源解析的汇总结果
type ParseResult struct {
	Endpoints []model.Endpoint // 直接指定的单个 IP
	Cidrs     []model.CidrSpec // 待采样的网段
	Malformed int              // 被跳过的无效条目数量
}

// SplitTokens 将原始文本拆分为待解析的条目
// 按行和逗号分隔，忽略空白、# 和 // 开头的注释行
func SplitTokens(text string) []string {
	var tokens []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		for _, tok := range strings.Split(line, ",") {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}

// ParseTokens 将条目列表解析为单个 IP 和 CIDR 网段
// 支持的格式：IP、IP:端口、[IPv6]:端口、CIDR、CIDR=采样数量
func ParseTokens(tokens []string, defaultPort uint16) ParseResult {
	var res ParseResult
	for _, tok := range tokens {
		if ep, spec, ok := parseToken(tok, defaultPort); ok {
			if spec != nil {
				res.Cidrs = append(res.Cidrs, *spec)
			} else {
				res.Endpoints = append(res.Endpoints, *ep)
			}
		} else {
			res.Malformed++
		}
	}
	return res
}

func parseToken(tok string, defaultPort uint16) (*model.Endpoint, *model.CidrSpec, bool) {
	// CIDR 条目可携带 =N 形式的自定义采样数量
	if strings.Contains(tok, "/") {
		var count uint32
		if ipPart, countPart, found := strings.Cut(tok, "="); found {
			n, err := strconv.ParseUint(strings.TrimSpace(countPart), 10, 32)
			if err != nil || n == 0 {
				return nil, nil, false
			}
			count = uint32(n)
			tok = strings.TrimSpace(ipPart)
		}
		prefix, err := netip.ParsePrefix(tok)
		if err != nil {
			return nil, nil, false
		}
		return nil, &model.CidrSpec{Prefix: prefix.Masked(), SampleCount: count}, true
	}

	// 带端口的形式：IPv4:端口 或 [IPv6]:端口
	if ap, err := netip.ParseAddrPort(tok); err == nil {
		return &model.Endpoint{Addr: ap.Addr().Unmap(), Port: ap.Port()}, nil, true
	}

	// 纯 IP 字面量，使用默认端口
	if addr, err := netip.ParseAddr(tok); err == nil {
		return &model.Endpoint{Addr: addr.Unmap(), Port: defaultPort}, nil, true
	}

	return nil, nil, false
}
