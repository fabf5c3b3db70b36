package datasource

import (
	"testing"
)

func TestSplitTokens(t *testing.T) {
	text := "1.1.1.1, 1.0.0.1\n# 注释行\n// 另一种注释\n\n  2606:4700::/96  \n1.1.1.2,,1.1.1.3"
	tokens := SplitTokens(text)
	want := []string{"1.1.1.1", "1.0.0.1", "2606:4700::/96", "1.1.1.2", "1.1.1.3"}
	if len(tokens) != len(want) {
		t.Fatalf("条目数量 = %d, want %d: %v", len(tokens), len(want), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("条目 %d = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestParseTokensEndpoints(t *testing.T) {
	res := ParseTokens([]string{
		"1.1.1.1",
		"1.0.0.1:8443",
		"2001:db8::1",
		"[2001:db8::2]:2053",
	}, 443)

	if res.Malformed != 0 {
		t.Fatalf("Malformed = %d", res.Malformed)
	}
	if len(res.Endpoints) != 4 || len(res.Cidrs) != 0 {
		t.Fatalf("Endpoints = %d, Cidrs = %d", len(res.Endpoints), len(res.Cidrs))
	}

	// 未带端口的使用默认端口，显式端口优先
	if res.Endpoints[0].Port != 443 {
		t.Errorf("默认端口 = %d", res.Endpoints[0].Port)
	}
	if res.Endpoints[1].Port != 8443 {
		t.Errorf("显式端口 = %d", res.Endpoints[1].Port)
	}
	if res.Endpoints[3].Port != 2053 || !res.Endpoints[3].Addr.Is6() {
		t.Errorf("IPv6 带端口解析错误: %+v", res.Endpoints[3])
	}
}

func TestParseTokensCidrs(t *testing.T) {
	res := ParseTokens([]string{
		"192.0.2.0/24",
		"203.0.113.0/30=2",
		"2001:db8::/120=10",
	}, 443)

	if res.Malformed != 0 || len(res.Cidrs) != 3 {
		t.Fatalf("Malformed = %d, Cidrs = %d", res.Malformed, len(res.Cidrs))
	}
	if res.Cidrs[0].SampleCount != 0 {
		t.Errorf("未指定数量的网段 SampleCount = %d", res.Cidrs[0].SampleCount)
	}
	if res.Cidrs[1].SampleCount != 2 {
		t.Errorf("203.0.113.0/30=2 的 SampleCount = %d", res.Cidrs[1].SampleCount)
	}
	if res.Cidrs[2].SampleCount != 10 {
		t.Errorf("2001:db8::/120=10 的 SampleCount = %d", res.Cidrs[2].SampleCount)
	}
}

func TestParseTokensMalformed(t *testing.T) {
	res := ParseTokens([]string{
		"not-an-ip",
		"300.1.1.1",
		"192.0.2.0/33",
		"192.0.2.0/24=0",  // 数量必须为正
		"192.0.2.0/24=xx", // 数量必须是整数
		"1.1.1.1",
	}, 443)

	if res.Malformed != 5 {
		t.Errorf("Malformed = %d, want 5", res.Malformed)
	}
	if len(res.Endpoints) != 1 {
		t.Errorf("Endpoints = %d, want 1", len(res.Endpoints))
	}
}

func TestParseTokensNormalizesPrefix(t *testing.T) {
	res := ParseTokens([]string{"192.0.2.55/24"}, 443)
	if len(res.Cidrs) != 1 {
		t.Fatalf("Cidrs = %d", len(res.Cidrs))
	}
	if got := res.Cidrs[0].Prefix.Addr().String(); got != "192.0.2.0" {
		t.Errorf("网段未规范化: %s", got)
	}
}
