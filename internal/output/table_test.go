package output

import (
	"testing"
)

func TestPrintTableSmoke(t *testing.T) {
	// 空集合与截断各走一遍，不应崩溃
	PrintTable(nil, 10, false)

	set := sampleSet()
	PrintTable(set, 1, false)
	PrintTable(set, 100, true)
}

func TestPadAlignment(t *testing.T) {
	if got := pad("ab", "ab", 5, true); got != "   ab" {
		t.Errorf("右对齐 = %q", got)
	}
	if got := pad("ab", "ab", 5, false); got != "ab   " {
		t.Errorf("左对齐 = %q", got)
	}
	// 带颜色转义时按可见宽度补齐
	if got := pad("\x1b[1mab\x1b[0m", "ab", 4, true); got != "  \x1b[1mab\x1b[0m" {
		t.Errorf("着色右对齐 = %q", got)
	}
}
