package output

import (
	"fmt"
	"strings"

	"github.com/logrusorgru/aurora/v4"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

const columnPadding = 3

// 数值列右对齐，地址和数据中心左对齐
var rightAlign = [7]bool{false, true, true, true, true, true, false}

// PrintTable 将前 printNum 条结果打印为终端表格
func PrintTable(results model.SpeedSet, printNum int, showPort bool) {
	if len(results) == 0 {
		fmt.Println("测速结果 IP 数量为 0，跳过输出结果")
		return
	}
	if printNum > len(results) {
		printNum = len(results)
	}

	rows := make([][]string, 0, printNum)
	widths := make([]int, len(Header))
	for i, h := range Header {
		widths[i] = len(h)
	}
	for _, m := range results[:printNum] {
		fields := m.Fields(showPort)
		for i, f := range fields {
			if len(f) > widths[i] {
				widths[i] = len(f)
			}
		}
		rows = append(rows, fields)
	}

	total := columnPadding * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	line := strings.Repeat("─", total)

	fmt.Println(line)
	var header strings.Builder
	for i, h := range Header {
		header.WriteString(pad(aurora.Bold(h).String(), h, widths[i], rightAlign[i]))
		if i < len(Header)-1 {
			header.WriteString(strings.Repeat(" ", columnPadding))
		}
	}
	fmt.Println(header.String())

	for _, row := range rows {
		var b strings.Builder
		for i, f := range row {
			b.WriteString(pad(f, f, widths[i], rightAlign[i]))
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", columnPadding))
			}
		}
		fmt.Println(b.String())
	}
	fmt.Println(line)
}

// pad 按可见宽度补齐字段，colored 可能携带 ANSI 转义序列
func pad(colored, plain string, width int, right bool) string {
	fill := width - len(plain)
	if fill < 0 {
		fill = 0
	}
	if right {
		return strings.Repeat(" ", fill) + colored
	}
	return colored + strings.Repeat(" ", fill)
}
