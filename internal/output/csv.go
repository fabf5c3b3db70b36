package output

import (
	"encoding/csv"
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// Header 是 CSV 与终端表格共用的列定义
var Header = []string{"IP", "Sent", "Received", "LossRate", "AvgDelayMs", "SpeedMBps", "Colo"}

// WriteCSV 将结果写入 CSV 文件，结果为空时仅写表头
func WriteCSV(path string, results model.SpeedSet, showPort bool) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("无法创建 CSV 文件 '%s': %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("写入 CSV 表头失败: %w", err)
	}
	for _, m := range results {
		if err := writer.Write(m.Fields(showPort)); err != nil {
			return fmt.Errorf("写入 CSV 行失败: %w", err)
		}
	}
	return writer.Error()
}

// ReadCSV 从 CSV 文件读回结果集合
// 丢包率列不读取（由收发计数推导），地址列兼容带端口的形式
func ReadCSV(path string) (model.SpeedSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开 CSV 文件 '%s': %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析 CSV 失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV 文件 '%s' 为空", path)
	}

	var results model.SpeedSet
	for _, row := range rows[1:] {
		if len(row) != len(Header) {
			return nil, fmt.Errorf("CSV 行字段数量不符: %v", row)
		}
		m, err := parseRow(row)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, nil
}

func parseRow(row []string) (*model.Measurement, error) {
	var ep model.Endpoint
	if ap, err := netip.ParseAddrPort(row[0]); err == nil {
		ep = model.Endpoint{Addr: ap.Addr(), Port: ap.Port()}
	} else if addr, err := netip.ParseAddr(row[0]); err == nil {
		ep = model.Endpoint{Addr: addr}
	} else {
		return nil, fmt.Errorf("无效的 IP 字段: %s", row[0])
	}

	sent, err := strconv.ParseUint(row[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("无效的 Sent 字段: %s", row[1])
	}
	received, err := strconv.ParseUint(row[2], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("无效的 Received 字段: %s", row[2])
	}
	delay, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return nil, fmt.Errorf("无效的 AvgDelayMs 字段: %s", row[4])
	}

	m := &model.Measurement{
		Endpoint: ep,
		Sent:     uint16(sent),
		Received: uint16(received),
		DelayMS:  delay,
		Colo:     row[6],
	}
	if row[5] != "" {
		mbps, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("无效的 SpeedMBps 字段: %s", row[5])
		}
		m.DownloadSpeed = mbps * 1024 * 1024
		m.HasSpeed = true
	}
	return m, nil
}
