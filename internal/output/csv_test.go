package output

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

func sampleSet() model.SpeedSet {
	return model.SpeedSet{
		{
			Endpoint:      model.Endpoint{Addr: netip.MustParseAddr("1.1.1.1"), Port: 443},
			Sent:          4,
			Received:      4,
			DelayMS:       12.5,
			Colo:          "SJC",
			DownloadSpeed: 20.25 * 1024 * 1024,
			HasSpeed:      true,
		},
		{
			Endpoint: model.Endpoint{Addr: netip.MustParseAddr("2606:4700::1"), Port: 2053},
			Sent:     4,
			Received: 3,
			DelayMS:  45.75,
			Colo:     "HKG",
		},
	}
}

func TestWriteCSVHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	if err := WriteCSV(path, nil, false); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	want := "IP,Sent,Received,LossRate,AvgDelayMs,SpeedMBps,Colo\n"
	if string(data) != want {
		t.Errorf("空结果应只有表头:\n%q", string(data))
	}
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "b.csv")

	set := sampleSet()
	if err := WriteCSV(first, set, false); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	parsed, err := ReadCSV(first)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if err := WriteCSV(second, parsed, false); err != nil {
		t.Fatalf("WriteCSV 第二次: %v", err)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if string(a) != string(b) {
		t.Errorf("往返结果不一致:\n%q\n%q", a, b)
	}
}

func TestCSVRoundTripWithPort(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "b.csv")

	if err := WriteCSV(first, sampleSet(), true); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	parsed, err := ReadCSV(first)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	// 带端口写出时地址解析须保留端口
	if parsed[0].Endpoint.Port != 443 || parsed[1].Endpoint.Port != 2053 {
		t.Errorf("端口丢失: %d, %d", parsed[0].Endpoint.Port, parsed[1].Endpoint.Port)
	}
	if err := WriteCSV(second, parsed, true); err != nil {
		t.Fatalf("WriteCSV 第二次: %v", err)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if string(a) != string(b) {
		t.Errorf("带端口往返结果不一致:\n%q\n%q", a, b)
	}
}

func TestReadCSVFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.csv")
	if err := WriteCSV(path, sampleSet(), false); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	parsed, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("解析行数 = %d", len(parsed))
	}

	m := parsed[0]
	if m.Sent != 4 || m.Received != 4 || m.DelayMS != 12.5 || m.Colo != "SJC" {
		t.Errorf("字段解析错误: %+v", m)
	}
	if !m.HasSpeed || m.SpeedMBps() != 20.25 {
		t.Errorf("速度解析错误: %v", m.SpeedMBps())
	}
	// 无速度的行速度列为空
	if parsed[1].HasSpeed {
		t.Errorf("无速度的行不应带速度")
	}
}

func TestReadCSVInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	os.WriteFile(path, []byte("IP,Sent,Received,LossRate,AvgDelayMs,SpeedMBps,Colo\nnot-an-ip,4,4,0.00,10.00,,SJC\n"), 0644)
	if _, err := ReadCSV(path); err == nil {
		t.Errorf("无效地址应返回错误")
	}
}
