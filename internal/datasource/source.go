package datasource

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	fileutil "github.com/projectdiscovery/utils/file"
	sliceutil "github.com/projectdiscovery/utils/slice"
)

const fetchTimeout = 10 * time.Second

// CollectSources 汇总全部 IP 来源的条目
// 依次处理内联文本、本地文件和远程地址，合并后去重
func CollectSources(inline, filePath, url string) ([]string, error) {
	var tokens []string

	if inline != "" {
		tokens = append(tokens, SplitTokens(inline)...)
	}

	if filePath != "" {
		if !fileutil.FileExists(filePath) {
			return nil, fmt.Errorf("IP 文件不存在: %s", filePath)
		}
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("无法读取 IP 文件 '%s': %w", filePath, err)
		}
		tokens = append(tokens, SplitTokens(string(data))...)
	}

	if url != "" {
		lines, err := FetchLines(url)
		if err != nil {
			return nil, fmt.Errorf("从 URL 获取 IP 列表失败: %w", err)
		}
		tokens = append(tokens, lines...)
	}

	return sliceutil.Dedupe(tokens), nil
}

// FetchLines 下载远程文本并拆分为条目
// 供 -ipurl 和 -urlist 两处使用
func FetchLines(url string) ([]string, error) {
	client := &http.Client{Timeout: fetchTimeout}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return SplitTokens(string(data)), nil
}

// FetchURLList 获取测速地址列表，过滤出有效的 http(s) 地址
func FetchURLList(url string) ([]string, error) {
	lines, err := FetchLines(url)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, line := range lines {
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("URL 列表为空: %s", url)
	}
	return urls, nil
}
