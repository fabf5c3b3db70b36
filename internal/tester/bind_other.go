//go:build !linux

package tester

import "syscall"

// 非 Linux 系统依赖 LocalAddr 绑定源地址，无对应的按接口绑定
func bindToDevice(string) func(network, address string, c syscall.RawConn) error {
	return nil
}
