//go:build linux

package tester

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// bindToDevice 返回将套接字绑定到指定接口的控制函数
func bindToDevice(device string) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var bindErr error
		err := c.Control(func(fd uintptr) {
			bindErr = unix.BindToDevice(int(fd), device)
		})
		if err != nil {
			return err
		}
		return bindErr
	}
}
