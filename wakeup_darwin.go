//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package eventloop

import "syscall"

// createWakeFd creates a non-blocking self-pipe for wake-up notifications
// (BSD/Darwin lacks eventfd).
func createWakeFd() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func writeWakeByte(writeFD int) {
	var b [1]byte
	_, _ = syscall.Write(writeFD, b[:])
}

func drainWakeFD(readFD int) {
	var buf [512]byte
	for {
		_, err := syscall.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	_ = syscall.Close(readFD)
	if writeFD != readFD {
		_ = syscall.Close(writeFD)
	}
	return nil
}
