//go:build linux

package eventloop

import "golang.org/x/sys/unix"

// createWakeFd creates an eventfd for wake-up notifications (Linux). The
// same fd serves as both read and write end.
func createWakeFd() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return 0, 0, err
	}
	return fd, fd, nil
}

func writeWakeByte(writeFD int) {
	var one [8]byte
	one[7] = 1
	_, _ = unix.Write(writeFD, one[:])
}

func drainWakeFD(readFD int) {
	var buf [8]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	return unix.Close(readFD)
}
