package eventloop

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// ErrUnsupportedNetwork is returned by the socket adapters for any network
// string other than "tcp"/"tcp4"/"tcp6"/"udp"/"udp4"/"udp6".
var ErrUnsupportedNetwork = errors.New("eventloop: unsupported network")

// Conn is a non-blocking, loop-driven stream socket, the concrete object
// CreateConnection and CreateServer resolve/deliver. Reads and writes retry
// on EAGAIN by re-arming the loop's reader/writer registration rather than
// spinning, the same tryRead/tryWrite pattern xtaci/gaio uses (watcher.go).
type Conn struct {
	loop   *Loop
	fd     int
	laddr  net.Addr
	raddr  net.Addr
	closed atomic.Bool
}

// Fd returns the underlying file descriptor.
func (c *Conn) Fd() int { return c.fd }

// LocalAddr returns the local address, if known.
func (c *Conn) LocalAddr() net.Addr { return c.laddr }

// RemoteAddr returns the remote address, if known.
func (c *Conn) RemoteAddr() net.Addr { return c.raddr }

// Close deregisters the fd from the loop and closes it. Idempotent.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, _ = c.loop.RemoveReader(c.fd)
	_, _ = c.loop.RemoveWriter(c.fd)
	return closeFD(c.fd)
}

// ReadAsync resolves once buf has been filled with at least one byte, or
// rejects with io.EOF on orderly shutdown or the underlying read error.
// Must be called from the loop goroutine.
func (c *Conn) ReadAsync(buf []byte) Future {
	d := NewDeferred()
	cb := func() Step {
		for {
			n, err := readFD(c.fd, buf)
			switch err {
			case nil:
				_, _ = c.loop.RemoveReader(c.fd)
				if n == 0 {
					d.Reject(io.EOF)
				} else {
					d.Resolve(n)
				}
				return StepDone
			case unix.EAGAIN:
				return StepDone
			case unix.EINTR:
				continue
			default:
				_, _ = c.loop.RemoveReader(c.fd)
				d.Reject(err)
				return StepDone
			}
		}
	}
	if _, err := c.loop.AddReader(c.fd, cb); err != nil {
		d.Reject(err)
	}
	return d
}

// WriteAsync resolves with the number of bytes written once all of buf has
// been accepted by the kernel. Must be called from the loop goroutine.
func (c *Conn) WriteAsync(buf []byte) Future {
	d := NewDeferred()
	written := 0
	cb := func() Step {
		for {
			n, err := writeFD(c.fd, buf[written:])
			switch err {
			case nil:
				written += n
				if written >= len(buf) {
					_, _ = c.loop.RemoveWriter(c.fd)
					d.Resolve(written)
					return StepDone
				}
				return StepDone
			case unix.EAGAIN:
				return StepDone
			case unix.EINTR:
				continue
			default:
				_, _ = c.loop.RemoveWriter(c.fd)
				d.Reject(err)
				return StepDone
			}
		}
	}
	if _, err := c.loop.AddWriter(c.fd, cb); err != nil {
		d.Reject(err)
	}
	return d
}

// ipPortToSockaddr converts an IP/port pair into the unix.Sockaddr form
// Connect/Bind/Sendto need, picking AF_INET or AF_INET6 based on whether the
// address has a 4-byte form.
func ipPortToSockaddr(ip net.IP, port int) (int, unix.Sockaddr) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return unix.AF_INET6, sa
}

// boundAddr reports the address actually bound to fd, which may differ from
// the address requested (e.g. port 0 asking for an ephemeral port).
func boundAddr(fd int, network string, fallback net.Addr) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return fallback
	}
	if addr := sockaddrToAddr(sa, network); addr != nil {
		return addr
	}
	return fallback
}

func sockaddrToAddr(sa unix.Sockaddr, network string) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, s.Addr[:])
		if network == "udp" || network == "udp4" || network == "udp6" {
			return &net.UDPAddr{IP: ip, Port: s.Port}
		}
		return &net.TCPAddr{IP: ip, Port: s.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, s.Addr[:])
		if network == "udp" || network == "udp4" || network == "udp6" {
			return &net.UDPAddr{IP: ip, Port: s.Port}
		}
		return &net.TCPAddr{IP: ip, Port: s.Port}
	default:
		return nil
	}
}

func resolveStreamAddr(network, address string) (domain int, sa unix.Sockaddr, resolved net.Addr, err error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return 0, nil, nil, ErrUnsupportedNetwork
	}
	addr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return 0, nil, nil, err
	}
	domain, s := ipPortToSockaddr(addr.IP, addr.Port)
	return domain, s, addr, nil
}

func resolveDatagramAddr(network, address string) (domain int, sa unix.Sockaddr, resolved net.Addr, err error) {
	switch network {
	case "udp", "udp4", "udp6":
	default:
		return 0, nil, nil, ErrUnsupportedNetwork
	}
	if address == "" {
		return unix.AF_INET, nil, nil, nil
	}
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return 0, nil, nil, err
	}
	domain, s := ipPortToSockaddr(addr.IP, addr.Port)
	return domain, s, addr, nil
}

// SockConnect creates a non-blocking stream socket for network/address and
// drives its connect() to completion via the loop's poller, resolving with
// a *Conn. Safe to call from any goroutine; the connect itself is always
// performed on the loop goroutine.
func SockConnect(loop *Loop, network, address string) Future {
	d := NewDeferred()
	domain, sa, raddr, err := resolveStreamAddr(network, address)
	if err != nil {
		d.Reject(err)
		return d
	}

	begin := func() Step {
		fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			d.Reject(err)
			return StepDone
		}
		err = unix.Connect(fd, sa)
		if err != nil && err != unix.EINPROGRESS && err != unix.EALREADY {
			_ = closeFD(fd)
			d.Reject(err)
			return StepDone
		}

		finish := func() Step {
			errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
			_, _ = loop.RemoveConnector(fd)
			if gerr != nil {
				_ = closeFD(fd)
				d.Reject(gerr)
				return StepDone
			}
			if errno != 0 {
				_ = closeFD(fd)
				d.Reject(unix.Errno(errno))
				return StepDone
			}
			d.Resolve(&Conn{loop: loop, fd: fd, raddr: raddr})
			return StepDone
		}
		if _, aerr := loop.AddConnector(fd, finish); aerr != nil {
			_ = closeFD(fd)
			d.Reject(aerr)
		}
		return StepDone
	}

	if loop.isLoopThread() {
		begin()
	} else {
		_ = loop.CallSoonThreadsafe(begin)
	}
	return d
}

// CreateConnection is SockConnect with a default connect timeout applied.
// timeout <= 0 disables the bound.
func CreateConnection(loop *Loop, network, address string, timeout time.Duration) Future {
	inner := SockConnect(loop, network, address)
	if timeout <= 0 {
		return inner
	}

	d := NewDeferred()
	timer, _ := loop.CallLater(timeout, func() Step {
		if !inner.Done() {
			d.Reject(context.DeadlineExceeded)
		}
		return StepDone
	})
	inner.AddDoneCallback(func(f Future) {
		timer.Cancel()
		v, err := f.Result()
		if err != nil {
			d.Reject(err)
		} else {
			d.Resolve(v)
		}
	})
	return d
}

// Listener is a non-blocking, loop-driven listening socket.
type Listener struct {
	loop   *Loop
	fd     int
	addr   net.Addr
	closed atomic.Bool
}

// Addr returns the listener's bound address.
func (ln *Listener) Addr() net.Addr { return ln.addr }

// Close deregisters and closes the listening socket. Idempotent.
func (ln *Listener) Close() error {
	if !ln.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, _ = ln.loop.RemoveReader(ln.fd)
	return closeFD(ln.fd)
}

// CreateServer binds and listens on network/address, calling onAccept for
// every accepted connection. The accept retry-on-EAGAIN loop follows the
// same non-blocking accept pattern as tidwall/evio's loopAccept, adapted to
// this package's AddReader model. backlog <= 0 uses a default of 128. Must
// be called from the loop goroutine.
func CreateServer(loop *Loop, network, address string, backlog int, onAccept func(*Conn)) (*Listener, error) {
	domain, sa, laddr, err := resolveStreamAddr(network, address)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = closeFD(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = closeFD(fd)
		return nil, err
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = closeFD(fd)
		return nil, err
	}

	ln := &Listener{loop: loop, fd: fd, addr: boundAddr(fd, network, laddr)}
	cb := func() Step {
		for {
			nfd, rsa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
			switch err {
			case nil:
				var raddr net.Addr
				if rsa != nil {
					raddr = sockaddrToAddr(rsa, network)
				}
				onAccept(&Conn{loop: loop, fd: nfd, laddr: ln.addr, raddr: raddr})
			case unix.EAGAIN:
				return StepDone
			case unix.EINTR:
				continue
			default:
				loop.logFailure("accept", err)
				return StepDone
			}
		}
	}
	if _, err := loop.AddReader(fd, cb); err != nil {
		_ = closeFD(fd)
		return nil, err
	}
	return ln, nil
}

// Datagram is a non-blocking, loop-driven UDP endpoint.
type Datagram struct {
	loop   *Loop
	fd     int
	addr   net.Addr
	closed atomic.Bool
}

// Fd returns the underlying file descriptor.
func (d *Datagram) Fd() int { return d.fd }

// LocalAddr returns the endpoint's bound address, if any.
func (d *Datagram) LocalAddr() net.Addr { return d.addr }

// Close deregisters and closes the datagram socket. Idempotent.
func (d *Datagram) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, _ = d.loop.RemoveReader(d.fd)
	_, _ = d.loop.RemoveWriter(d.fd)
	return closeFD(d.fd)
}

// DatagramPacket is the result of a completed ReadFromAsync: n bytes were
// received from Addr.
type DatagramPacket struct {
	N    int
	Addr net.Addr
}

// ReadFromAsync resolves with a DatagramPacket once a datagram is available.
func (d *Datagram) ReadFromAsync(buf []byte) Future {
	fut := NewDeferred()
	cb := func() Step {
		for {
			n, from, err := unix.Recvfrom(d.fd, buf, 0)
			switch err {
			case nil:
				_, _ = d.loop.RemoveReader(d.fd)
				var addr net.Addr
				if from != nil {
					addr = sockaddrToAddr(from, "udp")
				}
				fut.Resolve(DatagramPacket{N: n, Addr: addr})
				return StepDone
			case unix.EAGAIN:
				return StepDone
			case unix.EINTR:
				continue
			default:
				_, _ = d.loop.RemoveReader(d.fd)
				fut.Reject(err)
				return StepDone
			}
		}
	}
	if _, err := d.loop.AddReader(d.fd, cb); err != nil {
		fut.Reject(err)
	}
	return fut
}

// WriteToAsync resolves once buf has been handed to the kernel for delivery
// to addr.
func (d *Datagram) WriteToAsync(buf []byte, addr *net.UDPAddr) Future {
	fut := NewDeferred()
	_, sa := ipPortToSockaddr(addr.IP, addr.Port)
	cb := func() Step {
		for {
			err := unix.Sendto(d.fd, buf, 0, sa)
			switch err {
			case nil:
				_, _ = d.loop.RemoveWriter(d.fd)
				fut.Resolve(len(buf))
				return StepDone
			case unix.EAGAIN:
				return StepDone
			case unix.EINTR:
				continue
			default:
				_, _ = d.loop.RemoveWriter(d.fd)
				fut.Reject(err)
				return StepDone
			}
		}
	}
	if _, err := d.loop.AddWriter(d.fd, cb); err != nil {
		fut.Reject(err)
	}
	return fut
}

// CreateDatagramEndpoint creates a UDP socket, optionally bound to
// localAddress (pass "" for an ephemeral, unbound socket). Must be called
// from the loop goroutine.
func CreateDatagramEndpoint(loop *Loop, network, localAddress string) (*Datagram, error) {
	domain, sa, laddr, err := resolveDatagramAddr(network, localAddress)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if sa != nil {
		if err := unix.Bind(fd, sa); err != nil {
			_ = closeFD(fd)
			return nil, err
		}
	}
	return &Datagram{loop: loop, fd: fd, addr: boundAddr(fd, network, laddr)}, nil
}
