/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 *
 * Raw non-blocking TCP framing for XFR streams. The teacher's transfer
 * path (refreshengine.go) uses a blocking dns.Client.Exchange per message
 * inside a goroutine-per-zone loop; spec §1/§5 explicitly call for a
 * single event loop multiplexing "hundreds of concurrent in-flight
 * transfers" via one FDSet per worker rather than one goroutine per
 * connection, so the inbound path here manages its own non-blocking
 * socket and RFC 1035 §4.2.2 two-byte length-prefixed framing instead of
 * handing the connection to net.Conn's blocking Read/Write.
 */

package xfr

import (
	"encoding/binary"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// rawConn wraps a dialed TCP connection's raw file descriptor for
// non-blocking read/write, plus the in-progress DNS TCP message framing
// buffer (RFC 1035 §4.2.2: 2-byte length prefix).
type rawConn struct {
	conn net.Conn
	fd   int
	udp  bool

	inbuf   []byte
	wantLen int // -1 until the 2-byte length prefix has been read
}

// dialRaw opens a non-blocking TCP connection to addr and returns its raw
// fd for FDSet registration.
func dialRaw(addr string) (*rawConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, syscall.EINVAL
	}
	fd, err := nonblockingFD(tcpConn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &rawConn{conn: conn, fd: fd, wantLen: -1}, nil
}

// dialRawUDP opens a non-blocking UDP "connection" (a connected datagram
// socket) to addr, used for the UDP-first task kinds (NOTIFY, SOA probes,
// UPDATE forwarding) per spec §4.4.
func dialRawUDP(addr string) (*rawConn, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, syscall.EINVAL
	}
	fd, err := nonblockingFD(udpConn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &rawConn{conn: conn, fd: fd, udp: true, wantLen: -1}, nil
}

type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

func nonblockingFD(c syscallConner) (int, error) {
	sc, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	var ctrlErr error
	err = sc.Control(func(rawFd uintptr) {
		fd = int(rawFd)
		ctrlErr = unix.SetNonblock(fd, true)
	})
	if err != nil {
		return 0, err
	}
	return fd, ctrlErr
}

func (r *rawConn) Close() error {
	return r.conn.Close()
}

// send transmits an already-packed DNS message, framing it with the
// RFC 1035 §4.2.2 two-byte length prefix over TCP, or as a single bare
// datagram over UDP.
func (r *rawConn) send(wire []byte) error {
	if r.udp {
		return r.writeAll(wire)
	}
	return r.writeMessage(wire)
}

// writeMessage frames and sends a DNS message's already-packed wire bytes.
func (r *rawConn) writeMessage(wire []byte) error {
	framed := make([]byte, 2+len(wire))
	binary.BigEndian.PutUint16(framed, uint16(len(wire)))
	copy(framed[2:], wire)
	return r.writeAll(framed)
}

func (r *rawConn) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(r.fd, b)
		if err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// pump reads whatever is currently available on the socket and returns
// every complete framed DNS message it can assemble. It never blocks:
// EAGAIN simply means "nothing more right now," to be revisited on the
// next FDSet readiness event.
func (r *rawConn) pump() (messages [][]byte, closed bool, err error) {
	var scratch [4096]byte

	if r.udp {
		for {
			n, rerr := unix.Read(r.fd, scratch[:])
			if rerr == unix.EAGAIN {
				break
			}
			if rerr != nil {
				return messages, false, rerr
			}
			if n == 0 {
				break
			}
			msg := make([]byte, n)
			copy(msg, scratch[:n])
			messages = append(messages, msg)
		}
		return messages, false, nil
	}

	for {
		n, rerr := unix.Read(r.fd, scratch[:])
		if rerr == unix.EAGAIN {
			break
		}
		if rerr != nil {
			return messages, false, rerr
		}
		if n == 0 {
			closed = true
			break
		}
		r.inbuf = append(r.inbuf, scratch[:n]...)
	}

	for {
		if r.wantLen < 0 {
			if len(r.inbuf) < 2 {
				break
			}
			r.wantLen = int(binary.BigEndian.Uint16(r.inbuf[:2]))
			r.inbuf = r.inbuf[2:]
		}
		if len(r.inbuf) < r.wantLen {
			break
		}
		messages = append(messages, r.inbuf[:r.wantLen])
		r.inbuf = r.inbuf[r.wantLen:]
		r.wantLen = -1
	}
	return messages, closed, nil
}
