/*
 * Copyright (c) 2024 Johan Stenstam, johani@johani.org
 */

package xfr

import (
	"encoding/binary"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// TestWorkerRunsSoaProbeToCompletion drives a real Worker event loop
// against a local UDP SOA responder, exercising NewWorker/Run/start/
// onReadable/finishFD end to end (a SOA probe is not a TCP kind, so the
// worker sends it as a bare UDP datagram).
func TestWorkerRunsSoaProbeToCompletion(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	go serveSingleSOA(t, pc, "example.com.", 42)

	queue := newFIFOQueue()
	w, err := NewWorker(0, 4, queue, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	defer w.Stop()

	task := NewTask(Soa, "example.com.", pc.LocalAddr().String())
	task.Watchdog = 2 * time.Second
	task.LocalSerial = 1
	done := make(chan *Task, 1)
	task.OnComplete = func(tt *Task) { done <- tt }

	queue.enqueue(task)
	go w.Run()

	select {
	case finished := <-done:
		if finished.State != Done {
			t.Fatalf("State = %v, want Done (err=%v)", finished.State, finished.Err)
		}
		if finished.RemoteSerial != 42 {
			t.Fatalf("RemoteSerial = %d, want 42", finished.RemoteSerial)
		}
		if finished.UpToDate {
			t.Fatal("expected UpToDate=false: remote serial 42 > local serial 1")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SOA probe to complete")
	}
}

// serveSingleSOA reads one DNS query datagram and replies with a single
// SOA answer at the given serial, as one bare datagram.
func serveSingleSOA(t *testing.T, pc net.PacketConn, zoneName string, serial uint32) {
	buf := make([]byte, 65535)
	n, addr, err := pc.ReadFrom(buf)
	if err != nil {
		return
	}
	query := new(dns.Msg)
	if err := query.Unpack(buf[:n]); err != nil {
		return
	}

	resp := new(dns.Msg)
	resp.SetReply(query)
	soa, err := dns.NewRR(zoneName + " 3600 IN SOA ns1." + zoneName + " host." + zoneName + " " +
		itoa(serial) + " 3600 900 604800 3600")
	if err != nil {
		t.Errorf("building SOA response: %v", err)
		return
	}
	resp.Answer = []dns.RR{soa}

	wire, err := resp.Pack()
	if err != nil {
		t.Errorf("packing SOA response: %v", err)
		return
	}
	pc.WriteTo(wire, addr)
}

// TestWorkerIxfrFallsBackToAxfrOnSameConnection proves the IXFR_IN ->
// AXFR_IN fallback (spec §4.4/§6: a NOTIMPLEMENTED/REFUSED reply to an IXFR
// query "silently restarts as AXFR_IN on the same socket") reuses the
// already-accepted TCP connection instead of dialing a new one: the fake
// peer's Accept is only ever satisfied once.
func TestWorkerIxfrFallsBackToAxfrOnSameConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	var acceptCount int32
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		atomic.AddInt32(&acceptCount, 1)
		defer conn.Close()
		serveIxfrFallbackToAxfr(t, conn, "example.com.")
	}()

	queue := newFIFOQueue()
	w, err := NewWorker(0, 4, queue, nil)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	defer w.Stop()

	task := NewTask(IxfrIn, "example.com.", ln.Addr().String())
	task.Watchdog = 2 * time.Second
	task.LocalSerial = 1
	done := make(chan *Task, 1)
	task.OnComplete = func(tt *Task) { done <- tt }

	queue.enqueue(task)
	go w.Run()

	select {
	case finished := <-done:
		if finished.State != Done {
			t.Fatalf("State = %v, want Done (err=%v)", finished.State, finished.Err)
		}
		if finished.Kind != AxfrIn {
			t.Fatalf("Kind = %v, want AxfrIn once the ixfr fallback has fired", finished.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ixfr->axfr fallback transfer to complete")
	}

	if n := atomic.LoadInt32(&acceptCount); n != 1 {
		t.Fatalf("peer accepted %d connection(s), want exactly 1 (fallback must reuse the same socket)", n)
	}
}

// serveIxfrFallbackToAxfr answers a first IXFR query with NOTIMPLEMENTED
// (triggering the AXFR fallback) and then, on the very same connection,
// answers the fallback AXFR query with a minimal single-message transfer
// (SOA, A, SOA) closed by the terminating SOA.
func serveIxfrFallbackToAxfr(t *testing.T, conn net.Conn, zoneName string) {
	query1, ok := readFramedQuery(t, conn)
	if !ok {
		return
	}
	refusal := new(dns.Msg)
	refusal.SetRcode(query1, dns.RcodeNotImplemented)
	writeFramedResponse(t, conn, refusal)

	query2, ok := readFramedQuery(t, conn)
	if !ok {
		return
	}
	soa, err := dns.NewRR(zoneName + " 3600 IN SOA ns1." + zoneName + " host." + zoneName + " 7 3600 900 604800 3600")
	if err != nil {
		t.Errorf("building soa: %v", err)
		return
	}
	a, err := dns.NewRR("www." + zoneName + " 3600 IN A 192.0.2.1")
	if err != nil {
		t.Errorf("building a: %v", err)
		return
	}
	resp := new(dns.Msg)
	resp.SetReply(query2)
	resp.Answer = []dns.RR{soa, a, soa}
	writeFramedResponse(t, conn, resp)
}

// readFramedQuery reads and unpacks one RFC 1035 §4.2.2 length-prefixed
// message from conn.
func readFramedQuery(t *testing.T, conn net.Conn) (*dns.Msg, bool) {
	var lenBuf [2]byte
	if _, err := readFull(conn, lenBuf[:]); err != nil {
		return nil, false
	}
	qlen := binary.BigEndian.Uint16(lenBuf[:])
	qwire := make([]byte, qlen)
	if _, err := readFull(conn, qwire); err != nil {
		return nil, false
	}
	query := new(dns.Msg)
	if err := query.Unpack(qwire); err != nil {
		t.Errorf("unpacking query: %v", err)
		return nil, false
	}
	return query, true
}

// writeFramedResponse packs and length-prefixes resp onto conn.
func writeFramedResponse(t *testing.T, conn net.Conn, resp *dns.Msg) {
	wire, err := resp.Pack()
	if err != nil {
		t.Errorf("packing response: %v", err)
		return
	}
	framed := make([]byte, 2+len(wire))
	binary.BigEndian.PutUint16(framed, uint16(len(wire)))
	copy(framed[2:], wire)
	conn.Write(framed)
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
