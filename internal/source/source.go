// Package source delivers inbound sample datagrams.  Every source reads on
// its own goroutine and hands datagrams over a buffered channel, so the
// engine loop can drain whatever is pending without blocking.
package source

import "errors"

// DefaultQueueSize bounds how many datagrams may wait between polls before
// the reader goroutine blocks.
const DefaultQueueSize = 4096

// MaxDatagram is the read buffer size for a single datagram.
const MaxDatagram = 1024

// ErrClosed is reported by Err after Close.
var ErrClosed = errors.New("source: closed")

// Source is a stream of raw datagrams.
type Source interface {
	// Packets yields datagrams in arrival order.  It is closed when the
	// reader stops.
	Packets() <-chan []byte
	// Err returns the error that stopped the reader, if any.
	Err() error
	Close() error
	String() string
}

// Drain calls fn for each datagram currently queued on src and returns how
// many were handled.  It never waits for new data.  ok is false once the
// source has stopped.
func Drain(src Source, fn func([]byte)) (n int, ok bool) {
	ch := src.Packets()
	for {
		select {
		case data, open := <-ch:
			if !open {
				return n, false
			}
			fn(data)
			n++
		default:
			return n, true
		}
	}
}
