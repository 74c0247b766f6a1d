// Package netbus is a virtual CAN bus spanning processes. A Hub relays
// every frame one peer sends to all other peers; peers connect over TCP
// or websocket.
package netbus

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/framework"
	"github.com/robotalks/canlink/pkg/link"
	"github.com/robotalks/canlink/pkg/link/stream"
	wslink "github.com/robotalks/canlink/pkg/link/websocket"
)

// PeerQueueLen is the number of frames buffered towards a slow peer.
const PeerQueueLen = 64

// HubStats are cumulative Hub counters.
type HubStats struct {
	Frames  uint64
	Dropped uint64
}

type peer struct {
	name string
	conn *link.Conn
	out  chan can.Frame
}

// Hub relays frames between peers.
type Hub struct {
	stats HubStats

	lock  sync.Mutex
	peers map[*peer]struct{}
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{peers: make(map[*peer]struct{})}
}

// Peers returns the number of connected peers.
func (h *Hub) Peers() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.peers)
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Frames:  atomic.LoadUint64(&h.stats.Frames),
		Dropped: atomic.LoadUint64(&h.stats.Dropped),
	}
}

// Serve accepts TCP peers on ln until ctx is done, then disconnects all
// peers.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	defer h.disconnectAll()
	return framework.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			go h.ServeConn(conn.RemoteAddr().String(), link.NewConn(stream.New(conn)))
		}
	})
}

func (h *Hub) disconnectAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for p := range h.peers {
		p.conn.Close()
	}
}

// Handler serves websocket peers, e.g. mounted on /bus.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		ws.PayloadType = websocket.BinaryFrame
		h.ServeConn(ws.Request().RemoteAddr, link.NewConn(wslink.New(ws)))
	})
}

// ServeConn relays frames from conn until it fails, then closes it.
func (h *Hub) ServeConn(name string, conn *link.Conn) error {
	p := &peer{name: name, conn: conn, out: make(chan can.Frame, PeerQueueLen)}
	h.lock.Lock()
	h.peers[p] = struct{}{}
	h.lock.Unlock()
	glog.Infof("netbus: peer %s connected", name)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := range p.out {
			if err := conn.WriteFrame(frame); err != nil {
				glog.Warningf("netbus: peer %s write: %v", name, err)
				conn.Close()
				for range p.out {
				}
				return
			}
		}
	}()

	var err error
	for {
		var frame can.Frame
		if frame, err = conn.ReadFrame(); err != nil {
			break
		}
		h.broadcast(p, frame)
	}

	h.lock.Lock()
	delete(h.peers, p)
	h.lock.Unlock()
	close(p.out)
	<-done
	conn.Close()
	glog.Infof("netbus: peer %s disconnected: %v", name, err)
	return err
}

func (h *Hub) broadcast(from *peer, frame can.Frame) {
	atomic.AddUint64(&h.stats.Frames, 1)
	glog.V(2).Infof("netbus: %s: %s", from.name, frame)
	h.lock.Lock()
	defer h.lock.Unlock()
	for p := range h.peers {
		if p == from {
			continue
		}
		select {
		case p.out <- frame:
		default:
			atomic.AddUint64(&h.stats.Dropped, 1)
		}
	}
}
