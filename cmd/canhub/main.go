package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus/netbus"
	fx "github.com/robotalks/canlink/pkg/framework"
)

var (
	listenAddr = ":7080"
	httpAddr   = ":7081"
)

func init() {
	flag.StringVar(&listenAddr, "listen", listenAddr, "TCP address for netbus peers")
	flag.StringVar(&httpAddr, "http", httpAddr, "HTTP address serving websocket peers on /bus, empty to disable")
}

type httpServer struct {
	server *http.Server
}

func (s *httpServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	glog.Infof("websocket peers on %s/bus", ln.Addr())
	return fx.RunWithContextCloser(ctx, s.server, func() error {
		return s.server.Serve(ln)
	})
}

func main() {
	flag.Parse()

	hub := netbus.NewHub()
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		glog.Exit(err)
	}
	glog.Infof("netbus peers on %s", ln.Addr())

	runner := fx.NewRunner().HandleSignals().
		Go(fx.NamedRun("hub", fx.RunFunc(func(ctx context.Context) error {
			return hub.Serve(ctx, ln)
		})))
	if httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/bus", hub.Handler())
		runner.Go(fx.NamedRun("http", &httpServer{server: &http.Server{Addr: httpAddr, Handler: mux}}))
	}
	go func() {
		for range time.Tick(time.Minute) {
			st := hub.Stats()
			glog.Infof("peers %d, frames %d, dropped %d", hub.Peers(), st.Frames, st.Dropped)
		}
	}()
	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
