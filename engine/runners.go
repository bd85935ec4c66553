package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/xraph/fieldops/arbiter"
	"github.com/xraph/fieldops/cluster"
)

// heartbeatInterval is how often a node refreshes its cluster record.
const heartbeatInterval = 5 * time.Second

// deadNodeThreshold is how long a node may go without heartbeating
// before it is reaped from the cluster store.
const deadNodeThreshold = 30 * time.Second

// drainRunner flushes the arbiter's in-flight side-effect dispatches on
// shutdown. It registers first so it stops last, after the gateway and
// generator have stopped producing new transitions.
type drainRunner struct {
	arb *arbiter.Arbiter
}

func (r *drainRunner) Start(context.Context) error { return nil }

func (r *drainRunner) Stop(context.Context) error {
	r.arb.Drain()
	return nil
}

// membershipRunner keeps this instance's cluster record alive and reaps
// records of nodes that stopped heartbeating.
type membershipRunner struct {
	store  cluster.Store
	node   *cluster.Node
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func (r *membershipRunner) Start(ctx context.Context) error {
	if err := r.store.RegisterNode(ctx, r.node); err != nil {
		return err
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop()
	return nil
}

func (r *membershipRunner) loop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var ticks int
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), heartbeatInterval)
			if err := r.store.HeartbeatNode(ctx, r.node.ID); err != nil {
				r.logger.Warn("cluster heartbeat failed",
					slog.String("node_id", r.node.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			// Reaping is best effort and cheap, so every node does it
			// rather than electing a janitor.
			ticks++
			if ticks%6 == 0 {
				if reaped, err := r.store.ReapDeadNodes(ctx, deadNodeThreshold); err == nil && len(reaped) > 0 {
					r.logger.Info("reaped dead nodes", slog.Int("count", len(reaped)))
				}
			}
			cancel()
		}
	}
}

func (r *membershipRunner) Stop(ctx context.Context) error {
	if r.stopCh != nil {
		close(r.stopCh)
		<-r.doneCh
	}
	return r.store.DeregisterNode(ctx, r.node.ID)
}

// httpRunner serves the FWP gateway over HTTP. Listen errors surface at
// Start; serve errors after that are logged.
type httpRunner struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	srv *http.Server
	ln  net.Listener
}

func (r *httpRunner) Start(context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.ln = ln
	r.srv = &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := r.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("gateway serve error", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("gateway listening", slog.String("addr", ln.Addr().String()))
	return nil
}

func (r *httpRunner) Stop(ctx context.Context) error {
	if r.srv == nil {
		return nil
	}
	return r.srv.Shutdown(ctx)
}
