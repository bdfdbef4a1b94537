package grantrelay

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	readHeaderTimeout = 10 * time.Second
	drainTimeout      = 2 * time.Second
)

// Server serves the routes contributed by its plugins.
//
//	s := grantrelay.New(
//		grantrelay.WithPlugin(storage.Plugin(store)),
//		grantrelay.WithPlugin(credentials.Plugin()),
//		grantrelay.WithPlugin(grant.Plugin()),
//	)
//	err := s.Start()
type Server struct {
	host     string
	port     int
	certFile string
	keyFile  string

	// baseContext carries the logger into plugin Init and every request.
	baseContext context.Context
	handler     http.Handler
	plugins     *Registry

	mu         sync.Mutex
	httpServer *http.Server
}

// Plugins returns the server's plugin registry.
func (s *Server) Plugins() *Registry {
	return s.plugins
}

// Init initializes the plugins, dependencies first. Start calls it, tests
// that only use Handler call it directly.
func (s *Server) Init() error {
	return s.plugins.Init(s.baseContext)
}

// Handler is the composed middleware and routes, without compression. A
// request whose context has no logger gets the server's.
func (s *Server) Handler() http.Handler {
	base := logging.FromContext(s.baseContext)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.FromContext(r.Context()) == nil {
			r = r.WithContext(logging.With(r.Context(), base))
		}
		s.handler.ServeHTTP(w, r)
	})
}

// Start initializes plugins and serves until Shutdown is called or the
// process gets SIGINT or SIGTERM. Without TLS, HTTP/2 is offered over
// cleartext.
func (s *Server) Start() error {
	if err := s.Init(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapPrefix(err, "failed to listen", 0)
	}

	handler := gziphandler.GzipHandler(s.handler)
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return s.baseContext },
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if s.certFile != "" {
		srv.Handler = handler
		srv.TLSConfig = &tls.Config{NextProtos: []string{"h2"}, MinVersion: tls.VersionTLS12}
	} else {
		srv.Handler = h2c.NewHandler(handler, &http2.Server{})
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case sig := <-sigs:
			logging.Infow(s.baseContext, "shutting down", "signal", sig.String())
			_ = s.Shutdown()
		case <-s.baseContext.Done():
			_ = s.Shutdown()
		case <-served:
		}
	}()

	if s.certFile != "" {
		logging.Infof(s.baseContext, "listening on https://%s", addr)
		err = srv.ServeTLS(ln, s.certFile, s.keyFile)
	} else {
		logging.Infof(s.baseContext, "listening on http://%s", addr)
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits briefly for in-flight
// requests. It is a no-op before Start.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseContext), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Errorw(s.baseContext, "shutdown error", "error", err)
		return err
	}
	logging.Info(s.baseContext, "connections drained")
	return nil
}
