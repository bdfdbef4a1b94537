package grantrelay

import (
	"context"
	"net/http"

	"github.com/dpup/grantrelay/logging"
)

// ServerOption configures a Server under construction.
type ServerOption func(*builder)

// route pairs a ServeMux pattern, such as "GET /api/events", with either a
// plain handler or a JSON handler.
type route struct {
	pattern string
	http    http.Handler
	json    JSONHandler
}

func (rt route) handler() http.Handler {
	if rt.json != nil {
		return wrapJSONHandler(rt.json)
	}
	return rt.http
}

// New builds a Server. Values not set by an option come from Config.
func New(opts ...ServerOption) *Server {
	b := &builder{
		host:     ConfigString("server.host"),
		port:     Config.Int("server.port"),
		certFile: ConfigString("server.tls.certFile"),
		keyFile:  ConfigString("server.tls.keyFile"),
		security: SecurityHeadersFromConfig(),
		plugins:  &Registry{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b.build()
}

type builder struct {
	ctx      context.Context
	logger   logging.Logger
	host     string
	port     int
	certFile string
	keyFile  string
	security *SecurityHeaders

	plugins *Registry
	routes  []route
}

func (b *builder) baseContext() context.Context {
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case b.logger != nil:
		return logging.With(ctx, b.logger)
	case logging.FromContext(ctx) != nil:
		return ctx
	}
	return logging.With(ctx, logging.NewLogger(ConfigString("logging.format"), ConfigString("logging.level")))
}

func (b *builder) build() *Server {
	mux := http.NewServeMux()
	for _, rt := range b.routes {
		mux.Handle(rt.pattern, rt.handler())
	}

	return &Server{
		baseContext: b.baseContext(),
		host:        b.host,
		port:        b.port,
		certFile:    b.certFile,
		keyFile:     b.keyFile,
		// CORS applies to the whole mux, so 404 and 405 responses carry it.
		handler: logging.Middleware(securityMiddleware(mux, b.security)),
		plugins: b.plugins,
	}
}

// WithContext sets the context requests and plugin initialization derive
// from.
func WithContext(ctx context.Context) ServerOption {
	return func(b *builder) {
		b.ctx = ctx
	}
}

// WithLogger sets the server's logger. Without it a logger already on the
// context is used, otherwise one is built from config.
//
// Config keys: `logging.format`, `logging.level`.
func WithLogger(logger logging.Logger) ServerOption {
	return func(b *builder) {
		b.logger = logger
	}
}

// WithHost sets the interface to listen on.
//
// Config key: `server.host`.
func WithHost(host string) ServerOption {
	return func(b *builder) {
		b.host = host
	}
}

// WithPort sets the port to listen on.
//
// Config key: `server.port`.
func WithPort(port int) ServerOption {
	return func(b *builder) {
		b.port = port
	}
}

// WithTLS serves HTTPS using the given certificate. Without it the server
// speaks plain HTTP/1.1 and h2c.
//
// Config keys: `server.tls.certFile`, `server.tls.keyFile`.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(b *builder) {
		b.certFile = certFile
		b.keyFile = keyFile
	}
}

// WithSecurityHeaders replaces the security and CORS headers read from
// `server.security.*`.
func WithSecurityHeaders(headers *SecurityHeaders) ServerOption {
	return func(b *builder) {
		b.security = headers
	}
}

// WithHTTPHandler routes pattern to h. Patterns follow http.ServeMux, so
// "POST /dev/oauth/token" only matches POST requests.
func WithHTTPHandler(pattern string, h http.Handler) ServerOption {
	return func(b *builder) {
		b.routes = append(b.routes, route{pattern: pattern, http: h})
	}
}

// WithJSONHandler routes pattern to a handler whose result is written as
// JSON. Errors become `{"code", "codeName", "message"}` bodies.
func WithJSONHandler(pattern string, h JSONHandler) ServerOption {
	return func(b *builder) {
		b.routes = append(b.routes, route{pattern: pattern, json: h})
	}
}

// WithPlugin adds p to the registry, applying its server options first when
// it is an OptionProvider. Plugins are initialized by Server.Init.
func WithPlugin(p Plugin) ServerOption {
	return func(b *builder) {
		if op, ok := p.(OptionProvider); ok {
			for _, opt := range op.ServerOptions() {
				opt(b)
			}
		}
		b.plugins.Register(p)
	}
}
