package gateway

import "log/slog"

// Option configures an FWP Server.
type Option func(*Server)

// WithAuth sets the authenticator for the server.
// If not set, NoopAuthenticator is used (development mode).
func WithAuth(auth Authenticator) Option {
	return func(s *Server) { s.auth = auth }
}

// WithCodec sets the default codec for the server.
// Clients can override via the auth frame's format field.
func WithCodec(codec Codec) Option {
	return func(s *Server) { s.defaultCodec = codec }
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPath sets the base path for FWP endpoints.
// Default is "/fwp".
func WithPath(path string) Option {
	return func(s *Server) { s.basePath = path }
}
