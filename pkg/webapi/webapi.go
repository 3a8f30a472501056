// This file serves readiness, metrics and log level endpoints for the monitor.

package webapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/couchbase/cluster-ready/readiness"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// StatusSource provides the readiness results being served.
type StatusSource interface {
	Status() readiness.MonitorStatus
}

type WebServerOptions struct {
	Logger        *zap.Logger
	LogLevel      *zap.AtomicLevel
	ListenAddress string
	Status        StatusSource

	// TLSCertificate switches the server to https when set.
	TLSCertificate *tls.Certificate
}

type WebServer struct {
	logger         *zap.Logger
	logLevel       *zap.AtomicLevel
	listenAddress  string
	status         StatusSource
	tlsCertificate *tls.Certificate
	httpServer     *http.Server
}

func NewWebServer(opts WebServerOptions) *WebServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &WebServer{
		logger:         logger,
		logLevel:       opts.LogLevel,
		listenAddress:  opts.ListenAddress,
		status:         opts.Status,
		tlsCertificate: opts.TLSCertificate,
	}

	w.httpServer = &http.Server{
		Handler:      w.Handler(),
		Addr:         w.listenAddress,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if w.tlsCertificate != nil {
		w.httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*w.tlsCertificate},
			MinVersion:   tls.VersionTLS12,
		}
	}

	return w
}

func (w *WebServer) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(200)
	_, err := rw.Write([]byte("Welcome to the cluster-ready readiness monitor"))
	if err != nil {
		w.logger.Debug("failed to write generic root response", zap.Error(err))
	}
}

func (w *WebServer) writeStatus(rw http.ResponseWriter, ready bool, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if ready {
		rw.WriteHeader(http.StatusOK)
	} else {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}

	err := json.NewEncoder(rw).Encode(body)
	if err != nil {
		w.logger.Debug("failed to write readiness response", zap.Error(err))
	}
}

func (w *WebServer) handleReady(rw http.ResponseWriter, r *http.Request) {
	status := w.status.Status()
	w.writeStatus(rw, status.Ready(), status)
}

func (w *WebServer) handleComponent(pick func(readiness.MonitorStatus) *readiness.ComponentStatus) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		component := pick(w.status.Status())
		if component == nil {
			http.Error(rw, "component is not being monitored", http.StatusNotFound)
			return
		}

		w.writeStatus(rw, component.Ready, component)
	}
}

// Handler builds the http routes served by the web server.
func (w *WebServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	if w.status != nil {
		r.HandleFunc("/readyz", w.handleReady).Methods(http.MethodGet)
		r.HandleFunc("/readyz/ensemble", w.handleComponent(func(s readiness.MonitorStatus) *readiness.ComponentStatus {
			return s.Ensemble
		})).Methods(http.MethodGet)
		r.HandleFunc("/readyz/cluster", w.handleComponent(func(s readiness.MonitorStatus) *readiness.ComponentStatus {
			return s.Cluster
		})).Methods(http.MethodGet)
	}
	if w.logLevel != nil {
		// zap serves GET and PUT of {"level":"debug"} itself
		r.Handle("/log-level", w.logLevel).Methods(http.MethodGet, http.MethodPut)
	}
	r.HandleFunc("/", w.handleRoot)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut},
	})

	return otelhttp.NewHandler(c.Handler(r), "readiness-webapi")
}

// Serve accepts connections on l until Shutdown is called.
func (w *WebServer) Serve(l net.Listener) error {
	var err error
	if w.tlsCertificate != nil {
		err = w.httpServer.ServeTLS(l, "", "")
	} else {
		err = w.httpServer.Serve(l)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (w *WebServer) ListenAndServe() error {
	l, err := net.Listen("tcp", w.listenAddress)
	if err != nil {
		return err
	}

	w.logger.Info("web server listening", zap.String("address", l.Addr().String()))
	return w.Serve(l)
}

func (w *WebServer) Shutdown(ctx context.Context) error {
	return w.httpServer.Shutdown(ctx)
}
