package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/crypto/acme/autocert"

	"orrery.space/shared/celestial"
)

type Server struct {
	cfg         Config
	calc        *celestial.Calculator
	metrics     *MetricsCollector
	apiLimiter  *IPRateLimiter
	chatLimiter *IPRateLimiter
	// trustedProxies may set X-Forwarded-For.
	trustedProxies []netip.Prefix
	chat           *ChatService // nil when chat is disabled
	now         func() time.Time

	// ctx is canceled on Shutdown and ends open snapshot streams.
	ctx    context.Context
	cancel context.CancelFunc

	certManager   *autocert.Manager
	httpServer    *http.Server
	httpsServer   *http.Server
	metricsServer *http.Server
	wg            sync.WaitGroup
}

func NewServer(cfg Config, calc *celestial.Calculator, chat *ChatService, metrics *MetricsCollector) *Server {
	trusted, err := parseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		// Load rejects these; a hand-built config falls back to RemoteAddr.
		log.Printf("Warning: ignoring trusted proxies: %v", err)
		trusted = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:            cfg,
		calc:           calc,
		metrics:        metrics,
		apiLimiter:     newPerMinuteLimiter(cfg.Server.RateLimit),
		chatLimiter:    newPerMinuteLimiter(cfg.Server.ChatRateLimit),
		trustedProxies: trusted,
		chat:           chat,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (s *Server) serve(name string, run func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("%s server error: %v", name, err)
		}
	}()
}

func (s *Server) Start() error {
	handler := s.routes()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLimiters(time.Minute)
	}()

	if s.cfg.Server.HTTPSAddr != "" {
		s.certManager = newCertManager(s.calc.Table(), s.cfg.Server.Domain, s.cfg.Server.CertDir)
		s.httpsServer = &http.Server{
			Addr:              s.cfg.Server.HTTPSAddr,
			Handler:           handler,
			TLSConfig:         setupTLS(s.certManager),
			ReadHeaderTimeout: 10 * time.Second,
		}
		// ACME http-01 challenges arrive on the plain listener.
		handler = s.certManager.HTTPHandler(handler)

		log.Printf("Starting HTTPS server on %s", s.cfg.Server.HTTPSAddr)
		s.serve("HTTPS", func() error {
			return s.httpsServer.ListenAndServeTLS("", "")
		})
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Starting HTTP server on %s", s.cfg.Server.HTTPAddr)
	s.serve("HTTP", s.httpServer.ListenAndServe)

	if s.cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		log.Printf("Starting metrics server on %s", s.cfg.Server.MetricsAddr)
		s.serve("Metrics", s.metricsServer.ListenAndServe)
	}

	log.Printf("Orrery serving %d bodies under %s", s.calc.Table().Len(), s.cfg.Server.Domain)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	var errs []error
	for _, srv := range []*http.Server{s.httpServer, s.httpsServer, s.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server %s shutdown error: %v", srv.Addr, err)
			errs = append(errs, err)
		}
	}

	s.wg.Wait()
	return errors.Join(errs...)
}

// runServer starts the listeners and blocks until SIGINT or SIGTERM.
func runServer(cfg Config) error {
	calc, err := cfg.NewCalculator()
	if err != nil {
		return err
	}

	metrics := NewMetricsCollector(nil)

	ctx := context.Background()
	chatLog, err := NewSQLiteChatLog(ctx, cfg.Chat.DBPath, cfg.Chat.HistoryLimit)
	var chat *ChatService
	if err != nil {
		log.Printf("Warning: chat disabled: %v", err)
	} else {
		defer chatLog.Close()
		chat, err = NewChatService(ctx, chatLog, NewChatClient(cfg.Chat.Timeout),
			NewSecurityValidator(cfg.Chat.AllowedHosts), metrics, ChatSettings{
				BaseURL: cfg.Chat.BaseURL,
				APIKey:  cfg.Chat.APIKey,
				Model:   cfg.Chat.Model,
			})
		if err != nil {
			return err
		}
	}

	server := NewServer(cfg, calc, chat, metrics)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := server.Start(); err != nil {
		return err
	}

	<-signals
	log.Println("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server shutdown complete")
	return nil
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
