package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sentinelops/gatekeep/internal/adapter/inbound/adminapi"
	"github.com/sentinelops/gatekeep/internal/adapter/inbound/authapi"
	"github.com/sentinelops/gatekeep/internal/adapter/inbound/detectapi"
	"github.com/sentinelops/gatekeep/internal/adapter/inbound/httpmw"
	"github.com/sentinelops/gatekeep/internal/adapter/inbound/proxyapi"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/crypt"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/fswriter"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/genaiclient"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/jwtauth"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/ratelimitstore"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/sessioncache"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/store"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/vectorindex"
	"github.com/sentinelops/gatekeep/internal/config"
	"github.com/sentinelops/gatekeep/internal/domain/kb"
	"github.com/sentinelops/gatekeep/internal/domain/ratelimit"
	"github.com/sentinelops/gatekeep/internal/service"
	"github.com/sentinelops/gatekeep/internal/service/cache"
)

var surfacesFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start one or more of the admin/detection/proxy HTTP surfaces",
	Long: `Serve builds the full service graph from the loaded config and
starts the requested HTTP surfaces, each on its own listener so the
three can be deployed and scaled independently (spec.md §2):

  gatekeep serve                          # admin + detection + proxy
  gatekeep serve --surfaces=proxy          # proxy only
  gatekeep serve --surfaces=admin,detection`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&surfacesFlag, "surfaces", "admin,detection,proxy", "comma-separated list of surfaces to start")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build service graph: %w", err)
	}
	defer deps.Close()

	surfaces, err := parseSurfaces(surfacesFlag)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(surfaces))
	var servers []*http.Server
	var serversMu sync.Mutex

	for _, s := range surfaces {
		srv := deps.buildServer(s, logger)
		serversMu.Lock()
		servers = append(servers, srv)
		serversMu.Unlock()

		wg.Add(1)
		go func(surface string, srv *http.Server) {
			defer wg.Done()
			logger.Info("starting HTTP surface", "surface", surface, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s surface: %w", surface, err)
			}
		}(s, srv)
	}

	go deps.importer.Run(ctx) //nolint:errcheck
	deps.sessions.StartCleanup(ctx, 5*time.Minute)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("surface failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	serversMu.Lock()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during surface shutdown", "addr", srv.Addr, "error", err)
		}
	}
	serversMu.Unlock()
	wg.Wait()

	return nil
}

func parseSurfaces(raw string) ([]string, error) {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		switch s {
		case "admin", "detection", "proxy":
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unknown surface %q (want admin, detection or proxy)", s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no surfaces requested")
	}
	return out, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// deps holds every wired service and adapter, built once and shared
// across whichever surfaces --surfaces requests.
type deps struct {
	cfg   *config.GatewayConfig
	store *store.Store

	authSvc    *service.AuthService
	quotaSvc   *service.QuotaService
	detectSvc  *service.DetectionService
	proxySvc   *service.ProxyService
	appealSvc  *service.AppealService
	importer   *service.LogImporter
	auditLog   *fswriter.Writer
	sessions   *sessioncache.Memory
	rateLimit  ratelimit.RateLimiter
}

func (d *deps) Close() {
	if d.auditLog != nil {
		// Run's select on stop already flushes/closes the current file;
		// nothing else to release here synchronously at shutdown.
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	d.sessions.Stop()
}

func buildDeps(ctx context.Context, cfg *config.GatewayConfig, logger *slog.Logger) (*deps, error) {
	st, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	genai := genaiclient.New(cfg.Detection)

	scannerRunner := service.NewScannerRunner(st, genai, cfg.Detection.MaxContextLength)
	riskConfigCache := cache.NewRiskConfigCache(st, 300*time.Second)
	keywordCache := cache.NewKeywordCache(st, 300*time.Second)
	templateCache := cache.NewTemplateCache(st, 600*time.Second)

	embedder := vectorindex.NewOpenAIEmbedder(cfg.Embedding)
	kbIndex := buildKBIndex(ctx, cfg, embedder, st, logger)

	resolver := service.NewDispositionResolver(st, keywordCache, templateCache, kbIndex, genai, genai, true, cfg.DefaultLang)

	auditWriter, err := fswriter.New(cfg.AuditLog)
	if err != nil {
		return nil, fmt.Errorf("build audit writer: %w", err)
	}
	go auditWriter.Run(ctx.Done())

	importer := fswriter.NewImporter(cfg.AuditLog.Dir, st)
	logImporter := service.NewLogImporter(importer, cfg.AuditLog.Dir+"/.importer.lock", logger)

	detectSvc := service.NewDetectionService(scannerRunner, resolver, riskConfigCache, auditWriter)

	jwtIssuer := jwtauth.New(cfg.Auth.JWTSecretKey, time.Duration(cfg.Auth.JWTAccessTokenExpireMinutes)*time.Minute)
	authSvc := service.NewAuthService(st, jwtIssuer, cfg.Auth.CacheTTL)

	quotaSvc := service.NewQuotaService(st, cfg.DeploymentMode != "saas")

	appealSvc := service.NewAppealService(st, st, genai)

	keyHex := cfg.Auth.UpstreamKeyEncryptionHex
	if keyHex == "" {
		if !cfg.DevMode {
			return nil, errors.New("auth.upstream_key_encryption_hex is required outside dev_mode")
		}
		keyHex = generateDevEncryptionKey(logger)
	}
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode auth.upstream_key_encryption_hex: %w", err)
	}
	box, err := crypt.NewBox(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("build upstream key box: %w", err)
	}

	anonSvc := service.NewAnonymizationService(logger)
	proxySvc := service.NewProxyService(st, detectSvc, anonSvc, box, logger)

	sessions := sessioncache.New(30 * time.Minute)

	var rl ratelimit.RateLimiter
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr != "" {
		rl = ratelimitstore.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr}), time.Hour)
	} else {
		mem := ratelimitstore.New()
		mem.StartCleanup(ctx)
		rl = mem
	}

	return &deps{
		cfg: cfg, store: st,
		authSvc: authSvc, quotaSvc: quotaSvc, detectSvc: detectSvc, proxySvc: proxySvc,
		appealSvc: appealSvc, importer: logImporter, auditLog: auditWriter, sessions: sessions,
		rateLimit: rl,
	}, nil
}

// buildKBIndex picks Milvus when configured, otherwise the in-process
// cosine-similarity fallback (both implement kb.VectorIndex).
func buildKBIndex(ctx context.Context, cfg *config.GatewayConfig, embedder *vectorindex.OpenAIEmbedder, st *store.Store, logger *slog.Logger) kb.VectorIndex {
	if cfg.Embedding.MilvusAddr != "" {
		idx, err := vectorindex.NewMilvus(ctx, cfg.Embedding.MilvusAddr, cfg.Embedding.Dimension, embedder, st)
		if err == nil {
			return idx
		}
		logger.Error("milvus kb index unavailable, falling back to in-process index", "error", err)
	}
	return vectorindex.NewMemory(embedder, st)
}

func generateDevEncryptionKey(logger *slog.Logger) string {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		logger.Error("failed to generate dev upstream key", "error", err)
		return strings.Repeat("00", 32)
	}
	encoded := hex.EncodeToString(key)
	logger.Warn("generated ephemeral upstream_key_encryption_hex for dev_mode; set auth.upstream_key_encryption_hex to persist across restarts", "key", encoded)
	return encoded
}

func (d *deps) buildServer(surface string, logger *slog.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httpmw.NewMetrics(reg, surface)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpmw.RequestLogger(logger))
	r.Use(httpmw.Recover(logger))
	r.Use(httpmw.Metric(metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-OG-Application-ID", "X-Switch-Session"},
	}))

	rlSizer, _ := d.rateLimit.(interface{ Size() int })
	health := httpmw.NewHealthChecker(d.store, d.sessions, rlSizer, d.auditLog, Version)
	r.Get("/health", health.Handler().ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	var addr string
	var maxConcurrent int

	switch surface {
	case "admin":
		addr, maxConcurrent = d.cfg.Server.AdminAddr, d.cfg.Server.AdminMaxConcurrent
		authHandler := authapi.NewHandler(d.store, d.authSvc)
		authHandler.Mount(r)
		r.Group(func(r chi.Router) {
			r.Use(httpmw.Auth(d.authSvc))
			r.Use(httpmw.Concurrency(ratelimit.NewConcurrencyLimiter(maxConcurrent)))
			r.Route("/api/v1", func(r chi.Router) {
				adminapi.NewHandler(d.store, d.appealSvc, d.importer).Mount(r, httpmw.SuperAdminOnly)
			})
		})
	case "detection":
		addr, maxConcurrent = d.cfg.Server.DetectionAddr, d.cfg.Server.DetectionMaxConcurrent
		r.Group(func(r chi.Router) {
			r.Use(httpmw.Auth(d.authSvc))
			r.Use(httpmw.RateLimit(d.rateLimit, ratelimit.RateLimitConfig{Rate: d.cfg.RateLimit.DefaultRPS, Burst: d.cfg.RateLimit.DefaultRPS, Period: time.Second}))
			r.Use(httpmw.Concurrency(ratelimit.NewConcurrencyLimiter(maxConcurrent)))
			r.Use(httpmw.Quota(d.quotaSvc))
			detectapi.NewHandler(d.detectSvc, d.sessions, logger).Mount(r)
		})
	case "proxy":
		addr, maxConcurrent = d.cfg.Server.ProxyAddr, d.cfg.Server.ProxyMaxConcurrent
		r.Group(func(r chi.Router) {
			r.Use(httpmw.Auth(d.authSvc))
			r.Use(httpmw.RateLimit(d.rateLimit, ratelimit.RateLimitConfig{Rate: d.cfg.RateLimit.DefaultRPS, Burst: d.cfg.RateLimit.DefaultRPS, Period: time.Second}))
			r.Use(httpmw.Concurrency(ratelimit.NewConcurrencyLimiter(maxConcurrent)))
			r.Use(httpmw.Quota(d.quotaSvc))
			proxyapi.NewHandler(d.proxySvc, logger).Mount(r)
		})
	}

	return &http.Server{Addr: addr, Handler: r}
}
