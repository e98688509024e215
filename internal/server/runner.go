package server

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/jroosing/apexdns/internal/api"
	"github.com/jroosing/apexdns/internal/api/models"
	"github.com/jroosing/apexdns/internal/config"
	"github.com/jroosing/apexdns/internal/database"
	"github.com/jroosing/apexdns/internal/zone"
)

// Runner orchestrates startup, zone loading, the listeners, the
// management API and shutdown.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts the server and blocks until SIGINT/SIGTERM. SIGHUP
// reloads the zone file and publishes it atomically; in-flight queries
// finish against the zone they started with.
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the server and blocks until ctx is cancelled or
// a listener fails.
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	z, err := zone.Load(cfg.Zone.File)
	if err != nil {
		return err
	}
	zones := zone.NewHandle(z)
	r.logInfo("zone loaded",
		"file", cfg.Zone.File,
		"origin", z.Origin,
		"serial", z.Serial,
		"names", z.NameCount(),
	)

	workers := r.workerCount(cfg)
	stats := NewDNSStats()
	limiter := NewRateLimiter(RateLimitSettings{
		CleanupSeconds:   cfg.RateLimit.CleanupSeconds,
		MaxIPEntries:     cfg.RateLimit.MaxIPEntries,
		MaxPrefixEntries: cfg.RateLimit.MaxPrefixEntries,
		GlobalQPS:        cfg.RateLimit.GlobalQPS,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
		PrefixQPS:        cfg.RateLimit.PrefixQPS,
		PrefixBurst:      cfg.RateLimit.PrefixBurst,
		IPQPS:            cfg.RateLimit.IPQPS,
		IPBurst:          cfg.RateLimit.IPBurst,
	})

	var observer QueryObserver
	var queryLog *database.QueryLog
	if cfg.QueryLog.Enabled {
		flush, _ := time.ParseDuration(cfg.QueryLog.FlushInterval)
		queryLog, err = database.OpenQueryLog(cfg.QueryLog.Path, database.QueryLogOptions{
			QueueSize:     cfg.QueryLog.QueueSize,
			FlushInterval: flush,
			Logger:        r.logger,
		})
		if err != nil {
			return err
		}
		defer queryLog.Close()
		observer = queryLog
		r.logInfo("query log enabled", "path", cfg.QueryLog.Path)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	r.logInfo("dns listening",
		"addr", addr,
		"udp", true,
		"tcp", cfg.Server.EnableTCP,
		"workers", workers,
	)

	udp := &UDPServer{
		Logger:   r.logger,
		Zones:    zones,
		Limiter:  limiter,
		Stats:    stats,
		Observer: observer,
		Workers:  workers,
	}
	var tcp *TCPServer
	if cfg.Server.EnableTCP {
		tcp = &TCPServer{
			Logger:   r.logger,
			Zones:    zones,
			Limiter:  limiter,
			Stats:    stats,
			Observer: observer,
		}
	}

	errCh := make(chan error, 2)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.New(cfg, r.logger, api.Deps{
			Zones:     zones,
			ZoneFile:  cfg.Zone.File,
			DNSStats:  func() models.DNSStatsResponse { return statsResponse(stats.Snapshot()) },
			QueryLog:  queryLog,
			StartTime: time.Now(),
		})
		go func() {
			if err := apiServer.Start(); err != nil {
				r.logError("api server failed", "err", err)
			}
		}()
		r.logInfo("api listening", "addr", apiServer.Addr())
	}

	// SIGHUP triggers a zone reload.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			if apiServer != nil {
				_ = apiServer.Stop(5 * time.Second)
			}
			return nil
		case err := <-errCh:
			if err != nil {
				cancelRun()
				if apiServer != nil {
					_ = apiServer.Stop(5 * time.Second)
				}
				return err
			}
		case <-hup:
			r.reload(cfg.Zone.File, zones)
		}
	}
}

// reload loads the zone file again and swaps it in. A failed load keeps
// the running zone.
func (r *Runner) reload(path string, zones *zone.Handle) {
	z, err := zone.Load(path)
	if err != nil {
		r.logError("zone reload failed", "file", path, "err", err)
		return
	}
	zones.Swap(z)
	r.logInfo("zone reloaded", "file", path, "serial", z.Serial, "names", z.NameCount())
}

// workerCount derives the UDP worker count from the configuration,
// capped at the usable CPUs.
func (r *Runner) workerCount(cfg *config.Config) int {
	procs := runtime.GOMAXPROCS(0)
	if procs <= 0 {
		procs = 1
	}
	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < procs {
			return w
		}
	}
	return procs
}

// statsResponse maps the counter snapshot onto the API body.
func statsResponse(s DNSStatsSnapshot) models.DNSStatsResponse {
	return models.DNSStatsResponse{
		QueriesTotal: s.QueriesTotal,
		QueriesUDP:   s.QueriesUDP,
		QueriesTCP:   s.QueriesTCP,
		NoError:      s.NoError,
		NXDomain:     s.NXDomain,
		FormErr:      s.FormErr,
		ServFail:     s.ServFail,
		NotImp:       s.NotImp,
		BadVers:      s.BadVers,
		Truncated:    s.Truncated,
		Dropped:      s.Dropped,
		RateLimited:  s.RateLimited,
	}
}

func (r *Runner) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Runner) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}
