// Command proxytapd runs the interception-proxy core: the Proxy Engine,
// Flow Engine, Component Registry, Certificate Authority, and Request
// Recorder, wired together per the application's ownership notes. Grounded
// on goproxy's examples/base entrypoint pattern (flag parsing, a single
// blocking Serve call), generalized from a single-struct proxy to this
// module's several owned collaborators.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proxytap/core/internal/ca"
	"github.com/proxytap/core/internal/components"
	"github.com/proxytap/core/internal/config"
	"github.com/proxytap/core/internal/flow"
	"github.com/proxytap/core/internal/httpproxy"
	"github.com/proxytap/core/internal/logging"
	"github.com/proxytap/core/internal/osintegration"
	"github.com/proxytap/core/internal/recorder"
	"github.com/proxytap/core/internal/sandbox"
	"github.com/proxytap/core/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides defaults)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address for the /metrics endpoint; empty disables it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("loading config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, Console: true})

	authority := ca.New(filepath.Join(cfg.DataDir, "certs"))
	if err := authority.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("initializing certificate authority")
	}

	componentDocs, err := store.NewDocuments[components.Definition](filepath.Join(cfg.DataDir, "components"))
	if err != nil {
		log.Fatal().Err(err).Msg("opening component store")
	}
	registry := components.NewRegistry(componentDocs)

	runner := sandbox.New(sandbox.DefaultTimeout)
	registry.SetScriptRunner(runner)

	flowStore, err := flow.NewStore(filepath.Join(cfg.DataDir, "flows"))
	if err != nil {
		log.Fatal().Err(err).Msg("opening flow store")
	}
	engine := flow.New(registry, runner)

	rec := recorder.New(cfg.MaxRequestRecords)

	reg := prometheus.NewRegistry()

	proxy := httpproxy.New(httpproxy.Dependencies{
		Port:        cfg.ProxyPort,
		MITMEnabled: cfg.HTTPSMitmEnabled,
		CA:          authority,
		Registry:    registry,
		Flows:       flowStore,
		Engine:      engine,
		Recorder:    rec,
		Log:         log,
		MetricsReg:  reg,
		DNSResolver: cfg.DNSResolver,
	})

	if err := proxy.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting proxy engine")
	}
	log.Info().Str("dataDir", cfg.DataDir).Msg("proxytapd started")

	var osi osintegration.Integration = osintegration.Noop{}
	if cfg.SystemProxyEnabled {
		if err := osi.ApplySystemProxy(true, "127.0.0.1", cfg.ProxyPort); err != nil {
			log.Warn().Err(err).Msg("failed to apply system proxy setting")
		}
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	if cfg.SystemProxyEnabled {
		_ = osi.ApplySystemProxy(false, "127.0.0.1", cfg.ProxyPort)
	}
	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	proxy.Stop()
	time.Sleep(50 * time.Millisecond)
}
