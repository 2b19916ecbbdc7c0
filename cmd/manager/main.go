package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/psantana5/nodehost/pkg/api"
	"github.com/psantana5/nodehost/pkg/bond"
	"github.com/psantana5/nodehost/pkg/cleanup"
	"github.com/psantana5/nodehost/pkg/host"
	"github.com/psantana5/nodehost/pkg/journal"
	"github.com/psantana5/nodehost/pkg/logging"
	"github.com/psantana5/nodehost/pkg/metrics"
	_ "github.com/psantana5/nodehost/pkg/plugin/builtin"
	"github.com/psantana5/nodehost/pkg/shutdown"
	tlsutil "github.com/psantana5/nodehost/pkg/tls"
	"github.com/psantana5/nodehost/pkg/tracing"
)

const version = "1.0.0"

func main() {
	configFile := flag.String("config", "", "Path to config file (default search: ., /etc/nodehost, $HOME/.nodehost)")
	flag.Parse()

	initConfig(*configFile)

	log.Println("Starting nodehost manager")

	// Optional leveled file logger for daemon lifecycle messages
	var logger *logging.Logger
	if viper.GetBool("log.file") {
		var err error
		logger, err = logging.NewFileLogger("manager",
			logging.ParseLevel(viper.GetString("log.level")), viper.GetBool("log.json"))
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	tracingCfg := tracing.Config{
		ServiceName:    "nodehost-manager",
		ServiceVersion: version,
		Environment:    viper.GetString("tracing.environment"),
		OTLPEndpoint:   viper.GetString("tracing.endpoint"),
		Enabled:        viper.GetBool("tracing.enabled"),
	}
	tp, err := tracing.InitTracer(tracingCfg)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	if tracingCfg.Enabled {
		log.Printf("Tracing enabled (endpoint: %s)", tracingCfg.OTLPEndpoint)
	}

	var collector *metrics.Collector
	if viper.GetBool("api.metrics") {
		collector = metrics.NewCollector(nil)
	}

	loader, err := host.New(host.Config{
		WorkerThreads: viper.GetInt("worker_threads"),
		Bond: bond.Config{
			ConnectTimeout:   viper.GetDuration("bond.connect_timeout"),
			HeartbeatTimeout: viper.GetDuration("bond.heartbeat_timeout"),
			CheckInterval:    viper.GetDuration("bond.check_interval"),
		},
		Journal: journal.Config{
			Type:      viper.GetString("journal.type"),
			Path:      viper.GetString("journal.path"),
			DSN:       viper.GetString("journal.dsn"),
			MaxEvents: viper.GetInt("journal.max_events"),
		},
		Metrics: collector,
	})
	if err != nil {
		log.Fatalf("Failed to start host: %v", err)
	}
	if collector != nil {
		collector.ObservePool(loader)
	}

	var cleaner *cleanup.Manager
	if viper.GetBool("cleanup.enabled") {
		cleaner = cleanup.NewManager(cleanup.Config{
			Enabled:         true,
			RetentionDays:   viper.GetInt("cleanup.retention_days"),
			CleanupInterval: viper.GetDuration("cleanup.interval"),
			VacuumInterval:  viper.GetDuration("cleanup.vacuum_interval"),
		}, loader.Journal())
		cleaner.Start()
	}

	if viper.GetBool("api.enabled") {
		apiCfg := api.Config{
			Addr:           viper.GetString("api.addr"),
			APIKey:         viper.GetString("api.key"),
			Namespace:      viper.GetString("namespace"),
			RateLimitRPS:   viper.GetFloat64("api.rate_limit_rps"),
			RateLimitBurst: viper.GetInt("api.rate_limit_burst"),
			EnableMetrics:  collector != nil,
		}
		if tracingCfg.Enabled {
			apiCfg.Tracing = tp
		}

		certFile := viper.GetString("api.tls_cert")
		keyFile := viper.GetString("api.tls_key")
		if certFile != "" && keyFile != "" {
			if _, err := os.Stat(certFile); os.IsNotExist(err) {
				log.Printf("Certificate %s not found, generating self-signed certificate", certFile)
				if err := os.MkdirAll(filepath.Dir(certFile), 0755); err != nil {
					log.Fatalf("Failed to create certificate directory: %v", err)
				}
				if err := tlsutil.GenerateSelfSignedCert(certFile, keyFile, "nodehost"); err != nil {
					log.Fatalf("Failed to generate certificate: %v", err)
				}
			}
			apiCfg.TLSCertFile = certFile
			apiCfg.TLSKeyFile = keyFile
			log.Println("Control surface TLS enabled")
		}

		server := api.NewServer(apiCfg, loader)
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start control surface: %v", err)
		}
		loader.AttachService("api", server)

		if apiCfg.APIKey != "" {
			log.Println("API authentication enabled")
		} else {
			log.Println("WARNING: No API key configured (authentication disabled)")
		}
	} else {
		log.Println("Control surface disabled (embedded mode)")
	}

	if logger != nil {
		logger.Info("Manager started", map[string]interface{}{
			"version": version,
			"workers": loader.Workers(),
		})
	}

	// Hooks run LIFO: cleanup stops before the host closes its journal,
	// tracing and the log file flush last.
	shutdownMgr := shutdown.New(30 * time.Second)
	if logger != nil {
		shutdownMgr.Register("logger", shutdown.CloseResource("log file", logger))
	}
	shutdownMgr.Register("tracing", tp.Shutdown)
	shutdownMgr.Register("host", func(ctx context.Context) error {
		return loader.Close()
	})
	if cleaner != nil {
		shutdownMgr.Register("cleanup", func(ctx context.Context) error {
			cleaner.Stop()
			return nil
		})
	}

	log.Printf("Manager running (version %s), press Ctrl+C to stop", version)
	shutdownMgr.Wait()
}

func initConfig(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("manager")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/nodehost")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".nodehost"))
		}
	}

	viper.SetEnvPrefix("NODEHOST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("worker_threads", 0)
	viper.SetDefault("namespace", "/")
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.addr", ":8420")
	viper.SetDefault("api.rate_limit_rps", 0)
	viper.SetDefault("api.rate_limit_burst", 0)
	viper.SetDefault("api.metrics", true)
	viper.SetDefault("api.tls_cert", "")
	viper.SetDefault("api.tls_key", "")
	viper.SetDefault("bond.connect_timeout", "10s")
	viper.SetDefault("bond.heartbeat_timeout", "4s")
	viper.SetDefault("bond.check_interval", "1s")
	viper.SetDefault("journal.type", "memory")
	viper.SetDefault("journal.path", "nodehost.db")
	viper.SetDefault("journal.max_events", 1000)
	viper.SetDefault("cleanup.enabled", true)
	viper.SetDefault("cleanup.retention_days", 7)
	viper.SetDefault("cleanup.interval", "24h")
	viper.SetDefault("cleanup.vacuum_interval", "168h")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "production")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)
	viper.SetDefault("log.file", false)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Failed to read config: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", viper.ConfigFileUsed())
	}
}
