package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idopool/config"
	"idopool/core"
	"idopool/core/events"
	"idopool/core/types"
	"idopool/observability/logging"
	"idopool/rpc"
	"idopool/storage"
)

// logEmitter forwards settlement events to the structured logger.
type logEmitter struct {
	log *slog.Logger
}

func (e logEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok || carrier.Event() == nil {
		e.log.Info("event", "type", evt.EventType())
		return
	}
	payload := carrier.Event()
	args := make([]any, 0, 2+2*len(payload.Attributes))
	args = append(args, "type", payload.Type)
	for key, value := range payload.Attributes {
		args = append(args, key, value)
	}
	e.log.Info("event", args...)
}

func main() {
	var configPath string
	var env string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the configuration file")
	flag.StringVar(&env, "env", "", "deployment environment label for logs")
	flag.Parse()

	logger := logging.Setup("idopoold", env)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	admin, err := cfg.Admin()
	if err != nil {
		logger.Error("invalid admin address in configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db, admin)
	node.SetEmitter(logEmitter{log: logger})

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server listening", "address", cfg.MetricsAddress)
		if err := http.ListenAndServe(cfg.MetricsAddress, metricsMux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	server := rpc.NewServer(node)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("rpc server listening",
		"address", cfg.RPCAddress,
		"network", cfg.NetworkName,
		"admin", cfg.AdminAddress,
	)
	if err := httpServer.ListenAndServe(); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
