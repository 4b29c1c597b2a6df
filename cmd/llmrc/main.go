package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llmrc/llmrc/internal/config"
	"github.com/llmrc/llmrc/internal/cpuinfo"
	"github.com/llmrc/llmrc/internal/engine"
	"github.com/llmrc/llmrc/internal/logger"
)

var (
	configPath  = flag.String("config", config.DefaultModelConfigPath, "Path to model configuration file")
	port        = flag.Int("port", 0, "Override the API server port from the configuration")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat   = flag.String("log-format", "console", "Log format (console, json)")
	metricsAddr = flag.String("metrics", ":9090", "Address to serve Prometheus metrics")
	validate    = flag.Bool("validate", false, "Validate the model configuration and exit")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)

	if *validate {
		os.Exit(runValidate(*configPath))
	}
	os.Exit(runEngine())
}

func runValidate(path string) int {
	status := config.ValidateModel(path)

	logger.Log.Info("model configuration validation results",
		"valid", status.IsValid,
		"validated_at", status.ValidationTime,
		"validator", status.Validator)
	for _, e := range status.Errors {
		logger.Log.Error("validation error", "detail", e)
	}
	for _, w := range status.Warnings {
		logger.Log.Warn("validation warning", "detail", w)
	}

	if err := config.SaveValidation(path, status); err != nil {
		logger.Log.Error("failed to save validation result", "error", err)
	} else {
		logger.Log.Info("validation result saved", "path", path+".validation")
	}

	if !status.IsValid {
		return 1
	}
	return 0
}

func runEngine() int {
	info := cpuinfo.Detect()
	logger.Log.Info("host CPU",
		"cores", info.Cores,
		"logical", info.Logical,
		"freq_mhz", info.FreqMHz,
		"brand", info.Brand)

	mc := config.LoadModel(*configPath)
	if mc.Path != "" {
		logger.Log.Info("model configuration loaded", "path", mc.Path, "port", mc.EnginePort)
	} else {
		logger.Log.Info("no model configuration found, using defaults", "port", mc.EnginePort)
	}

	cfg := config.EngineFromModel(mc)
	if *port > 0 {
		cfg.Common.APIPort = *port
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Error("invalid engine configuration", "error", err)
		return 1
	}

	// Metrics on a separate address so the raw-socket API server owns its
	// port exclusively
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Log.Info("metrics serving", "addr", fmt.Sprintf("%s/metrics", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Log.Error("metrics server error", "error", err)
		}
	}()

	e := engine.New(cfg)
	defer e.Release()

	devices := make([]int, info.Logical)
	for i := range devices {
		devices[i] = i
	}
	e.SetDeviceTable(devices)

	if err := e.Init(); err != nil {
		logger.Log.Error("engine initialization failed", "error", err)
		return 1
	}

	if err := e.Run(); err != nil {
		logger.Log.Error("engine run failed", "error", err)
		return 1
	}

	logger.Log.Info("engine completed successfully")
	return 0
}
