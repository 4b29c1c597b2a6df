package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/llmrc/llmrc/internal/logger"
	"github.com/llmrc/llmrc/internal/metrics"
)

const engineVersion = "1.0.0"

// Synthetic delivery latency reported with each payload; there is no real
// client transport behind metadata emission.
const syntheticLatency = time.Millisecond

// MetadataPayload is the periodic status record emitted by the supervisory
// loop. It is built fresh on each tick and discarded after being logged.
type MetadataPayload struct {
	Timestamp       string `json:"timestamp"`
	EngineID        string `json:"engine_id"`
	Version         string `json:"version"`
	Status          string `json:"status"`
	APIServerStatus string `json:"api_server_status"`
	ConfigLoaded    bool   `json:"config_loaded"`
	ConfigPath      string `json:"config_path,omitempty"`
	DeviceCount     int    `json:"device_count"`
}

func (e *Engine) buildMetadata() MetadataPayload {
	serverStatus := "not_initialized"
	if e.srv != nil {
		if e.srv.Running() {
			serverStatus = "running"
		} else {
			serverStatus = "stopped"
		}
	}

	return MetadataPayload{
		Timestamp:       time.Now().Format(time.RFC3339Nano),
		EngineID:        fmt.Sprintf("engine_%d", os.Getpid()),
		Version:         engineVersion,
		Status:          "active",
		APIServerStatus: serverStatus,
		ConfigLoaded:    e.cfg.Path != "",
		ConfigPath:      e.cfg.Path,
		DeviceCount:     len(e.deviceIDs),
	}
}

// sendMetadata emits one payload and reports transmission statistics. The
// statistics are synthetic; they exist for observability of the loop itself.
func (e *Engine) sendMetadata() {
	payload := e.buildMetadata()

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("failed to encode metadata payload", "error", err)
		return
	}

	if payload.APIServerStatus == "running" {
		logger.Log.Info("metadata queued for delivery", "payload", string(data))
	} else {
		logger.Log.Warn("API server not running, metadata logged locally",
			"server_status", payload.APIServerStatus, "payload", string(data))
	}

	throughput := float64(len(data)) / syntheticLatency.Seconds() / 1024
	logger.Log.Debug("metadata transmission stats",
		"bytes", len(data),
		"latency_ms", float64(syntheticLatency.Microseconds())/1000,
		"throughput_kbps", throughput)

	metrics.RecordMetadata(len(data), syntheticLatency)
}
