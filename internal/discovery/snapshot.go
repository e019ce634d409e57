package discovery

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

const snapshotVersion = 1

// exportSnapshot represents the serialisable state of a discovery session.
type exportSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Config      exportConfig `json:"config"`
	Devices     []DeviceInfo `json:"devices"`
}

// exportConfig holds configuration metadata in exported files.
type exportConfig struct {
	Source           string `json:"source,omitempty"`
	Target           string `json:"target"`
	SearchTarget     string `json:"search_target"`
	SearchIntervalMs int    `json:"search_interval_ms"`
	EnableEnrichment bool   `json:"enable_enrichment"`
}

// Save writes configuration and devices to the writer as a JSON snapshot.
func Save(w io.Writer, cfg Config, devices []DeviceInfo) error {
	snap := exportSnapshot{
		GeneratedAt: time.Now().UTC(),
		Config: exportConfig{
			Source:           cfg.Source,
			Target:           cfg.Target,
			SearchTarget:     cfg.SearchTarget,
			SearchIntervalMs: int(cfg.SearchInterval / time.Millisecond),
			EnableEnrichment: cfg.EnableEnrichment,
		},
		Devices: devices,
	}

	payload := struct {
		Version  int            `json:"version"`
		Snapshot exportSnapshot `json:"snapshot"`
	}{
		Version:  snapshotVersion,
		Snapshot: snap,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// Load reads a snapshot from the reader and returns the configuration and
// devices it contains.
func Load(r io.Reader) (Config, []DeviceInfo, error) {
	var payload struct {
		Version  int            `json:"version"`
		Snapshot exportSnapshot `json:"snapshot"`
	}
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, err
	}
	if payload.Version != snapshotVersion {
		return Config{}, nil, errors.New("unsupported snapshot version")
	}

	cfg := Config{
		Source:           payload.Snapshot.Config.Source,
		Target:           payload.Snapshot.Config.Target,
		SearchTarget:     payload.Snapshot.Config.SearchTarget,
		SearchInterval:   time.Duration(payload.Snapshot.Config.SearchIntervalMs) * time.Millisecond,
		EnableEnrichment: payload.Snapshot.Config.EnableEnrichment,
	}
	return cfg, payload.Snapshot.Devices, nil
}
