package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`
	// DT is "wall" (measured seconds since the previous tick) or "fixed" (1/tick_rate_hz).
	DT string `yaml:"dt"`

	Seed int64 `yaml:"seed"`

	Observer Observer `yaml:"observer"`
	Journal  Journal  `yaml:"journal"`
	Index    Index    `yaml:"index"`
}

type Observer struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	QueueSize     int    `yaml:"queue_size"`
	IntervalTicks int    `yaml:"interval_ticks"`
}

type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type Index struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const (
	DTWall  = "wall"
	DTFixed = "fixed"
)

func Defaults() Tuning {
	return Tuning{
		TickRateHz: 60,
		DT:         DTWall,
		Seed:       1,
		Observer: Observer{
			Enabled:       true,
			Addr:          "127.0.0.1:8788",
			QueueSize:     8,
			IntervalTicks: 6,
		},
		Journal: Journal{Enabled: true, Dir: "data/journal"},
		Index:   Index{Enabled: true, Path: "data/index/pyre.sqlite"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in (0, 1000], got %d", t.TickRateHz)
	}
	switch t.DT {
	case DTWall, DTFixed:
	default:
		return fmt.Errorf("dt must be %q or %q, got %q", DTWall, DTFixed, t.DT)
	}
	if t.Observer.Enabled && strings.TrimSpace(t.Observer.Addr) == "" {
		return fmt.Errorf("observer.addr must not be empty when the observer is enabled")
	}
	if t.Observer.QueueSize < 0 {
		return fmt.Errorf("observer.queue_size must be >= 0")
	}
	return nil
}

// TickInterval is the wall-clock period between ticks.
func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}
