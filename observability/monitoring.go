// Package observability aggregates relay telemetry into metrics and
// periodic reports. It observes event types and counts only, never payloads:
// ciphertext-adjacent metadata stays out of logs and metrics.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"

	"pairchat/domain/event"
)

// RelayStats turns telemetry events into prometheus metrics. It implements
// contract.TelemetryHandler and is driven by the telemetry worker.
type RelayStats struct {
	ciphertextsRelayed  prometheus.Counter
	keyExchangesRelayed prometheus.Counter
	historyDeliveries   prometheus.Counter
	framesDropped       prometheus.Counter
	activeRooms         prometheus.Gauge
	activeSessions      prometheus.Gauge
}

func NewRelayStats(reg prometheus.Registerer) *RelayStats {
	s := &RelayStats{
		ciphertextsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairchat_ciphertexts_relayed_total",
			Help: "Ciphertext messages appended and relayed.",
		}),
		keyExchangesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairchat_key_exchanges_relayed_total",
			Help: "Key-exchange frames relayed between peers.",
		}),
		historyDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairchat_history_deliveries_total",
			Help: "History snapshots released by presence-gated delivery.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pairchat_frames_dropped_total",
			Help: "Outbound frames dropped on slow consumers.",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pairchat_active_rooms",
			Help: "Rooms currently alive in the registry.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pairchat_active_sessions",
			Help: "Live transport connections.",
		}),
	}
	reg.MustRegister(
		s.ciphertextsRelayed,
		s.keyExchangesRelayed,
		s.historyDeliveries,
		s.framesDropped,
		s.activeRooms,
		s.activeSessions,
	)
	return s
}

func (s *RelayStats) Handle(t event.Telemetry) {
	switch t.Type {
	case event.CiphertextRelayed:
		s.ciphertextsRelayed.Inc()
	case event.KeyExchangeRelayed:
		s.keyExchangesRelayed.Inc()
	case event.HistoryDelivered:
		s.historyDeliveries.Inc()
	case event.FrameDropped:
		s.framesDropped.Inc()
	case event.RoomCreated:
		s.activeRooms.Inc()
	case event.RoomDeleted:
		s.activeRooms.Dec()
	case event.SessionOpened:
		s.activeSessions.Inc()
	case event.SessionClosed:
		s.activeSessions.Dec()
	}
}

// Snapshot is the stats shape served by the debug endpoint.
type Snapshot struct {
	Goroutines  int     `json:"goroutines"`
	AllocMemMb  uint64  `json:"alloc_mem_mb"`
	NumGC       uint32  `json:"num_gc"`
	ProcessRSS  uint64  `json:"process_rss_mb"`
	CPUPercent  float64 `json:"cpu_percent"`
	CollectedAt string  `json:"collected_at"`
}

// Monitor periodically reports process health. Gauges for sessions and rooms
// live in RelayStats; Monitor covers the runtime and OS process side.
type Monitor struct {
	log      *slog.Logger
	interval time.Duration

	mu     sync.RWMutex
	latest Snapshot
}

func NewMonitor(log *slog.Logger, interval time.Duration) *Monitor {
	return &Monitor{log: log, interval: interval}
}

// Run implements contract.Worker.
func (m *Monitor) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Stopping monitor")
			return nil
		case <-ticker.C:
			m.collect(proc)
		}
	}
}

func (m *Monitor) collect(proc *process.Process) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := Snapshot{
		Goroutines:  runtime.NumGoroutine(),
		AllocMemMb:  memStats.Alloc >> 20,
		NumGC:       memStats.NumGC,
		CollectedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		snap.ProcessRSS = memInfo.RSS >> 20
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}

	m.mu.Lock()
	m.latest = snap
	m.mu.Unlock()

	m.log.Info("process health",
		"goroutines", snap.Goroutines,
		"alloc_mb", snap.AllocMemMb,
		"rss_mb", snap.ProcessRSS,
		"cpu_percent", snap.CPUPercent,
	)
}

// Latest returns the last collected snapshot.
func (m *Monitor) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
