package monitoring

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemMonitor samples this process's CPU and memory on an interval and
// publishes the readings to the prometheus gauges. The samples are
// informational only; nothing throttles on them.
type SystemMonitor struct {
	proc     *process.Process
	interval time.Duration
	logger   zerolog.Logger
}

// NewSystemMonitor creates a monitor for the current process.
func NewSystemMonitor(interval time.Duration, logger zerolog.Logger) (*SystemMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &SystemMonitor{
		proc:     proc,
		interval: interval,
		logger:   logger.With().Str("component", "sysmon").Logger(),
	}, nil
}

// Run samples until ctx is done. Intended to run on its own goroutine.
func (m *SystemMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *SystemMonitor) sample() {
	cpu, err := m.proc.CPUPercent()
	if err != nil {
		m.logger.Debug().Err(err).Msg("CPU sample failed")
		return
	}
	mem, err := m.proc.MemoryInfo()
	if err != nil {
		m.logger.Debug().Err(err).Msg("Memory sample failed")
		return
	}
	SetProcessUsage(cpu, mem.RSS)

	m.logger.Debug().
		Float64("cpu_percent", cpu).
		Uint64("rss_bytes", mem.RSS).
		Msg("Process usage sampled")
}
