// Package maintenance implements the scheduled stats reporter (C12): a
// cron job that logs pool traffic counters alongside host CPU/memory stats.
// It is grounded on the teacher's internal/agent.Scheduler (cron wiring via
// robfig/cron/v3, with slog plugged in as the cron logger) and
// internal/agent.SystemMonitor (host stats via shirou/gopsutil/v3).
package maintenance

import (
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nishisan-dev/streampool/internal/observability"
)

// Reporter periodically logs pool counters and host system stats.
type Reporter struct {
	cron     *cron.Cron
	logger   *slog.Logger
	counters *observability.Counters
	ring     *observability.EventRing
}

// New builds a Reporter that runs the given cron schedule (e.g. "@every 1m")
// until Stop is called. schedule is validated immediately so misconfiguration
// surfaces at startup rather than at the first missed tick.
func New(schedule string, logger *slog.Logger, counters *observability.Counters, ring *observability.EventRing) (*Reporter, error) {
	r := &Reporter{
		logger:   logger.With("component", "maintenance_reporter"),
		counters: counters,
		ring:     ring,
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, r.report); err != nil {
		return nil, err
	}
	r.cron = c
	return r, nil
}

// Start begins running the scheduled report.
func (r *Reporter) Start() {
	r.logger.Info("maintenance reporter started")
	r.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("maintenance reporter stopped")
}

func (r *Reporter) report() {
	snap := r.counters.Snapshot()

	fields := []any{
		"active_streams", snap.ActiveStreams,
		"bytes_in", snap.BytesIn,
		"bytes_out", snap.BytesOut,
		"recent_events", r.ring.Len(),
	}

	if percentage, err := cpu.Percent(0, false); err == nil && len(percentage) > 0 {
		fields = append(fields, "cpu_percent", percentage[0])
	} else if err != nil {
		r.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		fields = append(fields, "mem_percent", v.UsedPercent)
	} else {
		r.logger.Debug("failed to collect memory stats", "error", err)
	}

	r.logger.Info("pool stats", fields...)
}
