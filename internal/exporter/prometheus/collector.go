// Package prometheus exposes the monitor's state and latest snapshot in the
// Prometheus exposition format.  Values are read from the monitor at scrape
// time, so nothing is kept here between scrapes.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/monitor/sampler"
)

const namespace = "pidpatrol"

// Source is the part of the monitor the collector reads.
type Source interface {
	Status() monitor.Status
	Snapshot() (monitor.Snapshot, bool)
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source Source

	running         *prometheus.Desc
	interval        *prometheus.Desc
	watched         *prometheus.Desc
	cycles          *prometheus.Desc
	cycleDuration   *prometheus.Desc
	lastUpdate      *prometheus.Desc
	processUp       *prometheus.Desc
	instances       *prometheus.Desc
	cpuPercent      *prometheus.Desc
	cpuNormalized   *prometheus.Desc
	memoryMegabytes *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

// NewCollector creates a collector for source.
func NewCollector(source Source) *Collector {
	procLabels := []string{"name"}
	return &Collector{
		source: source,
		running: prometheus.NewDesc(namespace+"_monitor_running",
			"Whether the monitor is currently running (1) or stopped (0).", nil, nil),
		interval: prometheus.NewDesc(namespace+"_monitor_interval_seconds",
			"Pause between two sampling cycles.", nil, nil),
		watched: prometheus.NewDesc(namespace+"_watched_processes",
			"Number of names on the watch-list.", nil, nil),
		cycles: prometheus.NewDesc(namespace+"_cycles_total",
			"Number of snapshots published since start-up.", nil, nil),
		cycleDuration: prometheus.NewDesc(namespace+"_cycle_duration_seconds",
			"Time taken to sample the watch-list in the latest cycle.", nil, nil),
		lastUpdate: prometheus.NewDesc(namespace+"_last_update_timestamp_seconds",
			"Unix time of the latest snapshot.", nil, nil),
		processUp: prometheus.NewDesc(namespace+"_process_up",
			"Whether at least one process with the name is running.", procLabels, nil),
		instances: prometheus.NewDesc(namespace+"_process_instances",
			"Number of processes with the name.", procLabels, nil),
		cpuPercent: prometheus.NewDesc(namespace+"_process_cpu_percent",
			"Summed CPU usage of the processes, relative to one core.", procLabels, nil),
		cpuNormalized: prometheus.NewDesc(namespace+"_process_cpu_normalized_percent",
			"Summed CPU usage of the processes, relative to all cores.", procLabels, nil),
		memoryMegabytes: prometheus.NewDesc(namespace+"_process_memory_megabytes",
			"Summed resident memory of the processes.", procLabels, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.interval
	ch <- c.watched
	ch <- c.cycles
	ch <- c.cycleDuration
	ch <- c.lastUpdate
	ch <- c.processUp
	ch <- c.instances
	ch <- c.cpuPercent
	ch <- c.cpuNormalized
	ch <- c.memoryMegabytes
}

// Collect implements prometheus.Collector.  Per-process series are only
// reported while the monitor is running, matching what the JSON API serves.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Status()

	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, boolToFloat(st.Running))
	ch <- prometheus.MustNewConstMetric(c.interval, prometheus.GaugeValue, st.Interval)
	ch <- prometheus.MustNewConstMetric(c.watched, prometheus.GaugeValue, float64(len(st.Names)))

	snap, ok := c.source.Snapshot()
	if !ok {
		ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.CounterValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.CounterValue, float64(snap.Cycle))
	ch <- prometheus.MustNewConstMetric(c.cycleDuration, prometheus.GaugeValue, snap.Duration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.lastUpdate, prometheus.GaugeValue, float64(snap.Taken.UnixNano())/1e9)

	if !st.Running {
		return
	}

	seen := make(map[string]bool, len(snap.Rows))
	for i := range snap.Rows {
		row := &snap.Rows[i]
		// rows for case variants of one name would collide on the label
		if seen[row.Name] {
			continue
		}
		seen[row.Name] = true

		ch <- prometheus.MustNewConstMetric(c.processUp, prometheus.GaugeValue, boolToFloat(row.Status == sampler.Running), row.Name)
		ch <- prometheus.MustNewConstMetric(c.instances, prometheus.GaugeValue, float64(len(row.PIDs)), row.Name)
		ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, row.CPUPercent, row.Name)
		ch <- prometheus.MustNewConstMetric(c.cpuNormalized, prometheus.GaugeValue, row.CPUPercentNormalized, row.Name)
		ch <- prometheus.MustNewConstMetric(c.memoryMegabytes, prometheus.GaugeValue, row.MemoryMB, row.Name)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Handler returns an http.Handler serving source's metrics together with the
// Go runtime and process collectors of this program.
func Handler(source Source) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		NewCollector(source),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
