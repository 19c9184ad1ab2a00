// Package writer contains the SignalFx writer.  The writer converts each
// published monitor snapshot into datapoints and sends them to SignalFx
// ingest.
//
// Snapshots are queued on a small buffered channel so that a slow ingest
// endpoint never holds up the sampling loop.  When the queue is full the
// newest snapshot is dropped.
package writer

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/signalfx/golib/v3/datapoint"
	"github.com/signalfx/golib/v3/sfxclient"
	log "github.com/sirupsen/logrus"

	"github.com/pidpatrol/pidpatrol/internal/core/config"
	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/monitor/sampler"
	"github.com/pidpatrol/pidpatrol/internal/utils"
)

var logger = log.WithFields(log.Fields{"component": "writer"})

// Metric names sent for every watched process name
const (
	ProcessUp                   = "pidpatrol.process.up"
	ProcessInstances            = "pidpatrol.process.instances"
	ProcessCPUPercent           = "pidpatrol.process.cpu_percent"
	ProcessCPUPercentNormalized = "pidpatrol.process.cpu_percent_normalized"
	ProcessMemoryMB             = "pidpatrol.process.memory_mb"
	CycleDuration               = "pidpatrol.cycle_duration_seconds"
)

// datapointSink is the part of sfxclient.HTTPSink the writer needs
type datapointSink interface {
	AddDatapoints(ctx context.Context, points []*datapoint.Datapoint) error
}

// SignalFxWriter is what sends snapshots to SignalFx ingest.
type SignalFxWriter struct {
	sink    datapointSink
	conf    *config.SignalFxConfig
	timeout time.Duration

	snapChan chan monitor.Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	dpRequestsActive int64
	dpsSent          int64
	snapshotsSent    int64
	snapshotsDropped int64
	sendErrors       int64
	startTime        time.Time
}

// New creates a writer that sends to the configured ingest URL.  The returned
// writer is already running.
func New(conf *config.SignalFxConfig) (*SignalFxWriter, error) {
	client := sfxclient.NewHTTPSink()
	client.AuthToken = conf.AccessToken

	client.Client.Timeout = conf.Timeout()
	client.Client.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 90 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	dpEndpointURL, err := conf.ParsedIngestURL.Parse("v2/datapoint")
	if err != nil {
		logger.WithFields(log.Fields{
			"error":     err,
			"ingestURL": conf.ParsedIngestURL.String(),
		}).Error("Could not construct datapoint ingest URL")
		return nil, err
	}
	client.DatapointEndpoint = dpEndpointURL.String()

	return newWithSink(conf, client), nil
}

func newWithSink(conf *config.SignalFxConfig, sink datapointSink) *SignalFxWriter {
	bufSize := conf.BufferSize
	if bufSize < 1 {
		bufSize = 1
	}

	sw := &SignalFxWriter{
		sink:      sink,
		conf:      conf,
		timeout:   conf.Timeout(),
		snapChan:  make(chan monitor.Snapshot, bufSize),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	sw.ctx, sw.cancel = context.WithCancel(context.Background())

	go sw.listenForSnapshots()

	return sw
}

// Enqueue queues a snapshot for sending without blocking.  It has the
// signature of a monitor subscriber.
func (sw *SignalFxWriter) Enqueue(snap monitor.Snapshot) {
	select {
	case sw.snapChan <- snap:
	default:
		atomic.AddInt64(&sw.snapshotsDropped, 1)
		logger.WithFields(log.Fields{
			"cycle":      snap.Cycle,
			"bufferSize": cap(sw.snapChan),
		}).Warn("Dropping snapshot due to full send buffer")
	}
}

func (sw *SignalFxWriter) listenForSnapshots() {
	defer close(sw.done)
	for {
		select {
		case <-sw.ctx.Done():
			return
		case snap := <-sw.snapChan:
			dps := sw.datapointsFor(snap)
			if len(dps) == 0 {
				continue
			}
			if sw.sendDatapoints(dps) == nil {
				atomic.AddInt64(&sw.snapshotsSent, 1)
			}
		}
	}
}

func (sw *SignalFxWriter) sendDatapoints(dps []*datapoint.Datapoint) error {
	ctx, cancel := context.WithTimeout(sw.ctx, sw.timeout)
	defer cancel()

	if sw.conf.LogDatapoints {
		for _, dp := range dps {
			logger.Debugf("Sending datapoint %s", utils.DatapointToString(dp))
		}
	}

	atomic.AddInt64(&sw.dpRequestsActive, 1)
	defer atomic.AddInt64(&sw.dpRequestsActive, -1)

	err := sw.sink.AddDatapoints(ctx, dps)
	if err != nil {
		atomic.AddInt64(&sw.sendErrors, 1)
		// If there is an error sending datapoints then just forget about them.
		logger.WithFields(log.Fields{
			"error": err,
		}).Error("Error shipping datapoints to SignalFx")
		return err
	}
	atomic.AddInt64(&sw.dpsSent, int64(len(dps)))
	logger.Debugf("Sent %d datapoints to SignalFx", len(dps))

	return nil
}

// datapointsFor converts one snapshot.  All datapoints carry the time the
// snapshot was taken.
func (sw *SignalFxWriter) datapointsFor(snap monitor.Snapshot) []*datapoint.Datapoint {
	var dps []*datapoint.Datapoint
	for i := range snap.Rows {
		dps = append(dps, sw.rowDatapoints(&snap.Rows[i])...)
	}
	if len(dps) == 0 {
		return nil
	}

	dps = append(dps, sfxclient.GaugeF(CycleDuration, sw.dims(nil), snap.Duration.Seconds()))

	for i := range dps {
		dps[i].Timestamp = snap.Taken
	}
	return dps
}

func (sw *SignalFxWriter) rowDatapoints(row *sampler.MetricsRow) []*datapoint.Datapoint {
	dims := sw.dims(map[string]string{"process_name": row.Name})

	var up int64
	if row.Status == sampler.Running {
		up = 1
	}

	return []*datapoint.Datapoint{
		sfxclient.Gauge(ProcessUp, dims, up),
		sfxclient.Gauge(ProcessInstances, dims, int64(len(row.PIDs))),
		sfxclient.GaugeF(ProcessCPUPercent, dims, row.CPUPercent),
		sfxclient.GaugeF(ProcessCPUPercentNormalized, dims, row.CPUPercentNormalized),
		sfxclient.GaugeF(ProcessMemoryMB, dims, row.MemoryMB),
	}
}

// dims adds the host and the configured extra dimensions to base without
// overriding anything already set.
func (sw *SignalFxWriter) dims(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(sw.conf.ExtraDimensions)+1)
	for k, v := range base {
		out[k] = v
	}
	if _, ok := out["host"]; !ok && sw.conf.Hostname != "" {
		out["host"] = sw.conf.Hostname
	}
	for k, v := range sw.conf.ExtraDimensions {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Shutdown the writer and stop sending datapoints.  Queued snapshots are
// discarded.
func (sw *SignalFxWriter) Shutdown() {
	if sw.cancel != nil {
		sw.cancel()
	}
	<-sw.done
	logger.Debug("Stopped datapoint writer")
}
