// Package core contains the central frame of pidpatrol that hooks up the
// sampler, the monitor, the HTTP server and the datapoint writer.
package core

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pidpatrol/pidpatrol/internal/api"
	"github.com/pidpatrol/pidpatrol/internal/core/config"
	"github.com/pidpatrol/pidpatrol/internal/core/writer"
	promexp "github.com/pidpatrol/pidpatrol/internal/exporter/prometheus"
	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/monitor/sampler"
	"github.com/pidpatrol/pidpatrol/internal/utils/network/simpleserver"
)

// How long in-flight HTTP requests get to finish on shutdown
const serverShutdownTimeout = 5 * time.Second

// Agent is what hooks up the monitor, its HTTP surface and the writer.
type Agent struct {
	conf     *config.Config
	monitor  *monitor.Monitor
	writer   *writer.SignalFxWriter
	server   *http.Server
	listener net.Listener

	diagnosticServer *simpleserver.Server
}

// configureLogging applies the logging section of conf.  forceDebug wins over
// the configured level.
func configureLogging(conf *config.Config, forceDebug bool) {
	if forceDebug {
		log.SetLevel(log.DebugLevel)
	} else if level := conf.Logging.LogrusLevel(); level != nil {
		log.SetLevel(*level)
	}
	if formatter := conf.Logging.LogrusFormatter(); formatter != nil {
		log.SetFormatter(formatter)
	}
	log.Infof("Using log level %s", log.GetLevel().String())
}

func newProvider(conf *config.Config) (sampler.Provider, error) {
	if conf.ProcessSource == "procfs" {
		return sampler.NewProcfsProvider(conf.ProcfsPath, conf.HandleCacheSize)
	}
	return sampler.NewOSProvider(conf.HandleCacheSize)
}

// newAgent builds every component from conf and binds the listen address,
// but starts nothing that runs in the background except the writer.
func newAgent(conf *config.Config) (*Agent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.SampleTimeout())
	cores := sampler.LogicalCPUs(ctx)
	cancel()

	provider, err := newProvider(conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not create process provider")
	}

	smp := sampler.New(provider, sampler.Options{
		CPUWindow:   conf.CPUSampleWindow(),
		LogicalCPUs: cores,
	})

	a := &Agent{
		conf: conf,
		monitor: monitor.New(smp, monitor.Config{
			Interval:      conf.IntervalSeconds,
			Names:         conf.Processes,
			SampleTimeout: conf.SampleTimeout(),
		}),
	}

	opts := api.Options{}
	if !conf.Metrics.Disabled {
		handler, err := promexp.Handler(a.monitor)
		if err != nil {
			return nil, errors.Wrap(err, "could not set up metrics endpoint")
		}
		opts.Metrics = handler
		opts.MetricsPath = conf.Metrics.Path
	}

	a.server = &http.Server{
		Handler:      api.New(a.monitor, opts),
		ReadTimeout:  conf.Server.ReadTimeout(),
		WriteTimeout: conf.Server.WriteTimeout(),
	}

	a.listener, err = net.Listen("tcp", conf.ListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "could not listen on %s", conf.ListenAddress)
	}

	if conf.SignalFx.Enabled() {
		a.writer, err = writer.New(&conf.SignalFx)
		if err != nil {
			a.listener.Close()
			return nil, errors.Wrap(err, "could not configure SignalFx datapoint writer")
		}
		a.monitor.Subscribe(a.writer.Enqueue)
	}

	log.WithFields(log.Fields{
		"logicalCPUs": cores,
		"source":      conf.ProcessSource,
		"hostname":    conf.Hostname,
		"signalFx":    conf.SignalFx.Enabled(),
	}).Debug("Agent configured")

	return a, nil
}

// Addr is the address the HTTP server is bound to
func (a *Agent) Addr() net.Addr {
	return a.listener.Addr()
}

// run serves HTTP until ctx is done or the server fails, then shuts down
// everything else.
func (a *Agent) run(ctx context.Context) error {
	if a.conf.EnableProfiling {
		ensureProfileServerRunning(a.conf.ProfilingAddress)
	}

	if err := a.serveDiagnosticInfo(a.conf.DiagnosticsSocketPath); err != nil {
		log.WithError(err).Error("Could not start diagnostic socket")
	}

	if a.conf.StartOnLaunch {
		if _, err := a.monitor.Start(monitor.StartRequest{}); err != nil {
			log.WithError(err).Error("Could not start monitoring")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Serving dashboard on http://%s/", a.listener.Addr())
		err := a.server.Serve(a.listener)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *Agent) shutdown() {
	a.monitor.Shutdown()
	if a.writer != nil {
		a.writer.Shutdown()
	}
	if a.diagnosticServer != nil {
		a.diagnosticServer.Close()
	}
}

// Startup the agent.  Returns a function that can be called to shutdown the
// agent, as well as a channel that will be notified when the agent has
// shutdown.  forceDebug overrides the configured log level.
func Startup(configPath string, forceDebug bool) (context.CancelFunc, <-chan struct{}) {
	log.Info("Starting up agent")

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.WithFields(log.Fields{
			"error":      err,
			"configPath": configPath,
		}).Error("Error loading main config")
		os.Exit(1)
	}

	configureLogging(conf, forceDebug)

	agent, err := newAgent(conf)
	if err != nil {
		log.WithError(err).Error("Could not set up agent, unable to start up")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	shutdownComplete := make(chan struct{})

	go func() {
		if err := agent.run(ctx); err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
		close(shutdownComplete)
	}()

	return cancel, shutdownComplete
}

// Status reads the text of section from the diagnostic socket and returns it
// if available.
func Status(configPath string, section string) ([]byte, error) {
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	return readDiagnosticInfo(conf.DiagnosticsSocketPath, section)
}
