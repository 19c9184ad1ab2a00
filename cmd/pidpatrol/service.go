package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"

	"github.com/pidpatrol/pidpatrol/internal/core"
)

func defaultConfigPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("ProgramData"), "pidpatrol", "pidpatrol.yaml")
	}
	return "/etc/pidpatrol/pidpatrol.yaml"
}

// resolveConfigPath falls back to the built-in defaults when the default
// config file was not created.  An explicitly given missing file is still an
// error when it is loaded.
func resolveConfigPath(path string) string {
	if path != defaultConfigPath() {
		return path
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Info("No config file found, using defaults")
		return ""
	}
	return path
}

// serviceLogHook is a logrus log hook for emitting to the system service log.
// Entries are only copied when pidpatrol runs as a service with the
// "-logEvents" flag enabled.
type serviceLogHook struct {
	logger service.Logger
}

// Fire is a call back for logrus entries to be passed through the hook
func (h *serviceLogHook) Fire(entry *log.Entry) error {
	msg, err := entry.String()
	if err != nil {
		return err
	}

	switch entry.Level {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		return h.logger.Error(msg)
	case log.WarnLevel:
		return h.logger.Warning(msg)
	case log.InfoLevel, log.DebugLevel:
		return h.logger.Info(msg)
	default:
		return nil
	}
}

// Levels returns the logrus levels that the serviceLogHook handles
func (h *serviceLogHook) Levels() []log.Level {
	return log.AllLevels
}

type program struct {
	interruptCh chan os.Signal
	exitCh      chan struct{}
	flags       *flags
}

func (p *program) Start(s service.Service) error {
	// create the exit channel that Stop() will block on until pidpatrol is
	// shutdown
	p.exitCh = make(chan struct{})
	go runAgent(p.flags, p.interruptCh, p.exitCh)
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.interruptCh <- os.Interrupt
	<-p.exitCh
	return nil
}

func runAgent(flags *flags, interruptCh chan os.Signal, exit chan struct{}) {
	configPath := resolveConfigPath(flags.configPath)

	var shutdown func()
	var shutdownComplete <-chan struct{}
	init := func() {
		log.Info("Starting up pidpatrol version " + Version)
		cancel, complete := core.Startup(configPath, flags.debug)
		shutdown = cancel
		shutdownComplete = complete
	}

	init()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	for {
		select {
		case <-interruptCh:
			log.Info("Interrupt signal received, stopping pidpatrol")
			shutdown()
			select {
			case <-shutdownComplete:
			case <-time.After(10 * time.Second):
				log.Error("Shutdown timed out, forcing process down")
			}
			close(exit)
			return
		case <-hupCh:
			log.Info("Forcing pidpatrol reset")
			shutdown()
			<-shutdownComplete
			init()
		case <-shutdownComplete:
			log.Error("pidpatrol stopped unexpectedly")
			os.Exit(3)
		}
	}
}

// serviceArguments are the flags the installed service is started with
func serviceArguments(flags *flags) []string {
	args := []string{"-config", flags.configPath}
	if flags.debug {
		args = append(args, "-debug")
	}
	return args
}

// runAsService wraps pidpatrol in a service structure.  This structure is
// used even when it is not registered as a service, in which case svc.Run
// simply runs it in the foreground until interrupted.
func runAsService(flags *flags, interruptCh chan os.Signal) {
	config := &service.Config{
		Name:        "pidpatrol",
		DisplayName: "PID Patrol",
		Description: "Watches named processes and serves their CPU and memory usage",
		Arguments:   serviceArguments(flags),
	}

	if flags.logEvents {
		config.Arguments = append(config.Arguments, "-logEvents")
	}

	prgm := &program{
		interruptCh: interruptCh,
		flags:       flags,
	}

	svc, err := service.New(prgm, config)
	if err != nil {
		log.WithError(err).Error("Failed to find or create the service")
		os.Exit(1)
	}

	if flags.logEvents {
		logger, err := svc.Logger(make(chan error, 500))
		if err != nil {
			log.WithError(err).Error("Unable to set up service logger")
		} else {
			log.AddHook(&serviceLogHook{logger: logger})
		}
	}

	if flags.service != "" {
		// install, uninstall, start or stop the service
		err = service.Control(svc, flags.service)
	} else {
		// svc.Run() blocks until Stop is called, which happens on interrupt
		// when running in the foreground
		err = svc.Run()
	}

	if err != nil {
		log.WithError(err).Error("Failed to control the service")
		os.Exit(1)
	}
}
