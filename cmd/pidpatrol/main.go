package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/pidpatrol/pidpatrol/internal/core"
	"github.com/pidpatrol/pidpatrol/internal/selfdescribe"
)

var (
	// Version of pidpatrol
	Version string

	// BuiltTime of the binary
	BuiltTime string
)

func init() {
	log.SetFormatter(&prefixed.TextFormatter{})
	log.SetLevel(log.InfoLevel)
	log.SetOutput(os.Stdout)
}

// Print out status about an existing instance of pidpatrol.
func doStatus() {
	set := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := set.String("config", defaultConfigPath(), "config path")

	set.Parse(os.Args[2:])

	var section string
	if set.NArg() > 0 {
		section = set.Arg(0)
	}

	log.SetLevel(log.ErrorLevel)

	status, err := core.Status(resolveConfigPath(*configPath), section)
	if err != nil {
		fmt.Printf("Could not get status: %s\nAre you sure pidpatrol is currently running?\n", err)
		os.Exit(1)
	}
	fmt.Print(string(status))
	fmt.Println("")
}

// Print out self-description of config and datapoints
func doSelfDescribe() {
	log.SetOutput(os.Stderr)
	fmt.Print(selfdescribe.JSON())
}

// flags is used to store parsed flag values
type flags struct {
	// version is a bool flag for printing the version string
	version bool
	// configPath is a string flag for specifying the config file.  Empty
	// means built-in defaults.
	configPath string
	// debug is a bool flag for printing debug level information
	debug bool
	// service is a string flag used for starting, stopping, installing or
	// uninstalling pidpatrol as a system service
	service string
	// logEvents copies log entries to the system service logger
	logEvents bool
}

// getFlags retrieves flags passed at runtime and return them in a flags struct
func getFlags() *flags {
	flags := &flags{}
	set := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	set.BoolVar(&flags.version, "version", false, "print version")
	set.StringVar(&flags.configPath, "config", defaultConfigPath(), "config path, built-in defaults are used if it does not exist")
	set.BoolVar(&flags.debug, "debug", false, "print debugging output")
	set.StringVar(&flags.service, "service", "", "'start', 'stop', 'install' or 'uninstall' pidpatrol as a system service.  You may specify an alternate config file path with the -config flag when installing the service.")
	set.BoolVar(&flags.logEvents, "logEvents", false, "copy log entries to the system service log.  Only used when running as a service.")

	// The set is configured to exit on errors so we don't need to check the
	// return value here.
	set.Parse(os.Args[1:])
	if len(set.Args()) > 0 {
		os.Stderr.WriteString("Non-flag parameters are not accepted\n")
		set.Usage()
		os.Exit(2)
	}
	return flags
}

func main() {
	core.VersionLine = fmt.Sprintf("pidpatrol-version: %s, built-time: %s",
		Version, BuiltTime)

	var firstArg string
	if len(os.Args) >= 2 {
		firstArg = os.Args[1]
	}

	switch firstArg {
	case "status":
		doStatus()
	case "selfdescribe":
		doSelfDescribe()
	default:
		if firstArg != "" && !strings.HasPrefix(firstArg, "-") {
			log.Errorf("Unknown subcommand '%s'", firstArg)
			os.Exit(127)
		}

		flags := getFlags()

		if flags.debug {
			log.SetLevel(log.DebugLevel)
		}

		if flags.version {
			fmt.Println(core.VersionLine)
			os.Exit(0)
		}

		interruptCh := make(chan os.Signal, 1)
		signal.Notify(interruptCh, os.Interrupt)
		signal.Notify(interruptCh, syscall.SIGTERM)

		runAsService(flags, interruptCh)
	}

	os.Exit(0)
}
