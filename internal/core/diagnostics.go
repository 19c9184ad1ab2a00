package core

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	// Import for side-effect of registering http handler
	_ "net/http/pprof"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/pidpatrol/pidpatrol/internal/core/config"
	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/utils"
	"github.com/pidpatrol/pidpatrol/internal/utils/network/simpleserver"
)

// VersionLine should be populated by the startup logic to contain version
// information that can be reported in diagnostics.
var VersionLine string

var startTime = time.Now()

// Serves the diagnostic status on the specified path
func (a *Agent) serveDiagnosticInfo(path string) error {
	if a.diagnosticServer != nil {
		a.diagnosticServer.Close()
	}

	var err error
	a.diagnosticServer, err = simpleserver.Run(path, a.DiagnosticText, func(err error) {
		log.WithFields(log.Fields{
			"path":  path,
			"error": err,
		}).Error("Problem with diagnostic socket")
	})
	return err
}

func readDiagnosticInfo(path string, section string) ([]byte, error) {
	return simpleserver.Query(path, section)
}

// DiagnosticText returns a simple textual output of the agent's status
func (a *Agent) DiagnosticText(section string) string {
	var out string
	if section == "" || section == "all" {
		uptime := time.Since(startTime).Round(1 * time.Second).String()
		st := a.monitor.Status()

		lastUpdate := "never"
		if !st.LastUpdate.IsZero() {
			lastUpdate = st.LastUpdate.Format(time.RFC3339)
		}

		out +=
			"Version:                  " + VersionLine + "\n" +
				"Agent uptime:             " + uptime + "\n" +
				"Listening on:             " + a.listener.Addr().String() + "\n" +
				"Monitoring:               " + strconv.FormatBool(st.Running) + "\n" +
				"Interval (seconds):       " + strconv.FormatFloat(st.Interval, 'f', -1, 64) + "\n" +
				"Watched processes:        " + strings.Join(st.Names, ", ") + "\n" +
				"Last update:              " + lastUpdate + "\n"

		if a.writer != nil {
			out += "\n" + a.writer.DiagnosticText()
		}

		if section == "" {
			out += "\n" + utils.StripIndent(`
			  Additional status commands:

			  pidpatrol status config - show resolved config in use by pidpatrol
			  pidpatrol status processes - show the last sampled processes
			  pidpatrol status all - show everything
			  `)
		}
	}

	if section == "config" || section == "all" {
		out += "\nAgent Configuration:\n" +
			utils.IndentLines(config.ToString(a.conf), 2) + "\n"
	}

	if section == "processes" || section == "all" {
		out += "\n" + processTable(a.monitor)
	}

	return out
}

func processTable(m *monitor.Monitor) string {
	snap, ok := m.Snapshot()
	if !ok {
		return "No processes sampled yet\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Cycle %d at %s (took %s)\n", snap.Cycle,
		snap.Taken.Format(time.RFC3339), snap.Duration.Round(time.Millisecond))

	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"Name", "PIDs", "Status", "CPU %", "CPU % (all cores)", "Memory MB"})
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range snap.Rows {
		pids := make([]string, len(row.PIDs))
		for i, pid := range row.PIDs {
			pids[i] = strconv.Itoa(int(pid))
		}
		table.Append([]string{
			row.Name,
			strings.Join(pids, ","),
			string(row.Status),
			strconv.FormatFloat(row.CPUPercent, 'f', -1, 64),
			strconv.FormatFloat(row.CPUPercentNormalized, 'f', -1, 64),
			strconv.FormatFloat(row.MemoryMB, 'f', -1, 64),
		})
	}
	table.Render()
	return sb.String()
}

var profileServerOnce sync.Once

func ensureProfileServerRunning(addr string) {
	profileServerOnce.Do(func() {
		// We don't use that much memory so the default mem sampling rate is
		// too small to be very useful. Setting to 1 profiles ALL allocations
		runtime.MemProfileRate = 1
		// Sampling happens in short bursts once per interval
		runtime.SetCPUProfileRate(-1)
		runtime.SetCPUProfileRate(2000)

		go func() {
			log.Println(http.ListenAndServe(addr, nil))
		}()
	})
}
