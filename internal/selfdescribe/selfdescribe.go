// Package selfdescribe pulls metadata out of pidpatrol into a well structured
// format that can be fed into other workflows to generate documentation.  The
// main interface is the JSON() function, that returns everything encoded as
// JSON.
package selfdescribe

import (
	"encoding/json"
	"reflect"

	"github.com/pidpatrol/pidpatrol/internal/core/config"
	"github.com/pidpatrol/pidpatrol/internal/core/writer"
)

type metricMetadata struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Dimensions  []string `json:"dimensions"`
	Description string   `json:"description"`
}

var processDims = []string{"process_name", "host"}

func datapointMetadata() []metricMetadata {
	return []metricMetadata{
		{writer.ProcessUp, "gauge", processDims, "1 if at least one process has the name, else 0"},
		{writer.ProcessInstances, "gauge", processDims, "Number of processes with the name"},
		{writer.ProcessCPUPercent, "gauge", processDims, "Summed CPU usage of the processes, 100 per fully used core"},
		{writer.ProcessCPUPercentNormalized, "gauge", processDims, "Summed CPU usage relative to all logical cores, at most 100"},
		{writer.ProcessMemoryMB, "gauge", processDims, "Summed resident memory of the processes in MiB"},
		{writer.CycleDuration, "gauge", []string{"host"}, "How long the sampling cycle took"},
	}
}

// JSON returns a json encoded string of the config schema and the datapoints
// that are sent to SignalFx.
func JSON() string {
	out, err := json.MarshalIndent(map[string]interface{}{
		"TopConfig":  getStructMetadata(reflect.TypeOf(config.Config{})),
		"Datapoints": datapointMetadata(),
	}, "", "  ")
	if err != nil {
		panic(err)
	}

	return string(out)
}
