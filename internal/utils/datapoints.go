package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/signalfx/golib/v3/datapoint"
)

// DimensionsString renders dims as k=v pairs sorted by key
func DimensionsString(dims map[string]string) string {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + dims[k]
	}
	return strings.Join(pairs, "; ")
}

func metricTypeName(t datapoint.MetricType) string {
	switch t {
	case datapoint.Gauge:
		return "gauge"
	case datapoint.Count:
		return "counter"
	case datapoint.Counter:
		return "cumulative counter"
	default:
		return fmt.Sprintf("unsupported type %d", t)
	}
}

// DatapointToString prints a datapoint on one line for debug logging.
// Dimensions are sorted so that long lists stay easy to scan.
func DatapointToString(dp *datapoint.Datapoint) string {
	return fmt.Sprintf("%s: %s (%s) @ %s [%s]", dp.Metric, dp.Value,
		metricTypeName(dp.MetricType), dp.Timestamp.Format("15:04:05.000"), DimensionsString(dp.Dimensions))
}
