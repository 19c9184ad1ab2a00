package api

import (
	"strconv"
	"time"

	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/monitor/sampler"
)

// seconds renders whole numbers with a trailing ".0" so that an interval of 2
// reads back as 2.0.
type seconds float64

func (s seconds) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if f == float64(int64(f)) {
		return []byte(strconv.FormatFloat(f, 'f', 1, 64)), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

type namedProcess struct {
	Name string `json:"name"`
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type statusBody struct {
	OK         bool           `json:"ok"`
	Running    bool           `json:"running"`
	Interval   seconds        `json:"interval"`
	Processes  []namedProcess `json:"processes"`
	Timestamp  string         `json:"timestamp"`
	LastUpdate *string        `json:"last_update"`
}

type intervalBody struct {
	OK        bool    `json:"ok"`
	Interval  seconds `json:"interval"`
	Timestamp string  `json:"timestamp"`
}

type startBody struct {
	OK        bool           `json:"ok"`
	Timestamp string         `json:"timestamp"`
	Interval  seconds        `json:"interval"`
	Processes []namedProcess `json:"processes"`
	IsRunning bool           `json:"is_running"`
}

type stopBody struct {
	OK        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
	IsRunning bool   `json:"is_running"`
}

type resultsBody struct {
	OK        bool      `json:"ok"`
	Running   bool      `json:"running"`
	Interval  seconds   `json:"interval"`
	Count     int       `json:"count"`
	Results   []rowBody `json:"results"`
	Timestamp string    `json:"timestamp"`
	Pending   bool      `json:"pending,omitempty"`
}

type rowBody struct {
	Name                 string  `json:"name"`
	PID                  *int32  `json:"pid"`
	PIDs                 []int32 `json:"pids"`
	Status               string  `json:"status"`
	CPUPercent           float64 `json:"cpu_percent"`
	CPUPercentNormalized float64 `json:"cpu_percent_normalized"`
	MemoryMB             float64 `json:"memory_mb"`
	LastChecked          string  `json:"last_checked"`
}

func timestamp(t time.Time) string {
	return t.Local().Truncate(time.Second).Format(time.RFC3339)
}

func processList(ns []string) []namedProcess {
	out := make([]namedProcess, len(ns))
	for i := range ns {
		out[i] = namedProcess{Name: ns[i]}
	}
	return out
}

func toRow(r sampler.MetricsRow) rowBody {
	body := rowBody{
		Name:                 r.Name,
		PIDs:                 r.PIDs,
		Status:               string(r.Status),
		CPUPercent:           r.CPUPercent,
		CPUPercentNormalized: r.CPUPercentNormalized,
		MemoryMB:             r.MemoryMB,
		LastChecked:          timestamp(r.LastChecked),
	}
	if body.PIDs == nil {
		body.PIDs = []int32{}
	}
	if pid, ok := r.FirstPID(); ok {
		body.PID = &pid
	}
	return body
}

func toStatus(st monitor.Status, now time.Time) statusBody {
	body := statusBody{
		OK:        true,
		Running:   st.Running,
		Interval:  seconds(st.Interval),
		Processes: processList(st.Names),
		Timestamp: timestamp(now),
	}
	if !st.LastUpdate.IsZero() {
		lu := timestamp(st.LastUpdate)
		body.LastUpdate = &lu
	}
	return body
}

func toResults(res monitor.Results, now time.Time) resultsBody {
	rows := make([]rowBody, len(res.Snapshot.Rows))
	for i := range res.Snapshot.Rows {
		rows[i] = toRow(res.Snapshot.Rows[i])
	}
	return resultsBody{
		OK:        true,
		Running:   res.Running,
		Interval:  seconds(res.Interval),
		Count:     len(rows),
		Results:   rows,
		Timestamp: timestamp(now),
		Pending:   res.Pending,
	}
}
