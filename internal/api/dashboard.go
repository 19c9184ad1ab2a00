package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

type dashboardData struct {
	Title      string
	Running    bool
	Interval   float64
	Names      []string
	LastUpdate string
	Rows       []rowBody
}

func (s *Server) dashboard(rw http.ResponseWriter, req *http.Request) {
	st := s.core.Status()
	data := dashboardData{
		Title:    "PID Patrol",
		Running:  st.Running,
		Interval: st.Interval,
		Names:    st.Names,
	}
	if !st.LastUpdate.IsZero() {
		data.LastUpdate = timestamp(st.LastUpdate)
	}
	if res, ok := s.core.Results(); ok {
		data.Rows = toResults(res, s.now()).Results
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		logger.WithError(err).Error("Could not render dashboard")
		http.Error(rw, "could not render dashboard", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(rw)
}
