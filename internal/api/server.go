// Package api is the HTTP face of the monitor: a dashboard page and a small
// JSON API under /ui.  Handlers only translate between JSON and calls on the
// Core; all state lives in the monitor.
package api

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pidpatrol/pidpatrol/internal/monitor"
	"github.com/pidpatrol/pidpatrol/internal/monitor/names"
)

var logger = log.WithFields(log.Fields{"component": "api"})

// Largest request body read by the JSON handlers
const maxBodyBytes = 1 << 20

// Core is the monitor as seen by the HTTP layer.
type Core interface {
	Status() monitor.Status
	Results() (monitor.Results, bool)
	AddNames(in names.Input) (monitor.Status, error)
	RemoveName(name string) (monitor.Status, error)
	SetInterval(seconds float64) (monitor.Status, error)
	Start(req monitor.StartRequest) (monitor.Status, error)
	Stop() monitor.Status
}

var _ Core = &monitor.Monitor{}

// Options for the router
type Options struct {
	// Served at MetricsPath when both are set.
	Metrics     http.Handler
	MetricsPath string
	Now         func() time.Time
}

// Server routes requests to the Core.
type Server struct {
	core   Core
	router *mux.Router
	now    func() time.Time
}

// New builds the router.  The returned server is an http.Handler.
func New(core Core, opts Options) *Server {
	s := &Server{
		core:   core,
		router: mux.NewRouter(),
		now:    opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := s.router
	r.Use(logRequests)
	r.HandleFunc("/", s.dashboard).Methods(http.MethodGet)

	ui := r.PathPrefix("/ui").Subrouter()
	ui.HandleFunc("/status", s.status).Methods(http.MethodGet)
	ui.HandleFunc("/results", s.results).Methods(http.MethodGet)
	ui.HandleFunc("/add", s.add).Methods(http.MethodPost)
	ui.HandleFunc("/remove", s.remove).Methods(http.MethodPost)
	ui.HandleFunc("/interval", s.interval).Methods(http.MethodPost)
	ui.HandleFunc("/start", s.start).Methods(http.MethodPost)
	ui.HandleFunc("/stop", s.stop).Methods(http.MethodPost)

	if opts.Metrics != nil && opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, opts.Metrics).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		writeJSON(rw, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		writeJSON(rw, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return s
}

func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(rw, req)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, code: http.StatusOK}
		next.ServeHTTP(rec, req)
		logger.WithFields(log.Fields{
			"method":   req.Method,
			"path":     req.URL.Path,
			"status":   rec.code,
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(rw http.ResponseWriter, code int, body interface{}) {
	out, err := json.Marshal(body)
	if err != nil {
		logger.WithError(err).Error("Could not serialize response")
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_, _ = rw.Write(out)
}

// reject writes the 409 error body used for every validation failure.
func reject(rw http.ResponseWriter, err error) {
	var ve *monitor.ValidationError
	if !errors.As(err, &ve) {
		logger.WithError(err).Error("Unexpected error handling request")
	}
	writeJSON(rw, http.StatusConflict, errorBody{Error: err.Error()})
}

func readPayload(rw http.ResponseWriter, req *http.Request) (payload, error) {
	body, err := ioutil.ReadAll(http.MaxBytesReader(rw, req.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return decodePayload(body)
}

func (s *Server) status(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, http.StatusOK, toStatus(s.core.Status(), s.now()))
}

func (s *Server) results(rw http.ResponseWriter, req *http.Request) {
	res, ok := s.core.Results()
	if !ok {
		rw.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(rw, http.StatusOK, toResults(res, s.now()))
}

func (s *Server) add(rw http.ResponseWriter, req *http.Request) {
	p, err := readPayload(rw, req)
	if err != nil {
		logger.WithError(err).Debug("Bad add payload")
		reject(rw, &monitor.ValidationError{Reason: msgInvalidPayload})
		return
	}

	raw := p.first("names", "processes")
	if raw == nil {
		reject(rw, &monitor.ValidationError{Reason: msgMissingNames})
		return
	}

	st, err := s.core.AddNames(namesFrom(raw))
	if err != nil {
		reject(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, toStatus(st, s.now()))
}

func (s *Server) remove(rw http.ResponseWriter, req *http.Request) {
	p, err := readPayload(rw, req)
	if err != nil {
		logger.WithError(err).Debug("Bad remove payload")
		reject(rw, &monitor.ValidationError{Reason: msgInvalidPayload})
		return
	}

	var name string
	if raw := p.lookup("name"); raw != nil && !isFalsy(raw) {
		name, _ = scalarText(raw)
	}

	st, err := s.core.RemoveName(name)
	if err != nil {
		reject(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, toStatus(st, s.now()))
}

func (s *Server) interval(rw http.ResponseWriter, req *http.Request) {
	p, err := readPayload(rw, req)
	if err != nil {
		logger.WithError(err).Debug("Bad interval payload")
		reject(rw, &monitor.ValidationError{Reason: monitor.MsgInvalidInterval})
		return
	}

	secs, err := intervalFrom(p.first("interval", "update_interval"))
	if err != nil {
		reject(rw, err)
		return
	}

	st, err := s.core.SetInterval(secs)
	if err != nil {
		reject(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, intervalBody{
		OK:        true,
		Interval:  seconds(st.Interval),
		Timestamp: timestamp(s.now()),
	})
}

func (s *Server) start(rw http.ResponseWriter, req *http.Request) {
	p, err := readPayload(rw, req)
	if err != nil {
		// start works without a body
		p = payload{}
	}

	var sr monitor.StartRequest
	if raw := p.lookup("interval", "update_interval"); raw != nil {
		v, err := intervalFrom(raw)
		if err != nil {
			reject(rw, err)
			return
		}
		sr.Interval = &v
	}
	sr.Names = namesFrom(p.first("processes", "names"))

	st, err := s.core.Start(sr)
	if err != nil {
		reject(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, startBody{
		OK:        true,
		Timestamp: timestamp(s.now()),
		Interval:  seconds(st.Interval),
		Processes: processList(st.Names),
		IsRunning: st.Running,
	})
}

func (s *Server) stop(rw http.ResponseWriter, req *http.Request) {
	st := s.core.Stop()
	writeJSON(rw, http.StatusOK, stopBody{
		OK:        true,
		Timestamp: timestamp(s.now()),
		IsRunning: st.Running,
	})
}
