package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jsphweid/harmondrill/chart"
	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/db"
	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/referee"
	"github.com/jsphweid/harmondrill/util"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

// state pushes to stream clients are coalesced over this long
const stateDebounce = 50 * time.Millisecond

// messages a slow stream client may fall behind before messages are dropped
const streamBuffer = 256

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves a practice session over HTTP",
	Long: `Serves one practice session. A presentation layer loads a chart, drives the
transport, posts pitch samples and follows the session on /session/stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, serveAddr)
	},
}

// Server hosts a single referee session.
type Server struct {
	ref      *referee.Referee
	logger   *slog.Logger
	upgrader websocket.Upgrader
	chartDir string
	// resolves chart references from load requests
	sources func(ref string) (referee.ChartSource, error)
}

func NewServer(cfg referee.Config) *Server {
	return &Server{
		ref:      referee.New(cfg),
		logger:   slog.Default().With("component", "server"),
		chartDir: constants.GetChartDir(),
		sources:  chartSource,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Referee() *referee.Referee {
	return s.ref
}

func (s *Server) Close() {
	s.ref.Dispose()
}

func NewRouter(s *Server) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/charts", s.handleListCharts).Methods("GET")
	router.HandleFunc("/session/state", s.handleState).Methods("GET")
	router.HandleFunc("/session/chart", s.handleChart).Methods("GET")
	router.HandleFunc("/session/stream", s.handleStream).Methods("GET")
	router.HandleFunc("/session/load", s.handleLoad).Methods("POST")
	router.HandleFunc("/session/start", s.transport(s.ref.Start)).Methods("POST")
	router.HandleFunc("/session/pause", s.transport(s.ref.Pause)).Methods("POST")
	router.HandleFunc("/session/resume", s.transport(s.ref.Resume)).Methods("POST")
	router.HandleFunc("/session/stop", s.transport(s.ref.Stop)).Methods("POST")
	router.HandleFunc("/session/seek", s.handleSeek).Methods("POST")
	router.HandleFunc("/session/tempo", s.handleTempo).Methods("POST")
	router.HandleFunc("/session/gate", s.handleGate).Methods("POST")
	router.HandleFunc("/session/pitch", s.handlePitch).Methods("POST")
	return router
}

func serve(ctx context.Context, cfg referee.Config, addr string) error {
	s := NewServer(cfg)
	defer s.Close()

	srv := &http.Server{
		Addr:    addr,
		Handler: cors.Default().Handler(NewRouter(s)),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving", "addr", addr, "session", s.ref.SessionID())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, model.ErrorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "could not decode request body"))
		return false
	}
	return true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ref.GetState())
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	data := s.ref.GetChart()
	if data == nil {
		writeError(w, http.StatusNotFound, errors.New("no chart loaded"))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleListCharts(w http.ResponseWriter, r *http.Request) {
	paths, err := util.GatherChartPaths(s.chartDir, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, model.ChartListResponse{Charts: paths})
}

func loadStatus(err error) int {
	var loadErr *chart.ChartLoadError
	switch {
	case errors.Is(err, referee.ErrInvalidPhase):
		return http.StatusConflict
	case errors.Is(err, db.ErrChartNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var body model.LoadRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	src, err := s.sources(body.Chart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := s.ref.LoadChartFrom(r.Context(), src)
	if err != nil {
		writeError(w, loadStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// transport wraps a phase transition. Transitions that do not apply to the
// current phase are ignored, the response carries the resulting state.
func (s *Server) transport(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn()
		writeJSON(w, http.StatusOK, s.ref.GetState())
	}
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var body model.SeekRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	s.ref.Seek(body.TimeMs)
	writeJSON(w, http.StatusOK, s.ref.GetState())
}

func (s *Server) handleTempo(w http.ResponseWriter, r *http.Request) {
	var body model.TempoRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Tempo <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("tempo must be positive"))
		return
	}
	s.ref.SetTempo(body.Tempo)
	writeJSON(w, http.StatusOK, s.ref.GetState())
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	var body model.GateRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	s.ref.SetGateEnabled(body.Enabled)
	writeJSON(w, http.StatusOK, s.ref.GetState())
}

// handlePitch takes one detector sample. Samples without a time are stamped
// with the current session time.
func (s *Server) handlePitch(w http.ResponseWriter, r *http.Request) {
	var sample model.PitchSample
	if !decodeBody(w, r, &sample) {
		return
	}
	if sample.TimeMs == 0 {
		sample.TimeMs = s.ref.CurrentTimeMs()
	}
	s.ref.OnPitchDetected(sample)
	w.WriteHeader(http.StatusNoContent)
}

// handleStream pushes beats and judgments as they happen and the session
// state at most once per stateDebounce.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := make(chan model.StreamMessage, streamBuffer)
	done := make(chan struct{})
	var closeOnce sync.Once
	finish := func() { closeOnce.Do(func() { close(done) }) }

	send := func(msg model.StreamMessage) {
		select {
		case out <- msg:
		case <-done:
		default:
			s.logger.Debug("stream client is behind, dropping message", "type", msg.Type)
		}
	}

	var mu sync.Mutex
	var latest model.SessionState
	debounced := debounce.New(stateDebounce)
	pushState := func() {
		mu.Lock()
		st := latest
		mu.Unlock()
		send(model.StreamMessage{Type: "state", State: &st})
	}

	unsubscribeJudgments := s.ref.SubscribeToJudgments(func(j model.JudgmentResult) {
		send(model.StreamMessage{Type: "judgment", Judgment: &j})
	})
	defer unsubscribeJudgments()
	unsubscribeBeats := s.ref.SubscribeToBeat(func(b model.BeatEvent) {
		send(model.StreamMessage{Type: "beat", Beat: &b})
	})
	defer unsubscribeBeats()
	unsubscribeState := s.ref.SubscribeToState(func(st model.SessionState) {
		mu.Lock()
		latest = st
		mu.Unlock()
		debounced(pushState)
	})
	defer unsubscribeState()

	// reads only to notice the client going away
	go func() {
		defer finish()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("stream write failed", "error", err)
				finish()
				return
			}
		case <-done:
			return
		}
	}
}
