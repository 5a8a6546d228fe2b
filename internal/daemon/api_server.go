package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"encoding/json"

	"meetscribe/internal/config"
	"meetscribe/internal/export"
	"meetscribe/internal/jobs"
	"meetscribe/internal/logging"
	"meetscribe/internal/services"
)

// maxUploadBytes caps a single request body (audio plus form fields).
const maxUploadBytes = 1 << 30

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/transcribe", srv.handleTranscribe)
	mux.HandleFunc("/api/batch", srv.handleBatch)
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/", srv.handleJob)
	mux.HandleFunc("/api/export/", srv.handleExport)
	mux.HandleFunc("/api/audio/", srv.handleAudio)
	mux.HandleFunc("/api/history", srv.handleHistory)
	mux.HandleFunc("/api/notify/test", srv.handleNotifyTest)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Minute,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	type depView struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
		Detail    string `json:"detail,omitempty"`
	}
	deps := make([]depView, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		deps = append(deps, depView{Name: dep.Name, Available: dep.Available, Detail: dep.Detail})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":      status.Running,
		"pid":          status.PID,
		"job_count":    status.JobCount,
		"store_path":   status.StorePath,
		"dependencies": deps,
	})
}

func (s *apiServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse form: %v", err))
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	opts := s.parseOptions(r)
	job, err := s.daemon.SubmitUpload(r.Context(), header.Filename, file, opts)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse form: %v", err))
		return
	}
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["audio"]
	}
	if len(headers) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one audio file is required")
		return
	}

	uploads := make([]Upload, 0, len(headers))
	var open []multipart.File
	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("open upload %q: %v", header.Filename, err))
			return
		}
		open = append(open, f)
		uploads = append(uploads, Upload{Filename: header.Filename, Content: f})
	}

	maxConcurrency, _ := strconv.Atoi(r.FormValue("max_concurrency"))
	opts := s.parseOptions(r)
	ids, err := s.daemon.SubmitBatch(r.Context(), uploads, opts, maxConcurrency)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"job_ids": ids})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list := s.daemon.store.List()
	type summary struct {
		ID        string      `json:"id"`
		Filename  string      `json:"filename"`
		Status    jobs.Status `json:"status"`
		Error     string      `json:"error,omitempty"`
		CreatedAt time.Time   `json:"created_at"`
		UpdatedAt time.Time   `json:"updated_at"`
	}
	out := make([]summary, 0, len(list))
	for _, job := range list {
		out = append(out, summary{
			ID:        job.ID,
			Filename:  job.Filename,
			Status:    job.Status,
			Error:     job.Error,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		job, ok := s.daemon.store.Get(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.daemon.DeleteJob(id); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "job not found")
				return
			}
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/export/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, ok := s.daemon.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatText
	}
	payload, err := export.Render(job, format)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", job.Filename+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleAudio streams a job's stored upload. ServeContent handles Range
// requests, so clients can seek while playing the recording back.
func (s *apiServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/audio/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, ok := s.daemon.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	file, err := os.Open(job.FilePath)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "audio file not available")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.ServeContent(w, r, job.Filename, info.ModTime(), file)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.history == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"entries": []any{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.daemon.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *apiServer) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.notifier.TestNotification(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// parseOptions builds the job option snapshot from form fields, falling back
// to the configured defaults for anything unset.
func (s *apiServer) parseOptions(r *http.Request) jobs.Options {
	opts := s.daemon.DefaultOptions()

	if v := r.FormValue("method"); v != "" {
		opts.Method = v
	}
	if v := r.FormValue("language"); v != "" {
		opts.Language = v
	}
	if v := r.FormValue("language_candidates"); v != "" {
		opts.LanguageCandidates = splitList(v)
	}
	if v := r.FormValue("diarization"); v != "" {
		opts.EnableDiarization = parseBool(v)
	}
	if v := r.FormValue("nlp"); v != "" {
		opts.EnableNLP = parseBool(v)
	}
	if v := r.FormValue("custom_terms"); v != "" {
		opts.CustomTerms = splitList(v)
	}
	if v, err := strconv.Atoi(r.FormValue("max_speakers")); err == nil && v > 0 {
		opts.MaxSpeakers = v
	}
	if v := r.FormValue("profanity_filter"); v != "" {
		opts.ProfanityFilter = parseBool(v)
	}
	if v := r.FormValue("word_timestamps"); v != "" {
		opts.WordTimestamps = parseBool(v)
	}
	if v := r.FormValue("whisper_model"); v != "" {
		opts.WhisperModel = v
	}
	if v, err := strconv.ParseFloat(r.FormValue("whisper_temperature"), 64); err == nil {
		opts.WhisperTemperature = v
	}
	if v := r.FormValue("whisper_prompt"); v != "" {
		opts.WhisperPrompt = v
	}
	if v := r.FormValue("hf_model"); v != "" {
		opts.HFModel = v
	}
	if v := r.FormValue("hf_endpoint"); v != "" {
		opts.HFEndpoint = v
	}
	if v, err := strconv.Atoi(r.FormValue("summary_sentences")); err == nil && v > 0 {
		opts.SummarySentences = v
	}
	if v, err := strconv.Atoi(r.FormValue("sample_rate")); err == nil && v > 0 {
		opts.SampleRate = v
	}
	if v, err := strconv.Atoi(r.FormValue("channels")); err == nil && v > 0 {
		opts.Channels = v
	}
	if v := r.FormValue("bit_rate"); v != "" {
		opts.BitRate = v
	}
	if v := r.FormValue("noise_reduction"); v != "" {
		opts.NoiseReduction = parseBool(v)
	}
	return opts
}

func (s *apiServer) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		if strings.Contains(err.Error(), "unsupported file extension") ||
			strings.Contains(err.Error(), "required") {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
