// Package httpapi exposes the generation session engine over HTTP: session
// lifecycle, NDJSON-streamed generation and chat, tokenizer utilities, and
// operational endpoints (models, status, health, metrics).
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llamad/internal/session"
	"llamad/pkg/types"
)

// Service defines the engine methods required by the HTTP API layer.
// *session.Engine satisfies it.
type Service interface {
	Open(modelPath string, ctxSize int) (string, error)
	Close(id string) error
	Acquire(id string) (func(), error)
	Generate(id string, req session.GenerateRequest) (string, error)
	Chat(id string, req session.ChatRequest) (string, error)
	Tokenize(id, text string) ([]int32, error)
	Detokenize(id string, tokens []int32) (string, error)
	ClearCache(id string) error
	Verbose(id string, level *int) (int, error)
	Info(id string) (types.SessionInfo, error)
	Handles() []string
}

// Options carries the non-engine collaborators of the mux.
type Options struct {
	// ListModels returns the registry contents for GET /models.
	ListModels func() []types.Model
	// ResolveModel maps a registry model id to an absolute file path.
	ResolveModel func(id string) (string, error)
	// Ready reports whether the daemon can serve inference calls.
	Ready func() bool

	Version     string
	RuntimeName string
}

type server struct {
	svc   Service
	opts  Options
	start time.Time
}

func NewMux(svc Service, opts Options) http.Handler {
	s := &server{svc: svc, opts: opts, start: time.Now()}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Post("/sessions", s.handleInit)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleInfo)
		r.Delete("/", s.handleClose)
		r.Post("/generate", s.handleGenerate)
		r.Post("/chat", s.handleChat)
		r.Post("/tokenize", s.handleTokenize)
		r.Post("/detokenize", s.handleDetokenize)
		r.Post("/clear", s.handleClear)
		r.Put("/verbose", s.handleVerbose)
	})

	r.Get("/models", s.handleModels)
	r.Get("/status", s.handleStatus)
	r.Get("/version", s.handleVersion)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Ready == nil || s.opts.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodeJSON enforces the content type and body limit, then decodes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// acquire takes the session's in-flight slot for the duration of a handler.
// The engine is not internally synchronized, so every per-session call must
// hold the slot, not just generate and chat; a clear or close racing a
// running generation would otherwise corrupt session state.
func (s *server) acquire(w http.ResponseWriter, id, op string) (func(), bool) {
	release, err := s.svc.Acquire(id)
	if err != nil {
		if session.IsSessionBusy(err) {
			IncrementBusyRejection(op)
		}
		writeError(w, err)
		return nil, false
	}
	return release, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}

func (s *server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req types.InitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if (req.Model == "") == (req.Path == "") {
		writeJSONError(w, http.StatusBadRequest, "exactly one of model or path is required")
		return
	}
	path := req.Path
	if req.Model != "" {
		if s.opts.ResolveModel == nil {
			writeJSONError(w, http.StatusBadRequest, "no model registry configured; use path")
			return
		}
		p, err := s.opts.ResolveModel(req.Model)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		path = p
	}
	id, err := s.svc.Open(path, req.CtxSize)
	if err != nil {
		writeError(w, err)
		return
	}
	sessionOpened()
	writeJSON(w, http.StatusCreated, types.InitResponse{Handle: id})
}

func (s *server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	release, ok := s.acquire(w, id, "close")
	if !ok {
		return
	}
	defer release()
	if err := s.svc.Close(id); err != nil {
		writeError(w, err)
		return
	}
	sessionClosed()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	release, ok := s.acquire(w, id, "info")
	if !ok {
		return
	}
	info, err := s.svc.Info(id)
	release()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	release, ok := s.acquire(w, id, "generate")
	if !ok {
		return
	}
	defer release()

	s.runGeneration(w, r, id, req.Stream, "generate", func(onToken func(string) error) (string, error) {
		return s.svc.Generate(id, session.GenerateRequest{
			Prompt:    req.Prompt,
			System:    req.System,
			Reset:     req.Reset,
			StopIDs:   toInt32s(req.StopIDs),
			MaxTokens: toInt32Ptr(req.MaxTokens),
			Options:   toOverrides(req.Options),
			OnToken:   onToken,
		})
	})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}
	release, ok := s.acquire(w, id, "chat")
	if !ok {
		return
	}
	defer release()

	s.runGeneration(w, r, id, req.Stream, "chat", func(onToken func(string) error) (string, error) {
		return s.svc.Chat(id, session.ChatRequest{
			Turns:     toTurns(req.Messages),
			StopIDs:   toInt32s(req.StopIDs),
			MaxTokens: toInt32Ptr(req.MaxTokens),
			Options:   toOverrides(req.Options),
			OnToken:   onToken,
		})
	})
}

// runGeneration executes one generate/chat call, either buffered or as an
// NDJSON token stream, and writes the final completion payload.
func (s *server) runGeneration(w http.ResponseWriter, r *http.Request, id string, stream bool, op string,
	call func(onToken func(string) error) (string, error)) {

	start := time.Now()
	lvl := requestLogLevel(r)
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().Str("op", op).Str("handle", id)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("generation start")
	}

	// Shutdown or client disconnect aborts the stream at the next flush.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var (
		onToken func(string) error
		wrote   bool
		enc     *json.Encoder
	)
	if stream {
		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		out := io.Writer(w)
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &loggingLineWriter{})
		}
		enc = json.NewEncoder(out)
		onToken = func(chunk string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			wrote = true
			if err := enc.Encode(types.GenerateResponse{Content: chunk}); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			return nil
		}
	}

	content, err := call(onToken)
	if err != nil {
		if ctx.Err() != nil {
			// Client went away; there is nobody to answer.
			return
		}
		status := statusForError(err)
		if !wrote {
			writeJSONError(w, status, err.Error())
		} else if enc != nil {
			_ = enc.Encode(types.ErrorResponse{Error: err.Error(), Code: status})
		}
		if lvl >= LevelInfo && zlog != nil {
			zlog.Info().Str("op", op).Int("status", status).
				Dur("dur", time.Since(start)).Err(err).Msg("generation end")
		}
		return
	}

	resp := types.GenerateResponse{Done: true, Content: content, FinishReason: "stop"}
	if info, ierr := s.svc.Info(id); ierr == nil {
		resp.FinishReason = finishReason(info)
		resp.Usage = types.Usage{
			PromptTokens:     info.Telemetry.Evaluated,
			CompletionTokens: info.Telemetry.Generated,
			TotalTokens:      info.Telemetry.Evaluated + info.Telemetry.Generated,
		}
		observeTokens(info.Telemetry.Evaluated, info.Telemetry.Generated)
	}

	if stream {
		if enc != nil {
			_ = enc.Encode(resp)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	} else {
		writeJSON(w, http.StatusOK, resp)
	}
	if lvl >= LevelInfo && zlog != nil {
		zlog.Info().Str("op", op).Int("status", 200).
			Dur("dur", time.Since(start)).Msg("generation end")
	}
}

// finishReason derives why the last call stopped from the session snapshot.
func finishReason(info types.SessionInfo) string {
	if info.Position >= info.CtxSize {
		return "capacity"
	}
	if info.Sampling.MaxTokens > 0 && info.Telemetry.Generated >= info.Sampling.MaxTokens {
		return "budget"
	}
	return "stop"
}

func (s *server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.TokenizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	release, ok := s.acquire(w, id, "tokenize")
	if !ok {
		return
	}
	defer release()
	toks, err := s.svc.Tokenize(id, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]int, len(toks))
	for i, t := range toks {
		out[i] = int(t)
	}
	writeJSON(w, http.StatusOK, types.TokenizeResponse{Tokens: out, Count: len(out)})
}

func (s *server) handleDetokenize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.DetokenizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	release, ok := s.acquire(w, id, "detokenize")
	if !ok {
		return
	}
	defer release()
	text, err := s.svc.Detokenize(id, toInt32s(req.Tokens))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.DetokenizeResponse{Text: text})
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	release, ok := s.acquire(w, id, "clear")
	if !ok {
		return
	}
	defer release()
	if err := s.svc.ClearCache(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleVerbose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.VerboseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	release, ok := s.acquire(w, id, "verbose")
	if !ok {
		return
	}
	defer release()
	lvl, err := s.svc.Verbose(id, req.Level)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.VerboseResponse{Level: lvl})
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	var models []types.Model
	if s.opts.ListModels != nil {
		models = s.opts.ListModels()
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var sessions []types.SessionStatus
	for _, id := range s.svc.Handles() {
		// Snapshots are taken under the in-flight slot; a busy session is
		// reported by handle only rather than read mid-generation.
		release, err := s.svc.Acquire(id)
		if err != nil {
			if session.IsSessionBusy(err) {
				sessions = append(sessions, types.SessionStatus{Handle: id, Busy: true})
			}
			continue
		}
		info, ierr := s.svc.Info(id)
		release()
		if ierr != nil {
			continue
		}
		sessions = append(sessions, types.SessionStatus{
			Handle:    id,
			ModelDesc: info.ModelDesc,
			CtxSize:   info.CtxSize,
			Position:  info.Position,
		})
	}
	writeJSON(w, http.StatusOK, types.StatusResponse{
		Sessions:       sessions,
		UptimeSeconds:  int64(time.Since(s.start).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	})
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.VersionResponse{
		Version: s.opts.Version,
		Runtime: s.opts.RuntimeName,
	})
}
