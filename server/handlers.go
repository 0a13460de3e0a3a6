package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/theimaginaryfoundation/diary-lens/augment"
	"github.com/theimaginaryfoundation/diary-lens/catalog"
	"github.com/theimaginaryfoundation/diary-lens/fileutils"
	"github.com/theimaginaryfoundation/diary-lens/runlog"
)

// FriendlyError is shown to users for any generation failure; the cause is only logged.
const FriendlyError = "Something went wrong while reading your diary. Please try again in a moment."

const ownVoiceLabel = "My own voice"

// Analyzer runs one augmentation request.
type Analyzer interface {
	Run(ctx context.Context, req augment.Request) (augment.Trace, error)
}

// Store is the session persistence the handlers need.
type Store interface {
	StartSession(ctx context.Context, userID string) (runlog.Session, error)
	Session(ctx context.Context, id string) (runlog.Session, error)
	LogActivity(ctx context.Context, sessionID, activity string) error
	SaveVersion(ctx context.Context, sessionID string, kind runlog.VersionKind, entry string) (runlog.Version, error)
	Versions(ctx context.Context, sessionID string, kind runlog.VersionKind) ([]runlog.Version, error)
	RecordResponse(ctx context.Context, rec runlog.ResponseRecord) (runlog.ResponseRecord, error)
	Responses(ctx context.Context, sessionID string) ([]runlog.ResponseRecord, error)
}

// Options lists the selectable orientations and tones.
type Options interface {
	OrientationDefinitions() []catalog.OrientationDefinition
	ToneDefinitions() []catalog.ToneDefinition
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

type Handlers struct {
	analyzer Analyzer
	store    Store
	options  Options
	timeout  time.Duration
	guard    *runGuard
	markdown goldmark.Markdown
}

func NewHandlers(analyzer Analyzer, store Store, options Options, requestTimeout time.Duration) *Handlers {
	return &Handlers{
		analyzer: analyzer,
		store:    store,
		options:  options,
		timeout:  requestTimeout,
		guard:    newRunGuard(),
		markdown: goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps())),
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type OptionsResponse struct {
	Orientations []Option `json:"life_orientations"`
	Tones        []Option `json:"tones"`
}

// Options handles GET /api/v1/options
func (h *Handlers) Options(w http.ResponseWriter, r *http.Request) {
	var resp OptionsResponse
	for _, o := range h.options.OrientationDefinitions() {
		resp.Orientations = append(resp.Orientations, Option{ID: o.ID, Label: o.Label})
	}
	for _, t := range h.options.ToneDefinitions() {
		resp.Tones = append(resp.Tones, Option{ID: t.ID, Label: t.Label})
	}
	resp.Tones = append(resp.Tones, Option{ID: augment.ToneOwnVoice, Label: ownVoiceLabel})
	writeJSON(w, http.StatusOK, resp)
}

type CreateSessionRequest struct {
	UserID string `json:"user_id"`
}

// CreateSession handles POST /api/v1/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", "MISSING_USER")
		return
	}
	sess, err := h.store.StartSession(r.Context(), req.UserID)
	if err != nil {
		log.Printf("start session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to start session", "STORAGE_ERROR")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type AugmentRequest struct {
	DiaryEntry  string `json:"diary_entry"`
	Orientation string `json:"life_orientation"`
	Tone        string `json:"tone"`
	Method      string `json:"method,omitempty"`
	Value       string `json:"value,omitempty"`
	Format      string `json:"format,omitempty"`
}

type AugmentResponse struct {
	Result      string `json:"result"`
	ResultHTML  string `json:"result_html,omitempty"`
	Orientation string `json:"life_orientation"`
	Tone        string `json:"tone"`
}

// Augment handles POST /api/v1/sessions/{id}/augment
func (h *Handlers) Augment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := r.Context()

	var req AugmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.DiaryEntry) == "" || req.Orientation == "" || req.Tone == "" {
		writeError(w, http.StatusBadRequest, "diary_entry, life_orientation and tone are required", "MISSING_FIELDS")
		return
	}
	if req.Format != "" && req.Format != "text" && req.Format != "html" {
		writeError(w, http.StatusBadRequest, "format must be text or html", "INVALID_FORMAT")
		return
	}
	method, err := augment.ParseMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "UNSUPPORTED_METHOD")
		return
	}
	if !h.sessionExists(w, r, sessionID) {
		return
	}

	if !h.guard.acquire(sessionID) {
		writeError(w, http.StatusConflict, "an augmentation is already running for this session", "IN_FLIGHT")
		return
	}
	defer h.guard.release(sessionID)

	if err := h.recordInitial(ctx, sessionID, req.DiaryEntry); err != nil {
		log.Printf("session %s: store initial diary: %v", sessionID, err)
	}
	h.logActivity(ctx, sessionID, "Requested AI response")

	runCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	tr, runErr := h.analyzer.Run(runCtx, augment.Request{
		Entry:       req.DiaryEntry,
		Orientation: req.Orientation,
		Value:       req.Value,
		Tone:        req.Tone,
		Method:      method,
	})

	rec := runlog.ResponseRecord{
		SessionID:   sessionID,
		Orientation: req.Orientation,
		Tone:        req.Tone,
		Method:      string(method),
		Input:       req.DiaryEntry,
		Result:      tr.Final,
	}
	if runErr != nil {
		rec.Err = runErr.Error()
	}
	if _, err := h.store.RecordResponse(ctx, rec); err != nil {
		log.Printf("session %s: record response: %v", sessionID, err)
	}

	if runErr != nil {
		status, message, code := classify(runErr)
		log.Printf("session %s: augment %q (%s/%s): %v", sessionID, fileutils.Truncate(fileutils.OneLine(req.DiaryEntry), 40), req.Orientation, req.Tone, runErr)
		writeError(w, status, message, code)
		return
	}

	resp := AugmentResponse{Result: tr.Final, Orientation: req.Orientation, Tone: req.Tone}
	if req.Format == "html" {
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(tr.Final), &buf); err != nil {
			log.Printf("session %s: render html: %v", sessionID, err)
		} else {
			resp.ResultHTML = buf.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// recordInitial stores the entry as the session's initial version on its first request.
func (h *Handlers) recordInitial(ctx context.Context, sessionID, entry string) error {
	existing, err := h.store.Versions(ctx, sessionID, runlog.VersionInitial)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if _, err := h.store.SaveVersion(ctx, sessionID, runlog.VersionInitial, entry); err != nil {
		return err
	}
	h.logActivity(ctx, sessionID, "Wrote initial diary entry")
	return nil
}

// classify maps a pipeline error to a status, a user-safe message and a code.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, augment.ErrUnknownKey):
		return http.StatusBadRequest, "unknown life orientation or tone", "UNKNOWN_KEY"
	case errors.Is(err, augment.ErrEmptyEntry):
		return http.StatusBadRequest, "diary entry is empty", "EMPTY_ENTRY"
	case errors.Is(err, augment.ErrUnsupportedMethod):
		return http.StatusBadRequest, "unsupported method", "UNSUPPORTED_METHOD"
	case errors.Is(err, augment.ErrMalformedModelOutput):
		return http.StatusBadGateway, FriendlyError, "MODEL_OUTPUT"
	case errors.Is(err, augment.ErrUpstreamModel):
		return http.StatusBadGateway, FriendlyError, "UPSTREAM"
	default:
		return http.StatusInternalServerError, FriendlyError, "INTERNAL"
	}
}

type SaveDiaryRequest struct {
	DiaryEntry string `json:"diary_entry"`
	Kind       string `json:"kind"`
}

var versionActivity = map[runlog.VersionKind]string{
	runlog.VersionInitial: "Wrote initial diary entry",
	runlog.VersionWorking: "Modified diary entry",
	runlog.VersionSaved:   "Saved diary entry",
}

// SaveDiary handles POST /api/v1/sessions/{id}/diaries
func (h *Handlers) SaveDiary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req SaveDiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.DiaryEntry) == "" {
		writeError(w, http.StatusBadRequest, "diary entry is empty", "EMPTY_ENTRY")
		return
	}
	if req.Kind == "" {
		req.Kind = string(runlog.VersionSaved)
	}
	kind, err := runlog.ParseVersionKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_KIND")
		return
	}
	if !h.sessionExists(w, r, sessionID) {
		return
	}

	v, err := h.store.SaveVersion(r.Context(), sessionID, kind, req.DiaryEntry)
	if err != nil {
		log.Printf("session %s: save %s diary: %v", sessionID, kind, err)
		writeError(w, http.StatusInternalServerError, "failed to save diary", "STORAGE_ERROR")
		return
	}
	h.logActivity(r.Context(), sessionID, versionActivity[kind])
	writeJSON(w, http.StatusCreated, v)
}

// Diaries handles GET /api/v1/sessions/{id}/diaries?kind=initial
func (h *Handlers) Diaries(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	kindParam := r.URL.Query().Get("kind")
	if kindParam == "" {
		kindParam = string(runlog.VersionInitial)
	}
	kind, err := runlog.ParseVersionKind(kindParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_KIND")
		return
	}
	if !h.sessionExists(w, r, sessionID) {
		return
	}
	versions, err := h.store.Versions(r.Context(), sessionID, kind)
	if err != nil {
		log.Printf("session %s: list %s diaries: %v", sessionID, kind, err)
		writeError(w, http.StatusInternalServerError, "failed to list diaries", "STORAGE_ERROR")
		return
	}
	if versions == nil {
		versions = []runlog.Version{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"diaries": versions})
}

type ActivityRequest struct {
	Activity string `json:"activity"`
}

// LogActivity handles POST /api/v1/sessions/{id}/activities
func (h *Handlers) LogActivity(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.Activity) == "" {
		writeError(w, http.StatusBadRequest, "activity is required", "MISSING_ACTIVITY")
		return
	}
	if !h.sessionExists(w, r, sessionID) {
		return
	}
	if err := h.store.LogActivity(r.Context(), sessionID, strings.TrimSpace(req.Activity)); err != nil {
		log.Printf("session %s: log activity: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to log activity", "STORAGE_ERROR")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Responses handles GET /api/v1/sessions/{id}/responses
func (h *Handlers) Responses(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if !h.sessionExists(w, r, sessionID) {
		return
	}
	recs, err := h.store.Responses(r.Context(), sessionID)
	if err != nil {
		log.Printf("session %s: list responses: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "failed to list responses", "STORAGE_ERROR")
		return
	}
	if recs == nil {
		recs = []runlog.ResponseRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": recs})
}

func (h *Handlers) sessionExists(w http.ResponseWriter, r *http.Request, id string) bool {
	_, err := h.store.Session(r.Context(), id)
	switch {
	case err == nil:
		return true
	case errors.Is(err, runlog.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
	default:
		log.Printf("session %s: lookup: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load session", "STORAGE_ERROR")
	}
	return false
}

func (h *Handlers) logActivity(ctx context.Context, sessionID, activity string) {
	if err := h.store.LogActivity(ctx, sessionID, activity); err != nil {
		log.Printf("session %s: log activity %q: %v", sessionID, activity, err)
	}
}
