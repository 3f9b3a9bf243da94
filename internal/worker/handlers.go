package worker

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/newslabels/internal/cache"
	"github.com/thebtf/newslabels/internal/llm"
	"github.com/thebtf/newslabels/pkg/models"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	Version       string              `json:"version"`
	Uptime        string              `json:"uptime"`
	Cache         cache.StatsSnapshot `json:"cache"`
	CacheEnabled  bool                `json:"cache_enabled"`
	UptimeSeconds int64               `json:"uptime_seconds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: RequestID(r.Context())})
}

// handleCreateLabels labels a batch of articles.
//
//	@Summary		Label a batch of articles
//	@Description	Embeds each article, clusters the batch and attaches a short label to every clustered article. Noise articles come back unlabeled.
//	@Tags			labels
//	@Accept			json
//	@Produce		json
//	@Param			X-Open-Ai-Api-Key	header		string				false	"OpenAI API key, required for non-empty batches"
//	@Param			articles			body		[]models.Article	true	"Articles to label"
//	@Success		200					{array}		models.Article
//	@Failure		400					{object}	errorResponse
//	@Failure		413					{object}	errorResponse
//	@Failure		500					{object}	errorResponse
//	@Failure		502					{object}	errorResponse
//	@Failure		503					{object}	errorResponse
//	@Router			/v1/create_labels/ [post]
func (s *Service) handleCreateLabels(w http.ResponseWriter, r *http.Request) {
	if s.config != nil && s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	articles, err := decodeArticles(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	credential := strings.TrimSpace(r.Header.Get(CredentialHeader))
	if len(articles) > 0 && credential == "" {
		writeError(w, r, http.StatusBadRequest, "missing "+CredentialHeader+" header")
		return
	}

	start := time.Now()
	labeled, err := s.processor.Process(r.Context(), credential, articles)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "failed to label articles"
		if apiErr, ok := llm.APIError(err); ok {
			status = http.StatusBadGateway
			msg = "upstream model API error: " + apiErr.Message
			if apiErr.Message == "" {
				msg = "upstream model API error"
			}
		}
		log.Error().Err(err).
			Str("request_id", RequestID(r.Context())).
			Int("articles", len(articles)).
			Msg("Labeling batch failed")
		writeError(w, r, status, msg)
		return
	}

	log.Info().
		Str("request_id", RequestID(r.Context())).
		Int("articles", len(labeled)).
		Dur("duration", time.Since(start)).
		Msg("Labeled batch")

	if labeled == nil {
		labeled = []*models.Article{}
	}
	writeJSON(w, http.StatusOK, labeled)
}

// decodeArticles reads a JSON array of article objects.
func decodeArticles(body io.Reader) ([]*models.Article, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("request body must be a JSON array of articles")
	}

	var articles []*models.Article
	if err := json.Unmarshal(trimmed, &articles); err != nil {
		return nil, errors.New("invalid article batch: " + err.Error())
	}
	for _, a := range articles {
		if a == nil {
			return nil, errors.New("article must be a JSON object")
		}
	}
	return articles, nil
}

// handleHealth reports liveness, version and uptime.
//
//	@Summary	Liveness and uptime
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	map[string]string
//	@Router		/health [get]
func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, code := "ready", http.StatusOK
	if !s.ready.Load() {
		status, code = "starting", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleReady reports whether the worker accepts labeling requests.
//
//	@Summary	Readiness
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	map[string]string
//	@Router		/api/ready [get]
func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

//	@Summary	Build version
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/api/version [get]
func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleStats returns cache statistics.
//
//	@Summary	Cache statistics
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	StatsResponse
//	@Router		/api/stats [get]
func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(s.startTime)
	resp := StatsResponse{
		Version:       s.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		CacheEnabled:  s.cache != nil,
	}
	if s.cache != nil {
		resp.Cache = s.cache.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
