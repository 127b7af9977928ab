package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/openmemory/openmemory/internal/metrics"
)

// RouterConfig carries the pieces NewRouter needs beyond the Handlers
// themselves: the middleware knobs that come from config.ServerConfig /
// config.AuthConfig rather than from any domain component.
type RouterConfig struct {
	APIKeys       []string // empty disables API key auth
	RateLimitRPS  float64
	RateLimitBurst int
	CORSAllowAll  bool // kept for signature symmetry with config; CORS() is always permissive per §6
}

// NewRouter builds the full `/ai-agents/` route table from §6 plus the
// operational endpoints (`/health`, `/healthz`, `/readyz`, `/version`,
// and the additive `/ai-agents/stream`), wrapped in the standard
// middleware chain. `/metrics` is not on this router; cmd/openmemory
// serves it on the separate metrics listener.
func NewRouter(ctx context.Context, h *Handlers, health *HealthHandler, stream *StreamHandler, collector *metrics.Collector, cfg RouterConfig, version, buildTime, gitCommit string, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// --- memory writes & reads (C1/C3/C5) ---------------------------------------
	mux.HandleFunc("POST /ai-agents/state", h.HandleStateUpsert)
	mux.HandleFunc("GET /ai-agents/state/{project}", h.HandleStateGet)
	mux.HandleFunc("POST /ai-agents/action", h.HandleAction)
	mux.HandleFunc("POST /ai-agents/pattern", h.HandlePattern)
	mux.HandleFunc("POST /ai-agents/decision", h.HandleDecision)
	mux.HandleFunc("POST /ai-agents/emotion", h.HandleEmotion)
	mux.HandleFunc("POST /ai-agents/link", h.HandleLink)
	mux.HandleFunc("GET /ai-agents/graph/{memory_id}", h.HandleGraph)
	mux.HandleFunc("POST /ai-agents/reinforce/{memory_id}", h.HandleReinforce)
	mux.HandleFunc("POST /ai-agents/smart-reinforce", h.HandleSmartReinforce)
	mux.HandleFunc("GET /ai-agents/metrics/{memory_id}", h.HandleMemoryMetrics)
	mux.HandleFunc("POST /ai-agents/query", h.HandleQuery)
	mux.HandleFunc("GET /ai-agents/history", h.HandleHistory)
	mux.HandleFunc("GET /ai-agents/patterns", h.HandlePatternsList)
	mux.HandleFunc("GET /ai-agents/decisions", h.HandleDecisionsList)
	mux.HandleFunc("GET /ai-agents/emotions", h.HandleEmotionsList)
	mux.HandleFunc("GET /ai-agents/context/{project}", h.HandleContext)
	mux.HandleFunc("GET /ai-agents/sentiment/{project}", h.HandleSentiment)
	mux.HandleFunc("POST /ai-agents/detect-patterns", h.HandleDetectPatterns)
	mux.HandleFunc("GET /ai-agents/important", h.HandleImportant)
	mux.HandleFunc("POST /ai-agents/important", h.HandleImportant)

	// --- C6 validators ------------------------------------------------------------
	mux.HandleFunc("GET /ai-agents/validate/consistency/{project}", h.HandleValidateConsistency)
	mux.HandleFunc("POST /ai-agents/validate/consistency/{project}", h.HandleValidateConsistency)
	mux.HandleFunc("GET /ai-agents/validate/effectiveness/{project}", h.HandleValidateEffectiveness)
	mux.HandleFunc("POST /ai-agents/validate/effectiveness/{project}", h.HandleValidateEffectiveness)
	mux.HandleFunc("GET /ai-agents/validate/decisions/{project}", h.HandleValidateDecisions)
	mux.HandleFunc("POST /ai-agents/validate/decisions/{project}", h.HandleValidateDecisions)
	mux.HandleFunc("GET /ai-agents/validate/{project}", h.HandleValidateAll)
	mux.HandleFunc("POST /ai-agents/validate/{project}", h.HandleValidateAll)

	// --- C7 self-correction ---------------------------------------------------------
	mux.HandleFunc("GET /ai-agents/analyze/failures/{project}", h.HandleAnalyzeFailures)
	mux.HandleFunc("POST /ai-agents/analyze/failures/{project}", h.HandleAnalyzeFailures)
	mux.HandleFunc("GET /ai-agents/lessons/{project}", h.HandleLessons)
	mux.HandleFunc("GET /ai-agents/adjust/confidence/{project}", h.HandleAdjustConfidence)
	mux.HandleFunc("POST /ai-agents/adjust/confidence/{project}", h.HandleAdjustConfidence)
	mux.HandleFunc("GET /ai-agents/confidence/distribution/{project}", h.HandleConfidenceDistribution)
	mux.HandleFunc("GET /ai-agents/consolidate/{project}", h.HandleConsolidate)
	mux.HandleFunc("POST /ai-agents/consolidate/{project}", h.HandleConsolidate)
	mux.HandleFunc("GET /ai-agents/consolidation/stats/{project}", h.HandleConsolidationStats)

	// --- C8 proactive intelligence ---------------------------------------------------
	mux.HandleFunc("GET /ai-agents/detect/conflicts/{project}", h.HandleDetectConflicts)
	mux.HandleFunc("POST /ai-agents/detect/conflicts/{project}", h.HandleDetectConflicts)
	mux.HandleFunc("GET /ai-agents/detect/anomalies/{project}", h.HandleDetectAnomalies)
	mux.HandleFunc("POST /ai-agents/detect/anomalies/{project}", h.HandleDetectAnomalies)
	mux.HandleFunc("GET /ai-agents/predict/blockers/{project}", h.HandlePredictBlockers)
	mux.HandleFunc("POST /ai-agents/predict/blockers/{project}", h.HandlePredictBlockers)
	mux.HandleFunc("GET /ai-agents/recommend/{project}", h.HandleRecommend)
	mux.HandleFunc("POST /ai-agents/recommend/{project}", h.HandleRecommend)

	// --- C9 learning & quality -----------------------------------------------------
	mux.HandleFunc("GET /ai-agents/learn/patterns/{project}", h.HandleLearnPatterns)
	mux.HandleFunc("POST /ai-agents/learn/patterns/{project}", h.HandleLearnPatterns)
	mux.HandleFunc("GET /ai-agents/learn/stats/{project}", h.HandleLearnStats)
	mux.HandleFunc("GET /ai-agents/quality/gate/{project}", h.HandleQualityGate)
	mux.HandleFunc("POST /ai-agents/quality/gate/{project}", h.HandleQualityGate)
	mux.HandleFunc("GET /ai-agents/quality/trends/{project}", h.HandleQualityTrends)

	// --- C10 orchestration ----------------------------------------------------------
	mux.HandleFunc("POST /ai-agents/autonomous/{project}", h.HandleAutonomous)

	// --- C11 enforcement introspection -----------------------------------------------
	mux.HandleFunc("GET /ai-agents/enforcement/stats/{project}", h.HandleEnforcementStats)
	mux.HandleFunc("GET /ai-agents/enforcement/locks", h.HandleEnforcementLocks)
	mux.HandleFunc("GET /ai-agents/enforcement/health", h.HandleEnforcementHealth)

	// --- additive stream (SPEC_FULL §12) ---------------------------------------------
	mux.HandleFunc("GET /ai-agents/stream", stream.HandleStream)

	// --- operational endpoints ------------------------------------------------------
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(version, buildTime, gitCommit))

	skipAuth := []string{"/health", "/healthz", "/readyz", "/version", "/ai-agents/enforcement/health"}

	chain := []Middleware{
		RequestID(),
		Recovery(logger),
		RequestLogger(logger),
		MetricsMiddleware(collector),
		SecurityHeaders(),
		CORS(),
		RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		APIKeyAuth(cfg.APIKeys, skipAuth, logger),
	}
	return Chain(mux, chain...)
}
