package handlers

import (
	"net/http"
	"strconv"

	"github.com/BaSui01/tradeflow/agent/records"
	"github.com/BaSui01/tradeflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ 声明式 Agent 配置 Handler
// =============================================================================

// AgentConfigHandler exposes the declarative customModes records for
// read/overwrite, one phaseN_agents_config.yaml file per phase in 1..4.
type AgentConfigHandler struct {
	store  *records.Store
	logger *zap.Logger
}

// NewAgentConfigHandler builds an AgentConfigHandler over store.
func NewAgentConfigHandler(store *records.Store, logger *zap.Logger) *AgentConfigHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentConfigHandler{store: store, logger: logger.With(zap.String("component", "agent_config_handler"))}
}

type customModesDoc struct {
	CustomModes []records.Record `json:"customModes"`
}

// HandleGet handles GET /agent-configs/{phase}.
func (h *AgentConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	phase, ok := parsePhase(r.PathValue("phase"))
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "phase must be 1..4", h.logger)
		return
	}

	recs, err := h.store.LoadPhase(phase)
	if err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, customModesDoc{CustomModes: recs})
}

// HandlePut handles PUT /agent-configs/{phase}.
func (h *AgentConfigHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	phase, ok := parsePhase(r.PathValue("phase"))
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "phase must be 1..4", h.logger)
		return
	}

	var body customModesDoc
	if DecodeJSONBody(w, r, &body, h.logger) != nil {
		return
	}

	if err := h.store.SavePhase(phase, body.CustomModes); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"saved": true})
}

func parsePhase(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 4 {
		return 0, false
	}
	return n, true
}
