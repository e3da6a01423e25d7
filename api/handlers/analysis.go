package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/tradeflow/agent/persistence"
	"github.com/BaSui01/tradeflow/analysis/hydrate"
	"github.com/BaSui01/tradeflow/analysis/progress"
	"github.com/BaSui01/tradeflow/analysis/tasks"
	"github.com/BaSui01/tradeflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📈 权益分析任务 Handler
// =============================================================================

// AnalysisHandler wires the task lifecycle manager, result hydrator, and
// progress WebSocket onto the HTTP surface.
type AnalysisHandler struct {
	manager   *tasks.Manager
	hydrator  *hydrate.Hydrator
	wsHandler *progress.Handler
	logger    *zap.Logger
}

// NewAnalysisHandler builds an AnalysisHandler.
func NewAnalysisHandler(manager *tasks.Manager, hydrator *hydrate.Hydrator, wsHandler *progress.Handler, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{manager: manager, hydrator: hydrator, wsHandler: wsHandler, logger: logger.With(zap.String("component", "analysis_handler"))}
}

// batchSubmitRequest is the body of POST /analysis/batch.
type batchSubmitRequest struct {
	Requests []tasks.AnalysisRequest `json:"requests"`
}

// batchSubmitResponse is the data shape returned for a batch
// submission: a batch_id plus the per-request task_ids and a mapping that
// lets the caller correlate a submitted symbol with its assigned task_id.
type batchSubmitResponse struct {
	BatchID string         `json:"batch_id"`
	TaskIDs []string       `json:"task_ids"`
	Mapping []batchMapping `json:"mapping"`
}

type batchMapping struct {
	Symbol string `json:"symbol"`
	TaskID string `json:"task_id"`
}

// statusResponse is the status lookup payload. It is read from the task
// store alone; in-memory state and stored reports are not consulted.
type statusResponse struct {
	TaskID      string  `json:"task_id"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	ElapsedTime string  `json:"elapsed_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// historyResponse is the filtered paginated list payload.
type historyResponse struct {
	Items    []*persistence.AsyncTask `json:"items"`
	Total    int                      `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}

// HandleSubmit handles POST /analysis/single.
func (h *AnalysisHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req tasks.AnalysisRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	taskID, err := h.manager.Submit(r.Context(), req)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"task_id": taskID})
}

// HandleSubmitBatch handles POST /analysis/batch.
func (h *AnalysisHandler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var body batchSubmitRequest
	if DecodeJSONBody(w, r, &body, h.logger) != nil {
		return
	}

	ids, err := h.manager.SubmitBatch(r.Context(), body.Requests)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}

	mapping := make([]batchMapping, 0, len(ids))
	for i, id := range ids {
		symbol := ""
		if i < len(body.Requests) {
			symbol = body.Requests[i].Symbol
		}
		mapping = append(mapping, batchMapping{Symbol: symbol, TaskID: id})
	}
	WriteSuccess(w, batchSubmitResponse{BatchID: ids[0], TaskIDs: ids, Mapping: mapping})
}

// HandleStatus handles GET /analysis/tasks/{id}/status.
func (h *AnalysisHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	task, err := h.manager.Status(r.Context(), taskID)
	if err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "task not found", h.logger)
		return
	}

	resp := statusResponse{
		TaskID:      task.ID,
		Status:      string(task.Status),
		Progress:    task.Progress,
		ElapsedTime: task.Duration().String(),
		Error:       task.Error,
	}
	if task.CompletedAt != nil {
		ts := task.CompletedAt.Format(time.RFC3339)
		resp.EndTime = &ts
	}
	WriteSuccess(w, resp)
}

// HandleResult handles GET /analysis/tasks/{id}/result.
func (h *AnalysisHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	result, err := h.hydrator.Hydrate(r.Context(), taskID)
	if err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleCancel handles POST /analysis/tasks/{id}/cancel.
func (h *AnalysisHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if !h.manager.Cancel(taskID) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "task not found or already terminal", h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"success": true})
}

// HandleMarkFailed handles POST /analysis/tasks/{id}/mark-failed.
func (h *AnalysisHandler) HandleMarkFailed(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = DecodeJSONBody(w, r, &body, nil) // body is optional; ignore absence/parse issues

	if err := h.manager.MarkFailed(r.Context(), taskID, body.Reason); err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"success": true})
}

// HandleDelete handles DELETE /analysis/tasks/{id}.
func (h *AnalysisHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if err := h.manager.Delete(r.Context(), taskID); err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"success": true})
}

// HandleHistory handles GET /analysis/user/history.
func (h *AnalysisHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	page := parsePositiveInt(q.Get("page"), 1)
	pageSize := parsePositiveInt(q.Get("page_size"), 20)

	filter := tasks.HistoryFilter{
		Status: q.Get("status"),
		Symbol: q.Get("symbol"),
		Market: q.Get("market"),
	}
	if from := parseDate(q.Get("start_date")); from != nil {
		filter.From = from
	}
	if to := parseDate(q.Get("end_date")); to != nil {
		end := to.AddDate(0, 0, 1).Add(-time.Millisecond) // inclusive end day
		filter.To = &end
	}

	items, err := h.manager.History(r.Context(), userID, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, historyResponse{Items: items, Total: len(items), Page: page, PageSize: pageSize})
}

// HandleCleanupZombieTasks handles POST /analysis/admin/cleanup-zombie-tasks.
func (h *AnalysisHandler) HandleCleanupZombieTasks(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.ReclaimZombies(r.Context())
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"total_cleaned": n})
}

// HandleWebSocket handles the GET /analysis/ws/task/{id} upgrade, delegating
// the transport entirely to the progress channel's own Handler.
func (h *AnalysisHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	h.wsHandler.Serve(w, r, taskID)
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func parsePositiveInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
