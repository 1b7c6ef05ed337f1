package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/paiban/busplan/internal/service"
	"github.com/paiban/busplan/pkg/errors"
)

// DispatchHandler 候选推荐处理器
type DispatchHandler struct {
	svc *service.PlanningService
}

// NewDispatchHandler 创建候选推荐处理器
func NewDispatchHandler(svc *service.PlanningService) *DispatchHandler {
	return &DispatchHandler{svc: svc}
}

// Candidates 线路某日某班次的车辆与司机评分排序
// GET /api/v1/candidates?line_id=&date=&shift=[&available_only=true]
func (h *DispatchHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lineID, err := uuid.Parse(q.Get("line_id"))
	if err != nil {
		respondError(w, r, errors.InvalidInput("line_id", "不是有效的UUID"))
		return
	}
	date, err := queryDate(r, "date", true)
	if err != nil {
		respondError(w, r, err)
		return
	}
	shift, err := queryShift(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if shift == "" {
		respondError(w, r, errors.InvalidShift(""))
		return
	}

	availableOnly := false
	if raw := q.Get("available_only"); raw != "" {
		availableOnly, err = strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, errors.InvalidInput("available_only", "应为 true 或 false"))
			return
		}
	}

	list, err := h.svc.Candidates(r.Context(), service.CandidateQuery{
		LineID:        lineID,
		Date:          date,
		Shift:         shift,
		AvailableOnly: availableOnly,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}
