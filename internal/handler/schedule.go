package handler

import (
	"net/http"

	"github.com/paiban/busplan/internal/service"
)

// ScheduleHandler 排班处理器
type ScheduleHandler struct {
	svc *service.PlanningService
}

// NewScheduleHandler 创建排班处理器
func NewScheduleHandler(svc *service.PlanningService) *ScheduleHandler {
	return &ScheduleHandler{svc: svc}
}

// Validate 校验排班，不写入
// POST /api/v1/assignments/validate
func (h *ScheduleHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var in service.AssignmentInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	v, err := h.svc.Validate(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// Create 校验并保存排班
// POST /api/v1/assignments
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.AssignmentInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.svc.CreateAssignment(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// List 某日的排班
// GET /api/v1/assignments?date=YYYY-MM-DD[&shift=]
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.svc.ListAssignments(r.Context(), date, shift)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":        date,
		"assignments": list,
	})
}

// Delete 删除排班
// DELETE /api/v1/assignments/{id}
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.svc.DeleteAssignment(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LineDay 线路某日的班次需求、累计里程与排班
// GET /api/v1/lines/{id}/day?date=YYYY-MM-DD
func (h *ScheduleHandler) LineDay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	date, err := queryDate(r, "date", true)
	if err != nil {
		respondError(w, r, err)
		return
	}

	day, err := h.svc.LineDay(r.Context(), id, date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, day)
}
