package handler

import (
	"net/http"

	"github.com/paiban/busplan/internal/service"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/model"
)

// defaultStatsDays 未指定区间时统计最近一周
const defaultStatsDays = 7

// maxStatsDays 统计区间上限
const maxStatsDays = 366

// StatsHandler 统计处理器
type StatsHandler struct {
	svc   *service.PlanningService
	today func() model.Date
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(svc *service.PlanningService) *StatsHandler {
	return &StatsHandler{svc: svc, today: model.Today}
}

// PlanningStatus 规划窗口内每天的排班进度
// GET /api/v1/planning/status
func (h *StatsHandler) PlanningStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.PlanningStatus(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Stats 数据统计与司机工作量
// GET /api/v1/stats[?from=&to=]
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from", false)
	if err != nil {
		respondError(w, r, err)
		return
	}
	to, err := queryDate(r, "to", false)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if to.IsZero() {
		to = h.today()
	}
	if from.IsZero() {
		from = to.AddDays(-(defaultStatsDays - 1))
	}
	if to.Before(from) {
		respondError(w, r, errors.InvalidInput("from", "开始日期不能晚于结束日期"))
		return
	}
	if from.DaysUntil(to) >= maxStatsDays {
		respondError(w, r, errors.InvalidInput("to", "统计区间不能超过一年"))
		return
	}

	overview, err := h.svc.Stats(r.Context(), from, to)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":     from,
		"to":       to,
		"store":    overview.Store,
		"workload": overview.Workload,
	})
}
