package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/paiban/busplan/internal/service"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/model"
)

// FleetHandler 线路、车辆、司机维护
type FleetHandler struct {
	svc *service.PlanningService
}

// NewFleetHandler 创建处理器
func NewFleetHandler(svc *service.PlanningService) *FleetHandler {
	return &FleetHandler{svc: svc}
}

// AvailabilityRequest 单日可用性调整
type AvailabilityRequest struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

// ========================================
// 线路
// ========================================

// ListLines 线路列表，指定 date 时只返回当天运营的线路
// GET /api/v1/lines[?date=]
func (h *FleetHandler) ListLines(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date", false)
	if err != nil {
		respondError(w, r, err)
		return
	}
	lines, err := h.svc.ListLines(r.Context(), date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"lines": lines, "total": len(lines)})
}

// GetLine GET /api/v1/lines/{id}
func (h *FleetHandler) GetLine(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, func(ctx context.Context, id uuid.UUID) (interface{}, error) {
		return h.svc.GetLine(ctx, id)
	})
}

// CreateLine POST /api/v1/lines
func (h *FleetHandler) CreateLine(w http.ResponseWriter, r *http.Request) {
	var in service.LineInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	line, err := h.svc.SaveLine(r.Context(), uuid.Nil, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, line)
}

// UpdateLine PUT /api/v1/lines/{id}
func (h *FleetHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in service.LineInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	line, err := h.svc.SaveLine(r.Context(), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, line)
}

// DeleteLine DELETE /api/v1/lines/{id}
func (h *FleetHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.svc.DeleteLine)
}

// ========================================
// 车辆
// ========================================

// ListBuses 车辆列表，指定 date 时只返回当天可用的车辆
// GET /api/v1/buses[?date=]
func (h *FleetHandler) ListBuses(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date", false)
	if err != nil {
		respondError(w, r, err)
		return
	}
	buses, err := h.svc.ListBuses(r.Context(), date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"buses": buses, "total": len(buses)})
}

// GetBus GET /api/v1/buses/{id}
func (h *FleetHandler) GetBus(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, func(ctx context.Context, id uuid.UUID) (interface{}, error) {
		return h.svc.GetBus(ctx, id)
	})
}

// CreateBus POST /api/v1/buses
func (h *FleetHandler) CreateBus(w http.ResponseWriter, r *http.Request) {
	var in service.BusInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	bus, err := h.svc.SaveBus(r.Context(), uuid.Nil, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, bus)
}

// UpdateBus PUT /api/v1/buses/{id}
func (h *FleetHandler) UpdateBus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in service.BusInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	bus, err := h.svc.SaveBus(r.Context(), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bus)
}

// SetBusAvailability PUT /api/v1/buses/{id}/availability
func (h *FleetHandler) SetBusAvailability(w http.ResponseWriter, r *http.Request) {
	h.availability(w, r, func(ctx context.Context, id uuid.UUID, date model.Date, available bool) (interface{}, error) {
		return h.svc.SetBusAvailability(ctx, id, date, available)
	})
}

// DeleteBus DELETE /api/v1/buses/{id}
func (h *FleetHandler) DeleteBus(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.svc.DeleteBus)
}

// ========================================
// 司机
// ========================================

// ListDrivers 司机列表，指定 date 时只返回当天可出勤的司机
// GET /api/v1/drivers[?date=]
func (h *FleetHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date", false)
	if err != nil {
		respondError(w, r, err)
		return
	}
	drivers, err := h.svc.ListDrivers(r.Context(), date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"drivers": drivers, "total": len(drivers)})
}

// GetDriver GET /api/v1/drivers/{id}
func (h *FleetHandler) GetDriver(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, func(ctx context.Context, id uuid.UUID) (interface{}, error) {
		return h.svc.GetDriver(ctx, id)
	})
}

// CreateDriver POST /api/v1/drivers
func (h *FleetHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var in service.DriverInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	saved, err := h.svc.SaveDriver(r.Context(), uuid.Nil, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

// UpdateDriver PUT /api/v1/drivers/{id}
func (h *FleetHandler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in service.DriverInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	saved, err := h.svc.SaveDriver(r.Context(), id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

// SetDriverAvailability PUT /api/v1/drivers/{id}/availability
func (h *FleetHandler) SetDriverAvailability(w http.ResponseWriter, r *http.Request) {
	h.availability(w, r, func(ctx context.Context, id uuid.UUID, date model.Date, available bool) (interface{}, error) {
		return h.svc.SetDriverAvailability(ctx, id, date, available)
	})
}

// DeleteDriver DELETE /api/v1/drivers/{id}
func (h *FleetHandler) DeleteDriver(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.svc.DeleteDriver)
}

// ========================================
// 辅助
// ========================================

func (h *FleetHandler) get(w http.ResponseWriter, r *http.Request, fetch func(context.Context, uuid.UUID) (interface{}, error)) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	v, err := fetch(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *FleetHandler) delete(w http.ResponseWriter, r *http.Request, remove func(context.Context, uuid.UUID) error) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := remove(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FleetHandler) availability(w http.ResponseWriter, r *http.Request, set func(context.Context, uuid.UUID, model.Date, bool) (interface{}, error)) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req AvailabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		respondError(w, r, errors.InvalidDate("date", req.Date))
		return
	}
	v, err := set(r.Context(), id, date, req.Available)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}
