// Package model 定义线路排班的核心数据模型
package model

import (
	"time"
)

// Driver 司机
type Driver struct {
	BaseModel
	FullName         string      `json:"full_name" db:"full_name"`
	WeeklyHours      int         `json:"weekly_hours" db:"weekly_hours"`     // 合同周工时
	AvailableDays    Weekdays    `json:"available_days,omitempty" db:"-"`    // 为空表示每天可用
	PreferredShifts  []ShiftType `json:"preferred_shifts,omitempty" db:"-"`  // 偏好班次
	AvoidShifts      []ShiftType `json:"avoid_shifts,omitempty" db:"-"`      // 避免班次
	UnavailableDates []Date      `json:"unavailable_dates,omitempty" db:"-"` // 请假等不可用日期
}

// NewDriver 创建司机，同时出现在偏好和避免中的班次只保留在避免列表
func NewDriver(fullName string, weeklyHours int, availableDays []time.Weekday, preferred, avoid []ShiftType) *Driver {
	d := &Driver{
		BaseModel:       NewBaseModel(),
		FullName:        fullName,
		WeeklyHours:     weeklyHours,
		AvailableDays:   append([]time.Weekday(nil), availableDays...),
		PreferredShifts: append([]ShiftType(nil), preferred...),
		AvoidShifts:     append([]ShiftType(nil), avoid...),
	}
	d.ResolveContradictions()
	return d
}

// HasContradictingPreferences 是否存在既偏好又避免的班次
func (d *Driver) HasContradictingPreferences() bool {
	for _, s := range d.PreferredShifts {
		if containsShift(d.AvoidShifts, s) {
			return true
		}
	}
	return false
}

// ResolveContradictions 从偏好中移除同时被避免的班次，返回被移除的班次
func (d *Driver) ResolveContradictions() []ShiftType {
	var removed []ShiftType
	kept := make([]ShiftType, 0, len(d.PreferredShifts))
	for _, s := range d.PreferredShifts {
		if containsShift(d.AvoidShifts, s) {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	d.PreferredShifts = kept
	return removed
}

// IsBlackedOut 该日期是否请假
func (d *Driver) IsBlackedOut(date Date) bool {
	return ContainsDate(d.UnavailableDates, date)
}

// WorksOnWeekday 该星期是否可用（未限制时每天可用）
func (d *Driver) WorksOnWeekday(wd time.Weekday) bool {
	if len(d.AvailableDays) == 0 {
		return true
	}
	for _, day := range d.AvailableDays {
		if day == wd {
			return true
		}
	}
	return false
}

// IsAvailableOn 该日期是否可用
func (d *Driver) IsAvailableOn(date Date) bool {
	if d.IsBlackedOut(date) {
		return false
	}
	return d.WorksOnWeekday(date.Weekday())
}

// PrefersShift 是否偏好该班次
func (d *Driver) PrefersShift(s ShiftType) bool {
	return containsShift(d.PreferredShifts, s)
}

// AvoidsShift 是否避免该班次
func (d *Driver) AvoidsShift(s ShiftType) bool {
	return containsShift(d.AvoidShifts, s)
}

// MarkUnavailable 标记不可用日期（重复忽略）
func (d *Driver) MarkUnavailable(date Date) {
	if !ContainsDate(d.UnavailableDates, date) {
		d.UnavailableDates = append(d.UnavailableDates, date)
	}
}

// MarkAvailable 取消不可用日期
func (d *Driver) MarkAvailable(date Date) {
	d.UnavailableDates = removeDate(d.UnavailableDates, date)
}
