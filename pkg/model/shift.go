// Package model 定义线路排班的核心数据模型
package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ShiftType 班次类型
type ShiftType string

const (
	ShiftMorning   ShiftType = "morning"   // 早班 05:00-13:00
	ShiftAfternoon ShiftType = "afternoon" // 中班 13:00-21:00
	ShiftNight     ShiftType = "night"     // 夜班 21:00-05:00（跨午夜）
)

// AllShiftTypes 返回全部班次（按一天内的顺序）
func AllShiftTypes() []ShiftType {
	return []ShiftType{ShiftMorning, ShiftAfternoon, ShiftNight}
}

// ParseShiftType 解析班次类型
func ParseShiftType(s string) (ShiftType, error) {
	switch st := ShiftType(strings.ToLower(strings.TrimSpace(s))); st {
	case ShiftMorning, ShiftAfternoon, ShiftNight:
		return st, nil
	default:
		return "", fmt.Errorf("无效班次 %q", s)
	}
}

// IsValid 检查班次类型是否有效
func (s ShiftType) IsValid() bool {
	_, err := ParseShiftType(string(s))
	return err == nil
}

// containsShift 班次列表是否包含某个班次
func containsShift(shifts []ShiftType, s ShiftType) bool {
	for _, x := range shifts {
		if x == s {
			return true
		}
	}
	return false
}

// TimeWindow 运营时间窗口（HH:MM，24小时制）
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Assignment 排班分配：某日某班次某线路的车辆+司机
type Assignment struct {
	BaseModel
	Date     Date      `json:"date" db:"date"`
	Shift    ShiftType `json:"shift" db:"shift"`
	LineID   uuid.UUID `json:"line_id" db:"line_id"`
	BusID    uuid.UUID `json:"bus_id" db:"bus_id"`
	DriverID uuid.UUID `json:"driver_id" db:"driver_id"`
}

// NewAssignment 创建排班分配
func NewAssignment(date Date, shift ShiftType, lineID, busID, driverID uuid.UUID) *Assignment {
	return &Assignment{
		BaseModel: NewBaseModel(),
		Date:      date,
		Shift:     shift,
		LineID:    lineID,
		BusID:     busID,
		DriverID:  driverID,
	}
}

// IsOnDate 检查是否在指定日期
func (a *Assignment) IsOnDate(date Date) bool {
	return a.Date == date
}

// UsesBusOrDriver 是否占用了该车辆或司机
func (a *Assignment) UsesBusOrDriver(busID, driverID uuid.UUID) bool {
	return (busID != uuid.Nil && a.BusID == busID) || (driverID != uuid.Nil && a.DriverID == driverID)
}
