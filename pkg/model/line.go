// Package model 定义线路排班的核心数据模型
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BusSize 车辆尺寸
type BusSize string

const (
	BusSizeSmall       BusSize = "small"
	BusSizeMedium      BusSize = "medium"
	BusSizeLarge       BusSize = "large"
	BusSizeArticulated BusSize = "articulated" // 铰接车
)

// IsValid 检查尺寸是否有效
func (s BusSize) IsValid() bool {
	switch s {
	case BusSizeSmall, BusSizeMedium, BusSizeLarge, BusSizeArticulated:
		return true
	}
	return false
}

// WeeklySchedule 每周运营时间表，缺少某天表示当天不运营
type WeeklySchedule map[time.Weekday]*TimeWindow

// For 返回某星期的运营窗口
func (s WeeklySchedule) For(wd time.Weekday) (*TimeWindow, bool) {
	w, ok := s[wd]
	if !ok || w == nil {
		return nil, false
	}
	return w, true
}

// MarshalJSON 以小写英文星期名作为键
func (s WeeklySchedule) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	named := make(map[string]*TimeWindow, len(s))
	for wd, w := range s {
		named[WeekdayName(wd)] = w
	}
	return json.Marshal(named)
}

// UnmarshalJSON 接受英文星期名（不区分大小写），兼容旧数据的数字键
func (s *WeeklySchedule) UnmarshalJSON(data []byte) error {
	var named map[string]*TimeWindow
	if err := json.Unmarshal(data, &named); err != nil {
		return err
	}
	if named == nil {
		*s = nil
		return nil
	}
	schedule := make(WeeklySchedule, len(named))
	for key, w := range named {
		wd, err := parseWeekdayKey(key)
		if err != nil {
			return err
		}
		schedule[wd] = w
	}
	*s = schedule
	return nil
}

// Value 实现 driver.Valuer（JSONB）
func (s WeeklySchedule) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan 实现 sql.Scanner（JSONB）
func (s *WeeklySchedule) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*s = WeeklySchedule{}
		return nil
	default:
		return fmt.Errorf("无法将 %T 转换为时间表", value)
	}
	schedule := WeeklySchedule{}
	if err := json.Unmarshal(data, &schedule); err != nil {
		return fmt.Errorf("解析时间表失败: %w", err)
	}
	*s = schedule
	return nil
}

// Line 公交线路
type Line struct {
	BaseModel
	Number          string         `json:"line_number" db:"line_number"`
	RouteName       string         `json:"route_name" db:"route_name"`
	DistanceKm      float64        `json:"distance_km" db:"distance_km"`
	DurationMinutes int            `json:"duration_minutes" db:"duration_minutes"` // 单程时长
	CompatibleSizes []BusSize      `json:"compatible_sizes" db:"compatible_sizes"`
	Schedule        WeeklySchedule `json:"schedule" db:"schedule"`
	IsActive        bool           `json:"is_active" db:"is_active"`
}

// OperatesOn 线路在该日期是否运营（停用线路永不运营）
func (l *Line) OperatesOn(date Date) bool {
	if !l.IsActive {
		return false
	}
	_, ok := l.Schedule.For(date.Weekday())
	return ok
}

// WindowOn 返回该日期的运营窗口
func (l *Line) WindowOn(date Date) (*TimeWindow, bool) {
	return l.Schedule.For(date.Weekday())
}

// AcceptsSize 线路是否兼容该尺寸车辆
func (l *Line) AcceptsSize(size BusSize) bool {
	for _, s := range l.CompatibleSizes {
		if s == size {
			return true
		}
	}
	return false
}

// DisplayName 展示名称
func (l *Line) DisplayName() string {
	if l.RouteName == "" {
		return l.Number
	}
	return l.Number + " " + l.RouteName
}
