// Package timetable 提供班次时间窗口与线路运营时间的计算
package timetable

import (
	"fmt"
	"math"

	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/model"
)

const (
	minutesPerDay = 24 * 60

	// TurnaroundMinutes 两趟之间的固定折返时间（分钟）
	TurnaroundMinutes = 10
)

// Window 以午夜起分钟数表示的时间段，End <= Start 表示跨午夜
type Window struct {
	Start int
	End   int
}

// CrossesMidnight 是否跨午夜
func (w Window) CrossesMidnight() bool {
	return w.End <= w.Start
}

// 固定班次窗口
var shiftWindows = map[model.ShiftType]Window{
	model.ShiftMorning:   {Start: 5 * 60, End: 13 * 60},
	model.ShiftAfternoon: {Start: 13 * 60, End: 21 * 60},
	model.ShiftNight:     {Start: 21 * 60, End: 5 * 60},
}

// WindowFor 返回班次的固定时间窗口
func WindowFor(shift model.ShiftType) (Window, error) {
	w, ok := shiftWindows[shift]
	if !ok {
		return Window{}, errors.InvalidShift(string(shift))
	}
	return w, nil
}

// ParseClock 解析 HH:MM 为午夜起分钟数
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, errors.InvalidTimeFormat(s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, errors.InvalidTimeFormat(s)
		}
	}

	hours := int(s[0]-'0')*10 + int(s[1]-'0')
	minutes := int(s[3]-'0')*10 + int(s[4]-'0')
	if hours > 23 || minutes > 59 {
		return 0, errors.InvalidTimeFormat(s)
	}
	return hours*60 + minutes, nil
}

// ParseWindow 解析运营时间窗口
func ParseWindow(tw *model.TimeWindow) (Window, error) {
	start, err := ParseClock(tw.Start)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseClock(tw.End)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

// segments 将窗口拆成不跨午夜的区间，跨午夜的窗口拆为 [Start,24:00) 和 [00:00,End)
func (w Window) segments() []Window {
	if !w.CrossesMidnight() {
		return []Window{w}
	}
	segs := []Window{{Start: w.Start, End: minutesPerDay}}
	if w.End > 0 {
		segs = append(segs, Window{Start: 0, End: w.End})
	}
	return segs
}

// Overlaps 两个窗口是否重叠（任一区间相交即可）
func (w Window) Overlaps(other Window) bool {
	for _, a := range w.segments() {
		for _, b := range other.segments() {
			if a.Start < b.End && a.End > b.Start {
				return true
			}
		}
	}
	return false
}

// IsShiftRequired 线路在该日期是否需要该班次
func IsShiftRequired(line *model.Line, date model.Date, shift model.ShiftType) (bool, error) {
	if _, err := WindowFor(shift); err != nil {
		return false, err
	}

	tw, ok := line.WindowOn(date)
	if !ok {
		return false, nil
	}

	w, err := ParseWindow(tw)
	if err != nil {
		return false, fmt.Errorf("线路 %s 的时间表无效: %w", line.Number, err)
	}

	return w.Overlaps(shiftWindows[shift]), nil
}

// RequiredShifts 返回线路当天需要的班次
func RequiredShifts(line *model.Line, date model.Date) ([]model.ShiftType, error) {
	var shifts []model.ShiftType
	for _, s := range model.AllShiftTypes() {
		required, err := IsShiftRequired(line, date, s)
		if err != nil {
			return nil, err
		}
		if required {
			shifts = append(shifts, s)
		}
	}
	return shifts, nil
}

// RequiredShiftCount 返回线路当天需要的班次数（0-3）
func RequiredShiftCount(line *model.Line, date model.Date) (int, error) {
	shifts, err := RequiredShifts(line, date)
	if err != nil {
		return 0, err
	}
	return len(shifts), nil
}

// OperatingMinutes 运营窗口时长（分钟），结束不晚于开始时按跨午夜计算
func OperatingMinutes(w Window) int {
	if w.End > w.Start {
		return w.End - w.Start
	}
	return minutesPerDay - w.Start + w.End
}

// AccumulatedDailyDistance 线路当天全部趟次的累计里程（公里）
func AccumulatedDailyDistance(line *model.Line, date model.Date) (float64, error) {
	tw, ok := line.WindowOn(date)
	if !ok {
		return 0, nil
	}

	w, err := ParseWindow(tw)
	if err != nil {
		return 0, fmt.Errorf("线路 %s 的时间表无效: %w", line.Number, err)
	}

	cycle := line.DurationMinutes + TurnaroundMinutes
	if cycle <= 0 {
		return 0, nil
	}

	trips := math.Floor(float64(OperatingMinutes(w)) / float64(cycle))
	return trips * line.DistanceKm, nil
}
