// Package stats 提供排班统计分析功能
package stats

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/busplan/pkg/logger"
	"github.com/paiban/busplan/pkg/model"
	"github.com/paiban/busplan/pkg/timetable"
)

const (
	defaultWeeksBefore = 2
	defaultWeeks       = 8
)

// LinePlanningStatus 某线路某日的规划进度
type LinePlanningStatus struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	LineNumber     string    `json:"line_number"`
	TotalShifts    int       `json:"total_shifts"`    // 需要的班次数 (0-3)
	AssignedShifts int       `json:"assigned_shifts"` // 已分配班次数
}

// DailyPlanningStatus 每日规划进度
type DailyPlanningStatus struct {
	Date           model.Date           `json:"date"`
	TotalShifts    int                  `json:"total_shifts"`
	AssignedShifts int                  `json:"assigned_shifts"`
	Lines          []LinePlanningStatus `json:"lines"`
}

// CompletionRate 完成率 (%)，当天无需排班时为100
func (d DailyPlanningStatus) CompletionRate() float64 {
	if d.TotalShifts == 0 {
		return 100
	}
	return float64(d.AssignedShifts) / float64(d.TotalShifts) * 100
}

// PlanningWindow 规划窗口
type PlanningWindow struct {
	Start model.Date `json:"start"` // 窗口起始周一
	End   model.Date `json:"end"`   // 窗口最后一天
	From  model.Date `json:"from"`  // 输出起始（周日）
	To    model.Date `json:"to"`    // 输出结束（周六）
}

// Days 输出天数
func (w PlanningWindow) Days() int {
	return w.From.DaysUntil(w.To) + 1
}

// PlanningOption 聚合器选项
type PlanningOption func(*PlanningAggregator)

// WithClock 设置时钟
func WithClock(now func() time.Time) PlanningOption {
	return func(p *PlanningAggregator) {
		p.now = now
	}
}

// WithWeeks 设置窗口：当前周之前的周数和总周数
func WithWeeks(before, total int) PlanningOption {
	return func(p *PlanningAggregator) {
		if before >= 0 {
			p.weeksBefore = before
		}
		if total > 0 {
			p.weeks = total
		}
	}
}

// WithPlannerLogger 设置日志器
func WithPlannerLogger(l *logger.PlannerLogger) PlanningOption {
	return func(p *PlanningAggregator) {
		p.log = l
	}
}

// PlanningAggregator 规划进度聚合器
type PlanningAggregator struct {
	now         func() time.Time
	weeksBefore int
	weeks       int
	log         *logger.PlannerLogger
}

// NewPlanningAggregator 创建聚合器，默认从两周前的周一起共8周
func NewPlanningAggregator(opts ...PlanningOption) *PlanningAggregator {
	p := &PlanningAggregator{
		now:         time.Now,
		weeksBefore: defaultWeeksBefore,
		weeks:       defaultWeeks,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Window 当前规划窗口，输出范围补齐为周日到周六的整周
func (p *PlanningAggregator) Window() PlanningWindow {
	start := model.WeekStart(model.DateOf(p.now())).AddDays(-7 * p.weeksBefore)
	end := start.AddDays(7*p.weeks - 1)
	return PlanningWindow{
		Start: start,
		End:   end,
		From:  start.AddDays(-int(start.Weekday())),
		To:    end.AddDays(int(time.Saturday - end.Weekday())),
	}
}

// Build 计算当前窗口内每日每线路的规划进度
func (p *PlanningAggregator) Build(lines []*model.Line, assignments []*model.Assignment) ([]DailyPlanningStatus, error) {
	w := p.Window()
	return p.BuildRange(lines, assignments, w.From, w.To)
}

// BuildRange 计算指定日期范围（含两端）的规划进度
func (p *PlanningAggregator) BuildRange(lines []*model.Line, assignments []*model.Assignment, from, to model.Date) ([]DailyPlanningStatus, error) {
	started := time.Now()

	sorted := make([]*model.Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	type slotKey struct {
		lineID uuid.UUID
		date   model.Date
	}
	assigned := make(map[slotKey]int)
	for _, a := range assignments {
		assigned[slotKey{a.LineID, a.Date}]++
	}

	days := make([]DailyPlanningStatus, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		day := DailyPlanningStatus{Date: d, Lines: []LinePlanningStatus{}}

		for _, line := range sorted {
			if !line.OperatesOn(d) {
				continue
			}
			required, err := timetable.RequiredShiftCount(line, d)
			if err != nil {
				return nil, err
			}
			status := LinePlanningStatus{
				ID:             line.ID,
				Name:           line.RouteName,
				LineNumber:     line.Number,
				TotalShifts:    required,
				AssignedShifts: assigned[slotKey{line.ID, d}],
			}
			day.TotalShifts += status.TotalShifts
			day.AssignedShifts += status.AssignedShifts
			day.Lines = append(day.Lines, status)
		}

		days = append(days, day)
	}

	if p.log != nil {
		p.log.PlanningStatusBuilt(from.String(), to.String(), len(days), time.Since(started))
	}
	return days, nil
}

// PlanningSummary 规划进度汇总
type PlanningSummary struct {
	Days             int     `json:"days"`
	TotalShifts      int     `json:"total_shifts"`
	AssignedShifts   int     `json:"assigned_shifts"`
	FullyPlannedDays int     `json:"fully_planned_days"` // 需要排班且已全部分配
	UnplannedDays    int     `json:"unplanned_days"`     // 需要排班但尚无分配
	CompletionRate   float64 `json:"completion_rate"`
}

// Summarize 汇总每日规划进度
func Summarize(days []DailyPlanningStatus) PlanningSummary {
	s := PlanningSummary{Days: len(days)}
	for _, d := range days {
		s.TotalShifts += d.TotalShifts
		s.AssignedShifts += d.AssignedShifts
		if d.TotalShifts == 0 {
			continue
		}
		if d.AssignedShifts >= d.TotalShifts {
			s.FullyPlannedDays++
		} else if d.AssignedShifts == 0 {
			s.UnplannedDays++
		}
	}

	s.CompletionRate = 100
	if s.TotalShifts > 0 {
		s.CompletionRate = float64(s.AssignedShifts) / float64(s.TotalShifts) * 100
	}
	return s
}
