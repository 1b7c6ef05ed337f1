package stats

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/busplan/pkg/model"
)

func fixedClock(s string) func() time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return func() time.Time { return t }
}

func planningLine(number string, days []time.Weekday, start, end string, active bool) *model.Line {
	schedule := model.WeeklySchedule{}
	for _, wd := range days {
		schedule[wd] = &model.TimeWindow{Start: start, End: end}
	}
	return &model.Line{
		BaseModel: model.NewBaseModel(),
		Number:    number,
		RouteName: "线路" + number,
		Schedule:  schedule,
		IsActive:  active,
	}
}

var (
	weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	weekend  = []time.Weekday{time.Saturday, time.Sunday}
)

func TestPlanningAggregator_Window(t *testing.T) {
	tests := []struct {
		name  string
		now   string
		start string
		end   string
		from  string
		to    string
	}{
		{"周三", "2024-03-06T10:00:00Z", "2024-02-19", "2024-04-14", "2024-02-18", "2024-04-20"},
		{"周日", "2024-03-10T23:00:00Z", "2024-02-19", "2024-04-14", "2024-02-18", "2024-04-20"},
		{"周一", "2024-03-11T00:00:00Z", "2024-02-26", "2024-04-21", "2024-02-25", "2024-04-27"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewPlanningAggregator(WithClock(fixedClock(tt.now))).Window()
			if w.Start.String() != tt.start || w.End.String() != tt.end {
				t.Errorf("Window() start/end = %s/%s, expected %s/%s", w.Start, w.End, tt.start, tt.end)
			}
			if w.From.String() != tt.from || w.To.String() != tt.to {
				t.Errorf("Window() from/to = %s/%s, expected %s/%s", w.From, w.To, tt.from, tt.to)
			}
			if w.Days() != 63 {
				t.Errorf("Days() = %d, expected 63", w.Days())
			}
		})
	}
}

func TestPlanningAggregator_Build(t *testing.T) {
	agg := NewPlanningAggregator(WithClock(fixedClock("2024-03-06T10:00:00Z")))

	lineA := planningLine("A", weekdays, "06:00", "22:00", true)  // 早中夜 3 班
	lineB := planningLine("B", weekend, "05:00", "13:00", true)   // 仅早班
	lineC := planningLine("C", weekdays, "06:00", "22:00", false) // 停用

	monday := model.MustParseDate("2024-03-04")
	saturday := model.MustParseDate("2024-03-09")
	assignments := []*model.Assignment{
		model.NewAssignment(monday, model.ShiftMorning, lineA.ID, uuid.New(), uuid.New()),
		model.NewAssignment(monday, model.ShiftNight, lineA.ID, uuid.New(), uuid.New()),
		model.NewAssignment(saturday, model.ShiftMorning, lineB.ID, uuid.New(), uuid.New()),
		model.NewAssignment(model.MustParseDate("2025-01-01"), model.ShiftMorning, lineA.ID, uuid.New(), uuid.New()),
	}

	days, err := agg.Build([]*model.Line{lineC, lineB, lineA}, assignments)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(days)%7 != 0 {
		t.Errorf("len(days) = %d, expected a multiple of 7", len(days))
	}
	if days[0].Date.Weekday() != time.Sunday {
		t.Errorf("first day = %s, expected Sunday", days[0].Date.Weekday())
	}
	if days[len(days)-1].Date.Weekday() != time.Saturday {
		t.Errorf("last day = %s, expected Saturday", days[len(days)-1].Date.Weekday())
	}

	byDate := make(map[model.Date]DailyPlanningStatus)
	for _, d := range days {
		byDate[d.Date] = d
	}

	mon := byDate[monday]
	if mon.TotalShifts != 3 || mon.AssignedShifts != 2 {
		t.Errorf("monday = %d/%d, expected 2/3", mon.AssignedShifts, mon.TotalShifts)
	}
	if len(mon.Lines) != 1 || mon.Lines[0].LineNumber != "A" || mon.Lines[0].Name != "线路A" {
		t.Errorf("monday lines = %+v, expected only line A", mon.Lines)
	}

	sat := byDate[saturday]
	if sat.TotalShifts != 1 || sat.AssignedShifts != 1 {
		t.Errorf("saturday = %d/%d, expected 1/1", sat.AssignedShifts, sat.TotalShifts)
	}
	if sat.CompletionRate() != 100 {
		t.Errorf("saturday CompletionRate() = %.1f, expected 100", sat.CompletionRate())
	}

	summary := Summarize(days)
	if summary.Days != 63 {
		t.Errorf("summary.Days = %d, expected 63", summary.Days)
	}
	if summary.TotalShifts != 45*3+18 {
		t.Errorf("summary.TotalShifts = %d, expected %d", summary.TotalShifts, 45*3+18)
	}
	if summary.AssignedShifts != 3 {
		t.Errorf("summary.AssignedShifts = %d, expected 3", summary.AssignedShifts)
	}
	if summary.FullyPlannedDays != 1 || summary.UnplannedDays != 61 {
		t.Errorf("fully/unplanned = %d/%d, expected 1/61", summary.FullyPlannedDays, summary.UnplannedDays)
	}
}

func TestPlanningAggregator_LineOrderAndEmptyDays(t *testing.T) {
	agg := NewPlanningAggregator(WithClock(fixedClock("2024-03-06T10:00:00Z")), WithWeeks(0, 1))

	lines := []*model.Line{
		planningLine("20", weekdays, "05:00", "13:00", true),
		planningLine("10", weekdays, "13:00", "21:00", true),
	}
	days, err := agg.Build(lines, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(days) != 14 {
		t.Fatalf("len(days) = %d, expected 14", len(days))
	}

	sunday := days[0]
	if sunday.Lines == nil || len(sunday.Lines) != 0 {
		t.Errorf("sunday lines = %v, expected empty non-nil slice", sunday.Lines)
	}
	if sunday.CompletionRate() != 100 {
		t.Errorf("empty day CompletionRate() = %.1f, expected 100", sunday.CompletionRate())
	}

	monday := days[1]
	if len(monday.Lines) != 2 || monday.Lines[0].LineNumber != "10" {
		t.Errorf("monday lines should be ordered by line number, got %+v", monday.Lines)
	}
	if monday.CompletionRate() != 0 {
		t.Errorf("monday CompletionRate() = %.1f, expected 0", monday.CompletionRate())
	}
}

func TestPlanningAggregator_InvalidSchedule(t *testing.T) {
	agg := NewPlanningAggregator(WithClock(fixedClock("2024-03-06T10:00:00Z")))
	bad := planningLine("X", weekdays, "25:00", "22:00", true)

	if _, err := agg.Build([]*model.Line{bad}, nil); err == nil {
		t.Error("Build() expected error for malformed schedule")
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Days != 0 || s.CompletionRate != 100 {
		t.Errorf("Summarize(nil) = %+v, expected 0 days and 100%%", s)
	}
}
