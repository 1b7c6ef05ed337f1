package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Date
		wantErr  bool
	}{
		{"标准格式", "2026-03-09", Date{2026, time.March, 9}, false},
		{"ISO时间戳只取日期", "2026-03-09T23:30:00.000Z", Date{2026, time.March, 9}, false},
		{"带空格时间", "2026-03-09 08:00:00", Date{2026, time.March, 9}, false},
		{"无效月份", "2026-13-01", Date{}, true},
		{"非日期", "tomorrow", Date{}, true},
		{"空字符串", "", Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if result != tt.expected {
				t.Errorf("ParseDate(%q) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDate_AddDaysAndWeekday(t *testing.T) {
	d := MustParseDate("2026-02-27")

	if got := d.AddDays(2); got.String() != "2026-03-01" {
		t.Errorf("AddDays(2) = %s, expected 2026-03-01", got)
	}
	if got := d.AddDays(-27); got.String() != "2026-01-31" {
		t.Errorf("AddDays(-27) = %s, expected 2026-01-31", got)
	}
	if d.Weekday() != time.Friday {
		t.Errorf("Weekday() = %v, expected Friday", d.Weekday())
	}
	if n := d.DaysUntil(MustParseDate("2026-03-06")); n != 7 {
		t.Errorf("DaysUntil() = %d, expected 7", n)
	}
}

func TestDateOf_IgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	late := time.Date(2026, 5, 4, 23, 59, 0, 0, loc)
	early := time.Date(2026, 5, 4, 0, 1, 0, 0, loc)

	if DateOf(late) != DateOf(early) {
		t.Errorf("同一天的不同时刻应得到相同日期: %v vs %v", DateOf(late), DateOf(early))
	}
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		expected string
	}{
		{"周一", "2026-03-09", "2026-03-09"},
		{"周三", "2026-03-11", "2026-03-09"},
		{"周日", "2026-03-15", "2026-03-09"},
		{"跨月", "2026-03-01", "2026-02-23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeekStart(MustParseDate(tt.date)); got.String() != tt.expected {
				t.Errorf("WeekStart(%s) = %s, expected %s", tt.date, got, tt.expected)
			}
		})
	}
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Date Date `json:"date"`
	}

	data, err := json.Marshal(payload{Date: MustParseDate("2026-07-01")})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"date":"2026-07-01"}` {
		t.Errorf("Marshal() = %s", data)
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"date":"2026-07-02"}`), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.Date.String() != "2026-07-02" {
		t.Errorf("Unmarshal() = %s", p.Date)
	}
}

func TestDate_Scan(t *testing.T) {
	var d Date
	if err := d.Scan(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Scan(time) error = %v", err)
	}
	if d.String() != "2026-01-05" {
		t.Errorf("Scan(time) = %s", d)
	}
	if err := d.Scan([]byte("2026-01-06")); err != nil || d.String() != "2026-01-06" {
		t.Errorf("Scan(bytes) = %s, %v", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) 应返回错误")
	}
}

func TestParseWeekday(t *testing.T) {
	wd, err := ParseWeekday("Monday")
	if err != nil || wd != time.Monday {
		t.Errorf("ParseWeekday(Monday) = %v, %v", wd, err)
	}
	if _, err := ParseWeekday("montag"); err == nil {
		t.Error("无效星期应返回错误")
	}
}

func TestNewBaseModel(t *testing.T) {
	base := NewBaseModel()

	if base.ID.String() == "" {
		t.Error("ID should not be empty")
	}
	if base.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
	if base.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should not be zero")
	}
}
