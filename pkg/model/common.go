// Package model 定义线路排班的核心数据模型
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// Date 日历日（年/月/日，不含时间和时区）
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate 创建日期，超出范围的月/日会被规范化（如 1月32日 -> 2月1日）
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf 取时间所在时区的日历日
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today 返回本地时区的今天
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate 解析 YYYY-MM-DD，带时间部分的 ISO 时间戳只取日期部分
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && (s[len(DateLayout)] == 'T' || s[len(DateLayout)] == ' ') {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("无效日期 %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate 解析日期，失败时 panic
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time 返回当天 UTC 零点
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Weekday 返回星期
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// AddDays 加减天数
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// DaysUntil 返回到 other 的天数
func (d Date) DaysUntil(other Date) int {
	return int(other.Time().Sub(d.Time()).Hours() / 24)
}

// Before 是否早于 other
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After 是否晚于 other
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// IsZero 是否为零值
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String 返回 YYYY-MM-DD
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// MarshalText 实现 encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Date) UnmarshalText(data []byte) error {
	parsed, err := ParseDate(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value 实现 driver.Valuer
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan 实现 sql.Scanner
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("无法将 %T 转换为日期", value)
	}
}

// WeekStart 返回所在 ISO 周的周一
func WeekStart(d Date) Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// ContainsDate 日期列表中是否包含某个日历日
func ContainsDate(dates []Date, d Date) bool {
	for _, x := range dates {
		if x == d {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday 解析英文星期名（不区分大小写）
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return time.Sunday, fmt.Errorf("无效星期 %q", s)
	}
	return wd, nil
}

// WeekdayName 返回小写英文星期名
func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// parseWeekdayKey 解析星期名，兼容旧数据中的数字（0=周日）
func parseWeekdayKey(s string) (time.Weekday, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		if n < 0 || n > 6 {
			return time.Sunday, fmt.Errorf("无效星期 %q", s)
		}
		return time.Weekday(n), nil
	}
	return ParseWeekday(s)
}

// Weekdays 星期列表，JSON 中使用英文星期名
type Weekdays []time.Weekday

// MarshalJSON 实现 json.Marshaler
func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := make([]string, len(w))
	for i, wd := range w {
		names[i] = WeekdayName(wd)
	}
	return json.Marshal(names)
}

// UnmarshalJSON 实现 json.Unmarshaler，接受星期名或 0-6 数字
func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*w = nil
		return nil
	}
	days := make(Weekdays, 0, len(raw))
	for _, item := range raw {
		var key string
		if err := json.Unmarshal(item, &key); err != nil {
			key = string(item)
		}
		wd, err := parseWeekdayKey(key)
		if err != nil {
			return err
		}
		days = append(days, wd)
	}
	*w = days
	return nil
}
