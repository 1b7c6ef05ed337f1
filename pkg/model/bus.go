// Package model 定义线路排班的核心数据模型
package model

import (
	"math"
)

// Propulsion 动力类型
type Propulsion string

const (
	PropulsionDiesel   Propulsion = "diesel"
	PropulsionElectric Propulsion = "electric"
)

// DefaultRangeBuffer 默认续航安全余量（百分比）
const DefaultRangeBuffer = 20

// Bus 车辆
type Bus struct {
	BaseModel
	LicensePlate     string     `json:"license_plate" db:"license_plate"`
	Size             BusSize    `json:"size" db:"size"`
	Propulsion       Propulsion `json:"propulsion" db:"propulsion"`
	MaxRangeKm       *float64   `json:"max_range_km,omitempty" db:"max_range_km"` // 仅电动车有意义
	UnavailableDates []Date     `json:"unavailable_dates" db:"-"`                 // 维修等不可用日期
}

// RangeSafety 续航安全检查结果
type RangeSafety struct {
	IsSafe        bool `json:"is_safe"`
	BufferPercent int  `json:"buffer_percent"`
}

// IsElectric 是否电动车
func (b *Bus) IsElectric() bool {
	return b.Propulsion == PropulsionElectric
}

// hasDeclaredRange 电动车是否声明了续航
func (b *Bus) hasDeclaredRange() bool {
	return b.IsElectric() && b.MaxRangeKm != nil
}

// IsAvailableOn 该日期是否可用
func (b *Bus) IsAvailableOn(date Date) bool {
	return !ContainsDate(b.UnavailableDates, date)
}

// CanHandleDistance 是否能跑完该距离，非电动车和未声明续航的电动车不受限
func (b *Bus) CanHandleDistance(distanceKm float64) bool {
	if !b.hasDeclaredRange() {
		return true
	}
	return *b.MaxRangeKm >= distanceKm
}

// CheckRangeSafety 按安全余量检查续航
func (b *Bus) CheckRangeSafety(distanceKm float64, bufferPercent float64) RangeSafety {
	if !b.hasDeclaredRange() || distanceKm <= 0 {
		return RangeSafety{IsSafe: true, BufferPercent: 100}
	}

	maxRange := *b.MaxRangeKm
	required := distanceKm * (1 + bufferPercent/100)
	actual := math.Max(0, (maxRange/distanceKm-1)*100)

	return RangeSafety{
		IsSafe:        maxRange >= required,
		BufferPercent: int(math.Round(actual)),
	}
}

// MarkUnavailable 标记不可用日期（重复忽略）
func (b *Bus) MarkUnavailable(date Date) {
	if !ContainsDate(b.UnavailableDates, date) {
		b.UnavailableDates = append(b.UnavailableDates, date)
	}
}

// MarkAvailable 取消不可用日期
func (b *Bus) MarkAvailable(date Date) {
	b.UnavailableDates = removeDate(b.UnavailableDates, date)
}

func removeDate(dates []Date, date Date) []Date {
	result := dates[:0]
	for _, d := range dates {
		if d != date {
			result = append(result, d)
		}
	}
	return result
}
