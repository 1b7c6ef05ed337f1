package stats

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/busplan/pkg/model"
)

// WorkloadMetrics 司机工作量公平性指标
type WorkloadMetrics struct {
	// 班次数公平性
	ShiftsGini         float64 `json:"shifts_gini"` // 班次数基尼系数 (0=完全公平, 1=完全不公平)
	ShiftsStdDev       float64 `json:"shifts_std_dev"`
	AvgShiftsPerDriver float64 `json:"avg_shifts_per_driver"`
	MaxShifts          int     `json:"max_shifts"`
	MinShifts          int     `json:"min_shifts"`

	// 班次类型公平性
	ShiftDistribution map[model.ShiftType]float64 `json:"shift_distribution"` // 各班次占比 (%)
	NightShiftGini    float64                     `json:"night_shift_gini"`
	WeekendShiftGini  float64                     `json:"weekend_shift_gini"`

	Drivers []DriverWorkload `json:"drivers"`

	// 综合评分 (0-100)
	FairnessScore float64 `json:"fairness_score"`
}

// DriverWorkload 单个司机的工作量
type DriverWorkload struct {
	DriverID      uuid.UUID `json:"driver_id"`
	DriverName    string    `json:"driver_name"`
	Shifts        int       `json:"shifts"`
	Hours         float64   `json:"hours"`
	ContractHours int       `json:"contract_hours"` // 合同周工时
	NightShifts   int       `json:"night_shifts"`
	WeekendShifts int       `json:"weekend_shifts"`
	Deviation     float64   `json:"deviation"` // 与平均班次数的偏差百分比
}

// WorkloadAnalyzer 司机工作量分析器
type WorkloadAnalyzer struct {
	shiftHours float64
}

// NewWorkloadAnalyzer 创建工作量分析器，shiftHours 为每班次计入工时
func NewWorkloadAnalyzer(shiftHours float64) *WorkloadAnalyzer {
	if shiftHours <= 0 {
		shiftHours = 8
	}
	return &WorkloadAnalyzer{shiftHours: shiftHours}
}

// Analyze 分析司机工作量公平性，没有排班的司机按0计入
func (w *WorkloadAnalyzer) Analyze(assignments []*model.Assignment, drivers []*model.Driver) *WorkloadMetrics {
	if len(drivers) == 0 {
		return &WorkloadMetrics{
			ShiftDistribution: make(map[model.ShiftType]float64),
			Drivers:           []DriverWorkload{},
			FairnessScore:     100,
		}
	}

	workloads := w.driverWorkloads(assignments, drivers)

	shifts := make([]float64, len(workloads))
	nights := make([]float64, len(workloads))
	weekends := make([]float64, len(workloads))
	for i, wl := range workloads {
		shifts[i] = float64(wl.Shifts)
		nights[i] = float64(wl.NightShifts)
		weekends[i] = float64(wl.WeekendShifts)
	}

	avg := mean(shifts)
	stdDev := math.Sqrt(variance(shifts, avg))
	maxShifts, minShifts := valueRange(shifts)

	for i := range workloads {
		if avg > 0 {
			workloads[i].Deviation = (float64(workloads[i].Shifts) - avg) / avg * 100
		}
	}

	shiftsGini := gini(shifts)
	nightGini := gini(nights)
	weekendGini := gini(weekends)

	return &WorkloadMetrics{
		ShiftsGini:         shiftsGini,
		ShiftsStdDev:       stdDev,
		AvgShiftsPerDriver: avg,
		MaxShifts:          int(maxShifts),
		MinShifts:          int(minShifts),
		ShiftDistribution:  shiftDistribution(assignments),
		NightShiftGini:     nightGini,
		WeekendShiftGini:   weekendGini,
		Drivers:            workloads,
		FairnessScore:      fairnessScore(shiftsGini, nightGini, weekendGini, stdDev, avg),
	}
}

// driverWorkloads 统计每个司机的班次，按班次数降序
func (w *WorkloadAnalyzer) driverWorkloads(assignments []*model.Assignment, drivers []*model.Driver) []DriverWorkload {
	byID := make(map[uuid.UUID]*DriverWorkload, len(drivers))
	for _, d := range drivers {
		byID[d.ID] = &DriverWorkload{
			DriverID:      d.ID,
			DriverName:    d.FullName,
			ContractHours: d.WeeklyHours,
		}
	}

	for _, a := range assignments {
		wl, ok := byID[a.DriverID]
		if !ok {
			// 不在统计范围内的司机
			continue
		}
		wl.Shifts++
		wl.Hours += w.shiftHours
		if a.Shift == model.ShiftNight {
			wl.NightShifts++
		}
		if isWeekend(a.Date) {
			wl.WeekendShifts++
		}
	}

	result := make([]DriverWorkload, 0, len(byID))
	for _, wl := range byID {
		result = append(result, *wl)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Shifts != result[j].Shifts {
			return result[i].Shifts > result[j].Shifts
		}
		return result[i].DriverName < result[j].DriverName
	})
	return result
}

func isWeekend(d model.Date) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

func valueRange(values []float64) (max, min float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}

// gini 基尼系数
func gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	g := 0.0
	for i, v := range sorted {
		g += (2*float64(i+1) - float64(n) - 1) * v
	}
	g = g / (float64(n) * sum)
	return math.Max(0, math.Min(1, g))
}

// shiftDistribution 各班次类型占比
func shiftDistribution(assignments []*model.Assignment) map[model.ShiftType]float64 {
	counts := make(map[model.ShiftType]int)
	for _, a := range assignments {
		counts[a.Shift]++
	}

	distribution := make(map[model.ShiftType]float64)
	if total := len(assignments); total > 0 {
		for s, c := range counts {
			distribution[s] = float64(c) / float64(total) * 100
		}
	}
	return distribution
}

// fairnessScore 综合公平性评分
func fairnessScore(shiftsGini, nightGini, weekendGini, stdDev, avg float64) float64 {
	const (
		shiftsWeight  = 0.4
		nightWeight   = 0.25
		weekendWeight = 0.25
		stdDevWeight  = 0.1
	)

	cvScore := 100.0
	if avg > 0 {
		cvScore = math.Max(0, 100-stdDev/avg*200)
	}

	score := shiftsWeight*(1-shiftsGini)*100 +
		nightWeight*(1-nightGini)*100 +
		weekendWeight*(1-weekendGini)*100 +
		stdDevWeight*cvScore

	return math.Max(0, math.Min(100, score))
}
