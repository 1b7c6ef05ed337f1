// Package scorer 提供候选车辆和司机的匹配评分
package scorer

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/paiban/busplan/pkg/logger"
	"github.com/paiban/busplan/pkg/model"
	"github.com/paiban/busplan/pkg/timetable"
)

const (
	// driverCriterionPoints 司机每项评分满分
	driverCriterionPoints = 25
	// neutralShiftPoints 对班次无偏好
	neutralShiftPoints = 15
	// continuityPoints 当天已有其他班次
	continuityPoints = 15

	busBaseScore = 50

	// nearPerfectFloor 仅差一项完美时的保底分
	nearPerfectFloor = 95
	// jitterSpan 随机扰动取值 0..jitterSpan-1
	jitterSpan = 3

	// 硬上限
	capBlackedOut   = 10
	capOffWeekday   = 15
	capAvoidedShift = 20

	// longRouteKm 累计里程超过该值时同分优先柴油车
	longRouteKm = 200
)

// Jitter 随机源（*rand.Rand 满足该接口）
type Jitter interface {
	Intn(n int) int
}

// Context 评分上下文：目标日期、线路及当天已有排班
type Context struct {
	Date        model.Date
	Line        *model.Line
	Assignments []*model.Assignment
}

// Option 评分器选项
type Option func(*Scorer)

// WithJitter 设置随机扰动源，nil 表示不扰动
func WithJitter(j Jitter) Option {
	return func(s *Scorer) {
		s.jitter = j
	}
}

// WithSeed 使用固定种子的随机扰动
func WithSeed(seed int64) Option {
	return WithJitter(rand.New(rand.NewSource(seed)))
}

// WithRangeBuffer 设置续航安全余量（百分比）
func WithRangeBuffer(percent float64) Option {
	return func(s *Scorer) {
		s.rangeBuffer = percent
	}
}

// WithLogger 设置日志器
func WithLogger(l *logger.PlannerLogger) Option {
	return func(s *Scorer) {
		s.log = l
	}
}

// Scorer 候选评分器，可并发使用
type Scorer struct {
	jitter      Jitter
	mu          sync.Mutex
	rangeBuffer float64
	log         *logger.PlannerLogger
}

// NewScorer 创建评分器，默认不加随机扰动
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{rangeBuffer: model.DefaultRangeBuffer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tally 评分项累计
type tally struct {
	score   float64
	perfect int
	total   int
}

func (t *tally) add(perfect bool, points float64) {
	t.total++
	if perfect {
		t.perfect++
	}
	t.score += points
}

func (t *tally) allPerfect() bool {
	return t.perfect == t.total
}

// jitterPoints 非完美匹配的随机扰动
func (s *Scorer) jitterPoints() float64 {
	if s.jitter == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.jitter.Intn(jitterSpan))
}

// ScoreDriver 司机匹配度 0-100
func (s *Scorer) ScoreDriver(driver *model.Driver, shift model.ShiftType, c Context) int {
	var t tally

	// 1. 停用日期
	blackedOut := driver.IsBlackedOut(c.Date)
	if blackedOut {
		t.add(false, 0)
	} else {
		t.add(true, driverCriterionPoints)
	}

	// 2. 每周工作日
	worksDay := driver.WorksOnWeekday(c.Date.Weekday())
	if worksDay {
		t.add(true, driverCriterionPoints)
	} else {
		t.add(false, 0)
	}

	// 3. 班次偏好
	avoids := driver.AvoidsShift(shift)
	switch {
	case driver.PrefersShift(shift):
		t.add(true, driverCriterionPoints)
	case avoids:
		t.add(false, 0)
	default:
		t.add(false, neutralShiftPoints)
	}

	// 4. 当天其他班次
	if hasOtherShift(c, shift, func(a *model.Assignment) bool { return a.DriverID == driver.ID }) {
		t.add(false, continuityPoints)
	} else {
		t.add(true, driverCriterionPoints)
	}

	score := t.score
	switch {
	case t.allPerfect():
		score = 100
	case t.perfect == t.total-1:
		score = math.Max(score, nearPerfectFloor)
	}
	if !t.allPerfect() {
		score += s.jitterPoints()
	}

	if blackedOut {
		score = math.Min(score, capBlackedOut)
	}
	if !worksDay {
		score = math.Min(score, capOffWeekday)
	}
	if avoids {
		score = math.Min(score, capAvoidedShift)
	}

	return clamp(score)
}

// ScoreBus 车辆匹配度 0-100
func (s *Scorer) ScoreBus(bus *model.Bus, shift model.ShiftType, c Context) int {
	if c.Line == nil {
		return 0
	}
	distance := 0.0
	if bus.IsElectric() {
		distance = s.dailyDistance(c)
	}
	return s.scoreBus(bus, shift, c, distance)
}

// scoreBus 按已算出的线路当天里程评分
func (s *Scorer) scoreBus(bus *model.Bus, shift model.ShiftType, c Context, distance float64) int {
	if c.Line == nil {
		return 0
	}

	t := tally{score: busBaseScore}

	// 1. 停用日期
	if bus.IsAvailableOn(c.Date) {
		t.add(true, 0)
	} else {
		t.add(false, -90)
	}

	// 2. 当天其他班次
	if hasOtherShift(c, shift, func(a *model.Assignment) bool { return a.BusID == bus.ID }) {
		t.add(false, -30)
	} else {
		t.add(true, 10)
	}

	// 3. 尺寸兼容，线路兼容尺寸越少加分越多
	if c.Line.AcceptsSize(bus.Size) {
		bonus := 0.0
		if n := len(c.Line.CompatibleSizes); n > 1 {
			bonus = math.Round(5 / float64(n))
		}
		t.add(true, 20+bonus)
	} else {
		t.add(false, -50)
	}

	// 4. 电动车续航
	if bus.IsElectric() {
		if distance <= 0 {
			t.add(true, 0)
		} else {
			safety := bus.CheckRangeSafety(distance, s.rangeBuffer)
			switch {
			case safety.IsSafe:
				t.add(true, math.Min(25, float64(safety.BufferPercent)/4))
			case safety.BufferPercent > 10:
				t.add(false, -20)
			case safety.BufferPercent > 0:
				t.add(false, -40)
			default:
				t.add(false, -70)
			}
		}
	}

	score := t.score
	if t.allPerfect() {
		score = 100
	} else {
		score += s.jitterPoints()
	}

	return clamp(score)
}

// dailyDistance 线路当天累计里程，时间表无效时按0处理
func (s *Scorer) dailyDistance(c Context) float64 {
	if c.Line == nil {
		return 0
	}
	distance, err := timetable.AccumulatedDailyDistance(c.Line, c.Date)
	if err != nil {
		if s.log != nil {
			s.log.ScoringSkipped(c.Line.Number, err.Error())
		}
		return 0
	}
	return distance
}

// hasOtherShift 资源当天是否已在其他班次被分配
func hasOtherShift(c Context, shift model.ShiftType, uses func(a *model.Assignment) bool) bool {
	for _, a := range c.Assignments {
		if a.Date == c.Date && a.Shift != shift && uses(a) {
			return true
		}
	}
	return false
}

func clamp(score float64) int {
	return int(math.Max(0, math.Min(100, math.Round(score))))
}

// ========================================
// 排序
// ========================================

// Tier 匹配等级
type Tier string

const (
	TierExcellent Tier = "excellent" // >= 70
	TierGood      Tier = "good"      // >= 40
	TierFair      Tier = "fair"      // >= 20
	TierPoor      Tier = "poor"
)

// TierOf 根据分数返回等级
func TierOf(score int) Tier {
	switch {
	case score >= 70:
		return TierExcellent
	case score >= 40:
		return TierGood
	case score >= 20:
		return TierFair
	default:
		return TierPoor
	}
}

// DriverCandidate 司机候选
type DriverCandidate struct {
	Driver *model.Driver `json:"driver"`
	Score  int           `json:"score"`
	Tier   Tier          `json:"tier"`
}

// BusCandidate 车辆候选
type BusCandidate struct {
	Bus   *model.Bus `json:"bus"`
	Score int        `json:"score"`
	Tier  Tier       `json:"tier"`
}

// RankDrivers 按分数降序排列司机，同分按合同工时降序、姓名升序
func (s *Scorer) RankDrivers(drivers []*model.Driver, shift model.ShiftType, c Context) []DriverCandidate {
	result := make([]DriverCandidate, 0, len(drivers))
	for _, d := range drivers {
		score := s.ScoreDriver(d, shift, c)
		result = append(result, DriverCandidate{Driver: d, Score: score, Tier: TierOf(score)})
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Driver.WeeklyHours != b.Driver.WeeklyHours {
			return a.Driver.WeeklyHours > b.Driver.WeeklyHours
		}
		return a.Driver.FullName < b.Driver.FullName
	})
	return result
}

// RankBuses 按分数降序排列车辆，同分时长线路优先柴油车、短线路优先电动车，再按车牌升序
func (s *Scorer) RankBuses(buses []*model.Bus, shift model.ShiftType, c Context) []BusCandidate {
	// 里程每次排序只计算一次
	distance := s.dailyDistance(c)

	result := make([]BusCandidate, 0, len(buses))
	for _, b := range buses {
		score := s.scoreBus(b, shift, c, distance)
		result = append(result, BusCandidate{Bus: b, Score: score, Tier: TierOf(score)})
	}

	preferred := model.PropulsionElectric
	if distance > longRouteKm {
		preferred = model.PropulsionDiesel
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Bus.Propulsion != b.Bus.Propulsion {
			return a.Bus.Propulsion == preferred
		}
		return a.Bus.LicensePlate < b.Bus.LicensePlate
	})
	return result
}
