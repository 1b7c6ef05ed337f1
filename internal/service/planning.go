// Package service 提供线路排班业务逻辑
package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/paiban/busplan/internal/cache"
	"github.com/paiban/busplan/internal/metrics"
	"github.com/paiban/busplan/internal/repository"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/logger"
	"github.com/paiban/busplan/pkg/model"
	"github.com/paiban/busplan/pkg/scorer"
	"github.com/paiban/busplan/pkg/stats"
	"github.com/paiban/busplan/pkg/timetable"
	conflict "github.com/paiban/busplan/pkg/validator"
)

// Options 业务层配置
type Options struct {
	Detector   *conflict.DetectorConfig
	Scorer     []scorer.Option
	Planning   []stats.PlanningOption
	ShiftHours float64
	Cache      *cache.PlanningCache
	Metrics    *metrics.Registry
	Logger     *logger.PlannerLogger
	Validate   *validator.Validate
}

// PlanningService 排班业务服务
type PlanningService struct {
	store      repository.Store
	detector   *conflict.ConflictDetector
	scorer     *scorer.Scorer
	aggregator *stats.PlanningAggregator
	workload   *stats.WorkloadAnalyzer
	cache      *cache.PlanningCache
	metrics    *metrics.Registry
	log        *logger.PlannerLogger
	validate   *validator.Validate
	slots      *slotLocks
}

// NewPlanningService 创建排班业务服务
func NewPlanningService(store repository.Store, opts Options) *PlanningService {
	if opts.Logger == nil {
		opts.Logger = logger.NewPlannerLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.GetRegistry()
	}
	if opts.Validate == nil {
		opts.Validate = validator.New()
	}

	shiftHours := opts.ShiftHours
	if opts.Detector != nil && opts.Detector.ShiftHours > 0 {
		shiftHours = opts.Detector.ShiftHours
	}

	scorerOpts := append([]scorer.Option{scorer.WithLogger(opts.Logger)}, opts.Scorer...)
	planningOpts := append([]stats.PlanningOption{stats.WithPlannerLogger(opts.Logger)}, opts.Planning...)

	return &PlanningService{
		store:      store,
		detector:   conflict.NewConflictDetector(store, opts.Detector),
		scorer:     scorer.NewScorer(scorerOpts...),
		aggregator: stats.NewPlanningAggregator(planningOpts...),
		workload:   stats.NewWorkloadAnalyzer(shiftHours),
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		validate:   opts.Validate,
		slots:      newSlotLocks(),
	}
}

// ========================================
// 排班校验与写入
// ========================================

// AssignmentInput 排班请求
type AssignmentInput struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Shift     string `json:"shift" validate:"required,oneof=morning afternoon night"`
	LineID    string `json:"line_id" validate:"required,uuid"`
	BusID     string `json:"bus_id" validate:"required,uuid"`
	DriverID  string `json:"driver_id" validate:"required,uuid"`
	ExcludeID string `json:"exclude_id,omitempty" validate:"omitempty,uuid"`
}

// AssignmentResult 排班写入结果
type AssignmentResult struct {
	Assignment *model.Assignment    `json:"assignment,omitempty"`
	Validation *conflict.Validation `json:"validation"`
}

func (s *PlanningService) parseAssignment(in AssignmentInput) (conflict.AssignmentRequest, error) {
	if err := s.checkStruct(in); err != nil {
		return conflict.AssignmentRequest{}, err
	}

	req := conflict.AssignmentRequest{
		Date:     model.MustParseDate(in.Date),
		Shift:    model.ShiftType(in.Shift),
		LineID:   uuid.MustParse(in.LineID),
		BusID:    uuid.MustParse(in.BusID),
		DriverID: uuid.MustParse(in.DriverID),
	}
	if in.ExcludeID != "" {
		req.ExcludeID = uuid.MustParse(in.ExcludeID)
	}
	return req, nil
}

// Validate 校验排班，不写入
func (s *PlanningService) Validate(ctx context.Context, in AssignmentInput) (*conflict.Validation, error) {
	req, err := s.parseAssignment(in)
	if err != nil {
		return nil, err
	}
	return s.validateRequest(ctx, req)
}

func (s *PlanningService) validateRequest(ctx context.Context, req conflict.AssignmentRequest) (*conflict.Validation, error) {
	v, err := s.detector.ValidateAssignment(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "排班校验失败")
	}
	s.log.ValidationResult(req.Date.String(), string(req.Shift), v.IsValid, len(v.Warnings))
	s.metrics.ObserveValidation(v.IsValid)
	return v, nil
}

// CreateAssignment 校验并保存排班；存在 error 级别警告时拒绝，软警告随结果返回
func (s *PlanningService) CreateAssignment(ctx context.Context, in AssignmentInput) (*AssignmentResult, error) {
	req, err := s.parseAssignment(in)
	if err != nil {
		return nil, err
	}

	unlock := s.slots.lock(req.Date.String() + "|" + string(req.Shift))
	defer unlock()

	v, err := s.validateRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	result := &AssignmentResult{Validation: v}
	if !v.IsValid {
		s.metrics.ObserveAssignment("create", "blocked")
		return result, errors.AssignmentBlocked("排班校验未通过").WithField("warnings", v.Warnings)
	}

	a := model.NewAssignment(req.Date, req.Shift, req.LineID, req.BusID, req.DriverID)
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, errors.CodeAssignmentBlocked) {
			s.metrics.ObserveAssignment("create", "blocked")
			return result, err
		}
		s.metrics.ObserveAssignment("create", "error")
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "保存排班失败")
	}

	result.Assignment = a
	s.metrics.ObserveAssignment("create", "created")
	s.log.AssignmentCreated(a.ID.String(), a.Date.String(), string(a.Shift), len(v.Warnings))
	s.invalidate(ctx)
	return result, nil
}

// DeleteAssignment 删除排班
func (s *PlanningService) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteAssignment(ctx, id); err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return err
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "删除排班失败")
	}
	s.metrics.ObserveAssignment("delete", "deleted")
	s.log.AssignmentDeleted(id.String())
	s.invalidate(ctx)
	return nil
}

// ListAssignments 某日的排班，可按班次过滤
func (s *PlanningService) ListAssignments(ctx context.Context, date model.Date, shift model.ShiftType) ([]*model.Assignment, error) {
	var (
		list []*model.Assignment
		err  error
	)
	if shift == "" {
		list, err = s.store.GetAssignmentsByDate(ctx, date)
	} else {
		list, err = s.store.GetAssignmentsByShift(ctx, date, shift)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询排班失败")
	}
	if list == nil {
		list = []*model.Assignment{}
	}
	return list, nil
}

func (s *PlanningService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.CacheFailure("invalidate", err)
	}
}

// ========================================
// 候选推荐
// ========================================

// CandidateQuery 候选查询
type CandidateQuery struct {
	LineID        uuid.UUID
	Date          model.Date
	Shift         model.ShiftType
	AvailableOnly bool // 仅返回当天可用的车辆和司机
}

// CandidateList 某线路某班次的候选车辆和司机
type CandidateList struct {
	LineID        uuid.UUID                `json:"line_id"`
	LineNumber    string                   `json:"line_number"`
	Date          model.Date               `json:"date"`
	Shift         model.ShiftType          `json:"shift"`
	Required      bool                     `json:"required"` // 线路当天是否需要该班次
	AccumulatedKm float64                  `json:"accumulated_km"`
	Buses         []scorer.BusCandidate    `json:"buses"`
	Drivers       []scorer.DriverCandidate `json:"drivers"`
}

// Candidates 为线路某日某班次对车辆和司机评分排序
func (s *PlanningService) Candidates(ctx context.Context, q CandidateQuery) (*CandidateList, error) {
	if !q.Shift.IsValid() {
		return nil, errors.InvalidShift(string(q.Shift))
	}

	line, err := s.store.GetLine(ctx, q.LineID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询线路失败")
	}
	if line == nil {
		return nil, errors.NotFound("线路", q.LineID.String())
	}

	assignments, err := s.store.GetAssignmentsByDate(ctx, q.Date)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询排班失败")
	}

	var (
		buses   []*model.Bus
		drivers []*model.Driver
	)
	if q.AvailableOnly {
		buses, err = repository.AvailableBuses(ctx, s.store, q.Date)
		if err == nil {
			drivers, err = repository.AvailableDrivers(ctx, s.store, q.Date)
		}
	} else {
		buses, err = s.store.GetAllBuses(ctx)
		if err == nil {
			drivers, err = s.store.GetAllDrivers(ctx)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询车辆或司机失败")
	}

	required, err := timetable.IsShiftRequired(line, q.Date, q.Shift)
	if err != nil {
		s.log.ScoringSkipped(line.Number, err.Error())
	}
	distance, err := timetable.AccumulatedDailyDistance(line, q.Date)
	if err != nil {
		distance = 0
	}

	sc := scorer.Context{Date: q.Date, Line: line, Assignments: assignments}
	list := &CandidateList{
		LineID:        line.ID,
		LineNumber:    line.Number,
		Date:          q.Date,
		Shift:         q.Shift,
		Required:      required,
		AccumulatedKm: distance,
		Buses:         s.scorer.RankBuses(buses, q.Shift, sc),
		Drivers:       s.scorer.RankDrivers(drivers, q.Shift, sc),
	}
	s.metrics.ObserveScoring("bus", len(list.Buses))
	s.metrics.ObserveScoring("driver", len(list.Drivers))
	return list, nil
}

// ========================================
// 线路日视图与规划进度
// ========================================

// LineDay 线路某日的班次需求与已有排班
type LineDay struct {
	Line           *model.Line         `json:"line"`
	Date           model.Date          `json:"date"`
	Operating      bool                `json:"operating"`
	Window         *model.TimeWindow   `json:"window,omitempty"`
	RequiredShifts []model.ShiftType   `json:"required_shifts"`
	AccumulatedKm  float64             `json:"accumulated_km"`
	Assignments    []*model.Assignment `json:"assignments"`
}

// LineDay 返回线路某日需要的班次、累计里程和已有排班
func (s *PlanningService) LineDay(ctx context.Context, lineID uuid.UUID, date model.Date) (*LineDay, error) {
	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询线路失败")
	}
	if line == nil {
		return nil, errors.NotFound("线路", lineID.String())
	}

	shifts, err := timetable.RequiredShifts(line, date)
	if err != nil {
		return nil, err
	}
	distance, err := timetable.AccumulatedDailyDistance(line, date)
	if err != nil {
		return nil, err
	}

	all, err := s.store.GetAssignmentsByDate(ctx, date)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询排班失败")
	}
	assignments := make([]*model.Assignment, 0, len(all))
	for _, a := range all {
		if a.LineID == lineID {
			assignments = append(assignments, a)
		}
	}

	day := &LineDay{
		Line:           line,
		Date:           date,
		Operating:      line.OperatesOn(date),
		RequiredShifts: shifts,
		AccumulatedKm:  distance,
		Assignments:    assignments,
	}
	if day.RequiredShifts == nil {
		day.RequiredShifts = []model.ShiftType{}
	}
	if w, ok := line.WindowOn(date); ok {
		day.Window = w
	}
	return day, nil
}

// PlanningStatus 规划窗口与每日进度
type PlanningStatus struct {
	Window  stats.PlanningWindow        `json:"window"`
	Summary stats.PlanningSummary       `json:"summary"`
	Days    []stats.DailyPlanningStatus `json:"days"`
	Cached  bool                        `json:"cached"`
}

// PlanningStatus 计算当前规划窗口的进度，优先读取缓存
func (s *PlanningService) PlanningStatus(ctx context.Context) (*PlanningStatus, error) {
	w := s.aggregator.Window()

	// 代数在读取数据之前取得，期间的失效会让本次结果不被写回
	var (
		gen      int64
		writable bool
	)
	if s.cache.Enabled() {
		days, g, err := s.cache.Get(ctx, w.From, w.To)
		switch {
		case err == nil:
			s.metrics.ObserveCacheLookup(true)
			return &PlanningStatus{Window: w, Summary: stats.Summarize(days), Days: days, Cached: true}, nil
		case err == cache.ErrMiss:
			s.metrics.ObserveCacheLookup(false)
			gen, writable = g, true
		default:
			s.metrics.ObserveCacheLookup(false)
			s.log.CacheFailure("get", err)
		}
	}

	started := time.Now()
	lines, err := s.store.GetAllLines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询线路失败")
	}
	assignments, err := s.store.GetAssignmentsByDateRange(ctx, w.From, w.To)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询排班失败")
	}

	days, err := s.aggregator.BuildRange(lines, assignments, w.From, w.To)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePlanningBuild(time.Since(started))

	if writable {
		if err := s.cache.Set(ctx, gen, w.From, w.To, days); err != nil {
			s.log.CacheFailure("set", err)
		}
	}
	return &PlanningStatus{Window: w, Summary: stats.Summarize(days), Days: days}, nil
}

// Overview 数据统计与司机工作量
type Overview struct {
	Store    *repository.Stats      `json:"store"`
	Workload *stats.WorkloadMetrics `json:"workload"`
}

// Stats 返回数据统计，以及 [from, to] 内的司机工作量公平性
func (s *PlanningService) Stats(ctx context.Context, from, to model.Date) (*Overview, error) {
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询统计失败")
	}
	drivers, err := s.store.GetAllDrivers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询司机失败")
	}
	assignments, err := s.store.GetAssignmentsByDateRange(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询排班失败")
	}
	return &Overview{Store: counts, Workload: s.workload.Analyze(assignments, drivers)}, nil
}

// Ping 检查数据存储是否可用
func (s *PlanningService) Ping(ctx context.Context) error {
	if _, err := s.store.Stats(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "数据存储不可用")
	}
	return nil
}

// ========================================
// 辅助
// ========================================

// checkStruct 请求结构校验，字段错误汇总为 VALIDATION_FAILED
func (s *PlanningService) checkStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, errors.CodeInvalidInput, "请求格式错误")
	}
	ve := &errors.ValidationErrors{}
	for _, fe := range fieldErrs {
		ve.Add(fe.Field(), fe.Tag())
	}
	return ve.ToAppError()
}

// slotLocks 按 日期|班次 串行化校验与写入
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*slotLock)}
}

func (l *slotLocks) lock(key string) func() {
	l.mu.Lock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &slotLock{}
		l.locks[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
