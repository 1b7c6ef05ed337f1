package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/busplan/internal/repository"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/model"
	"github.com/paiban/busplan/pkg/timetable"
)

// TimeWindowInput 运营时间窗口
type TimeWindowInput struct {
	Start string `json:"start" validate:"required,len=5"`
	End   string `json:"end" validate:"required,len=5"`
}

// LineInput 线路请求，Schedule 以英文星期名为键
type LineInput struct {
	Number          string                     `json:"line_number" validate:"required,max=20"`
	RouteName       string                     `json:"route_name" validate:"max=100"`
	DistanceKm      float64                    `json:"distance_km" validate:"gte=0"`
	DurationMinutes int                        `json:"duration_minutes" validate:"gte=0"`
	CompatibleSizes []string                   `json:"compatible_sizes" validate:"dive,oneof=small medium large articulated"`
	Schedule        map[string]TimeWindowInput `json:"schedule" validate:"dive"`
	IsActive        *bool                      `json:"is_active"`
}

// BusInput 车辆请求
type BusInput struct {
	LicensePlate     string   `json:"license_plate" validate:"required,max=20"`
	Size             string   `json:"size" validate:"required,oneof=small medium large articulated"`
	Propulsion       string   `json:"propulsion" validate:"required,oneof=diesel electric"`
	MaxRangeKm       *float64 `json:"max_range_km" validate:"omitempty,gt=0"`
	UnavailableDates []string `json:"unavailable_dates" validate:"dive,datetime=2006-01-02"`
}

// DriverInput 司机请求
type DriverInput struct {
	FullName         string   `json:"full_name" validate:"required,max=100"`
	WeeklyHours      int      `json:"weekly_hours" validate:"gte=0,lte=168"`
	AvailableDays    []string `json:"available_days" validate:"dive,required"`
	PreferredShifts  []string `json:"preferred_shifts" validate:"dive,oneof=morning afternoon night"`
	AvoidShifts      []string `json:"avoid_shifts" validate:"dive,oneof=morning afternoon night"`
	UnavailableDates []string `json:"unavailable_dates" validate:"dive,datetime=2006-01-02"`
}

// DriverSaved 司机保存结果，Resolved 为因同时出现在偏好和避免中而移出偏好的班次
type DriverSaved struct {
	Driver   *model.Driver     `json:"driver"`
	Resolved []model.ShiftType `json:"resolved_shifts,omitempty"`
}

// ========================================
// 线路
// ========================================

// ListLines 全部线路；date 非零时仅返回当天运营的线路
func (s *PlanningService) ListLines(ctx context.Context, date model.Date) ([]*model.Line, error) {
	var (
		lines []*model.Line
		err   error
	)
	if date.IsZero() {
		lines, err = s.store.GetAllLines(ctx)
	} else {
		lines, err = repository.LinesOperatingOn(ctx, s.store, date)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询线路失败")
	}
	if lines == nil {
		lines = []*model.Line{}
	}
	return lines, nil
}

// GetLine 获取线路
func (s *PlanningService) GetLine(ctx context.Context, id uuid.UUID) (*model.Line, error) {
	line, err := s.store.GetLine(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询线路失败")
	}
	if line == nil {
		return nil, errors.NotFound("线路", id.String())
	}
	return line, nil
}

// SaveLine 新建或更新线路（id 为 uuid.Nil 时新建），时间表格式非法时拒绝
func (s *PlanningService) SaveLine(ctx context.Context, id uuid.UUID, in LineInput) (*model.Line, error) {
	if err := s.checkStruct(in); err != nil {
		return nil, err
	}

	line := &model.Line{
		Number:          in.Number,
		RouteName:       in.RouteName,
		DistanceKm:      in.DistanceKm,
		DurationMinutes: in.DurationMinutes,
		Schedule:        model.WeeklySchedule{},
		IsActive:        in.IsActive == nil || *in.IsActive,
	}
	line.ID = id
	for _, size := range in.CompatibleSizes {
		line.CompatibleSizes = append(line.CompatibleSizes, model.BusSize(size))
	}
	for day, w := range in.Schedule {
		wd, err := model.ParseWeekday(day)
		if err != nil {
			return nil, errors.InvalidInput("schedule", err.Error())
		}
		tw := &model.TimeWindow{Start: w.Start, End: w.End}
		if _, err := timetable.ParseWindow(tw); err != nil {
			return nil, err
		}
		line.Schedule[wd] = tw
	}

	if err := s.saveExisting(ctx, id, "线路", func() (bool, error) {
		existing, err := s.store.GetLine(ctx, id)
		if existing != nil {
			line.CreatedAt = existing.CreatedAt
		}
		return existing != nil, err
	}); err != nil {
		return nil, err
	}
	if err := s.store.SaveLine(ctx, line); err != nil {
		return nil, s.writeError(err, "保存线路失败")
	}
	s.invalidate(ctx)
	return line, nil
}

// DeleteLine 删除线路及其排班
func (s *PlanningService) DeleteLine(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteLine(ctx, id); err != nil {
		return s.writeError(err, "删除线路失败")
	}
	s.invalidate(ctx)
	return nil
}

// ========================================
// 车辆
// ========================================

// ListBuses 全部车辆；date 非零时仅返回当天可用的车辆
func (s *PlanningService) ListBuses(ctx context.Context, date model.Date) ([]*model.Bus, error) {
	var (
		buses []*model.Bus
		err   error
	)
	if date.IsZero() {
		buses, err = s.store.GetAllBuses(ctx)
	} else {
		buses, err = repository.AvailableBuses(ctx, s.store, date)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询车辆失败")
	}
	if buses == nil {
		buses = []*model.Bus{}
	}
	return buses, nil
}

// GetBus 获取车辆
func (s *PlanningService) GetBus(ctx context.Context, id uuid.UUID) (*model.Bus, error) {
	bus, err := s.store.GetBus(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询车辆失败")
	}
	if bus == nil {
		return nil, errors.NotFound("车辆", id.String())
	}
	return bus, nil
}

// SaveBus 新建或更新车辆
func (s *PlanningService) SaveBus(ctx context.Context, id uuid.UUID, in BusInput) (*model.Bus, error) {
	if err := s.checkStruct(in); err != nil {
		return nil, err
	}

	bus := &model.Bus{
		LicensePlate: in.LicensePlate,
		Size:         model.BusSize(in.Size),
		Propulsion:   model.Propulsion(in.Propulsion),
		MaxRangeKm:   in.MaxRangeKm,
	}
	bus.ID = id
	for _, d := range in.UnavailableDates {
		bus.MarkUnavailable(model.MustParseDate(d))
	}

	if err := s.saveExisting(ctx, id, "车辆", func() (bool, error) {
		existing, err := s.store.GetBus(ctx, id)
		if existing != nil {
			bus.CreatedAt = existing.CreatedAt
		}
		return existing != nil, err
	}); err != nil {
		return nil, err
	}
	if err := s.store.SaveBus(ctx, bus); err != nil {
		return nil, s.writeError(err, "保存车辆失败")
	}
	return bus, nil
}

// SetBusAvailability 标记车辆某日可用或不可用
func (s *PlanningService) SetBusAvailability(ctx context.Context, id uuid.UUID, date model.Date, available bool) (*model.Bus, error) {
	bus, err := s.GetBus(ctx, id)
	if err != nil {
		return nil, err
	}
	if available {
		bus.MarkAvailable(date)
	} else {
		bus.MarkUnavailable(date)
	}
	if err := s.store.SaveBus(ctx, bus); err != nil {
		return nil, s.writeError(err, "保存车辆失败")
	}
	return bus, nil
}

// DeleteBus 删除车辆及其排班
func (s *PlanningService) DeleteBus(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteBus(ctx, id); err != nil {
		return s.writeError(err, "删除车辆失败")
	}
	s.invalidate(ctx)
	return nil
}

// ========================================
// 司机
// ========================================

// ListDrivers 全部司机；date 非零时仅返回当天可用的司机
func (s *PlanningService) ListDrivers(ctx context.Context, date model.Date) ([]*model.Driver, error) {
	var (
		drivers []*model.Driver
		err     error
	)
	if date.IsZero() {
		drivers, err = s.store.GetAllDrivers(ctx)
	} else {
		drivers, err = repository.AvailableDrivers(ctx, s.store, date)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询司机失败")
	}
	if drivers == nil {
		drivers = []*model.Driver{}
	}
	return drivers, nil
}

// GetDriver 获取司机
func (s *PlanningService) GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error) {
	driver, err := s.store.GetDriver(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "查询司机失败")
	}
	if driver == nil {
		return nil, errors.NotFound("司机", id.String())
	}
	return driver, nil
}

// SaveDriver 新建或更新司机，矛盾的偏好按避免处理
func (s *PlanningService) SaveDriver(ctx context.Context, id uuid.UUID, in DriverInput) (*DriverSaved, error) {
	if err := s.checkStruct(in); err != nil {
		return nil, err
	}

	days := make([]time.Weekday, 0, len(in.AvailableDays))
	for _, name := range in.AvailableDays {
		wd, err := model.ParseWeekday(name)
		if err != nil {
			return nil, errors.InvalidInput("available_days", err.Error())
		}
		days = append(days, wd)
	}

	driver := &model.Driver{
		FullName:      in.FullName,
		WeeklyHours:   in.WeeklyHours,
		AvailableDays: days,
	}
	driver.ID = id
	for _, sh := range in.PreferredShifts {
		driver.PreferredShifts = append(driver.PreferredShifts, model.ShiftType(sh))
	}
	for _, sh := range in.AvoidShifts {
		driver.AvoidShifts = append(driver.AvoidShifts, model.ShiftType(sh))
	}
	for _, d := range in.UnavailableDates {
		driver.MarkUnavailable(model.MustParseDate(d))
	}
	resolved := driver.ResolveContradictions()

	if err := s.saveExisting(ctx, id, "司机", func() (bool, error) {
		existing, err := s.store.GetDriver(ctx, id)
		if existing != nil {
			driver.CreatedAt = existing.CreatedAt
		}
		return existing != nil, err
	}); err != nil {
		return nil, err
	}
	if err := s.store.SaveDriver(ctx, driver); err != nil {
		return nil, s.writeError(err, "保存司机失败")
	}
	return &DriverSaved{Driver: driver, Resolved: resolved}, nil
}

// SetDriverAvailability 标记司机某日可用或不可用
func (s *PlanningService) SetDriverAvailability(ctx context.Context, id uuid.UUID, date model.Date, available bool) (*model.Driver, error) {
	driver, err := s.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if available {
		driver.MarkAvailable(date)
	} else {
		driver.MarkUnavailable(date)
	}
	if err := s.store.SaveDriver(ctx, driver); err != nil {
		return nil, s.writeError(err, "保存司机失败")
	}
	return driver, nil
}

// DeleteDriver 删除司机及其排班
func (s *PlanningService) DeleteDriver(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteDriver(ctx, id); err != nil {
		return s.writeError(err, "删除司机失败")
	}
	s.invalidate(ctx)
	return nil
}

// ========================================
// 辅助
// ========================================

// saveExisting 更新时确认记录存在
func (s *PlanningService) saveExisting(ctx context.Context, id uuid.UUID, resource string, exists func() (bool, error)) error {
	if id == uuid.Nil {
		return nil
	}
	ok, err := exists()
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, fmt.Sprintf("查询%s失败", resource))
	}
	if !ok {
		return errors.NotFound(resource, id.String())
	}
	return nil
}

// writeError 保留存储层返回的业务错误码，其余按数据库错误处理
func (s *PlanningService) writeError(err error, message string) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Wrap(err, errors.CodeDatabaseError, message)
}
