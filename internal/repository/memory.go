// Package repository 提供数据访问层
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/model"
)

// MemoryStore 内存存储，读写由 RWMutex 保护，读取返回副本
type MemoryStore struct {
	lines       map[uuid.UUID]*model.Line
	buses       map[uuid.UUID]*model.Bus
	drivers     map[uuid.UUID]*model.Driver
	assignments map[uuid.UUID]*model.Assignment
	modified    time.Time
	mu          sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lines:       make(map[uuid.UUID]*model.Line),
		buses:       make(map[uuid.UUID]*model.Bus),
		drivers:     make(map[uuid.UUID]*model.Driver),
		assignments: make(map[uuid.UUID]*model.Assignment),
	}
}

// touch 更新修改时间，调用方需持有写锁
func (s *MemoryStore) touch() {
	s.modified = time.Now()
}

// stamp 补全ID和时间戳
func stamp(base *model.BaseModel) {
	now := time.Now()
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

// ========================================
// 线路
// ========================================

// GetAllLines 获取全部线路（按线路号排序）
func (s *MemoryStore) GetAllLines(ctx context.Context) ([]*model.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Line, 0, len(s.lines))
	for _, l := range s.lines {
		result = append(result, cloneLine(l))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// GetLine 根据ID获取线路
func (s *MemoryStore) GetLine(ctx context.Context, id uuid.UUID) (*model.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.lines[id]; ok {
		return cloneLine(l), nil
	}
	return nil, nil
}

// GetLineByNumber 根据线路号获取线路
func (s *MemoryStore) GetLineByNumber(ctx context.Context, number string) (*model.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lines {
		if l.Number == number {
			return cloneLine(l), nil
		}
	}
	return nil, nil
}

// SaveLine 新建或更新线路
func (s *MemoryStore) SaveLine(ctx context.Context, line *model.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.lines {
		if l.Number == line.Number && id != line.ID {
			return errors.New(errors.CodeInvalidInput, fmt.Sprintf("线路号 '%s' 已存在", line.Number))
		}
	}

	stamp(&line.BaseModel)
	s.lines[line.ID] = cloneLine(line)
	s.touch()
	return nil
}

// DeleteLine 删除线路及其排班
func (s *MemoryStore) DeleteLine(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[id]; !ok {
		return errors.NotFound("线路", id.String())
	}
	delete(s.lines, id)
	s.deleteAssignmentsWhere(func(a *model.Assignment) bool { return a.LineID == id })
	s.touch()
	return nil
}

// ========================================
// 车辆
// ========================================

// GetAllBuses 获取全部车辆（按车牌排序）
func (s *MemoryStore) GetAllBuses(ctx context.Context) ([]*model.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Bus, 0, len(s.buses))
	for _, b := range s.buses {
		result = append(result, cloneBus(b))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LicensePlate < result[j].LicensePlate })
	return result, nil
}

// GetBus 根据ID获取车辆
func (s *MemoryStore) GetBus(ctx context.Context, id uuid.UUID) (*model.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.buses[id]; ok {
		return cloneBus(b), nil
	}
	return nil, nil
}

// GetBusByLicensePlate 根据车牌获取车辆
func (s *MemoryStore) GetBusByLicensePlate(ctx context.Context, plate string) (*model.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.buses {
		if b.LicensePlate == plate {
			return cloneBus(b), nil
		}
	}
	return nil, nil
}

// SaveBus 新建或更新车辆
func (s *MemoryStore) SaveBus(ctx context.Context, bus *model.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, b := range s.buses {
		if b.LicensePlate == bus.LicensePlate && id != bus.ID {
			return errors.New(errors.CodeInvalidInput, fmt.Sprintf("车牌 '%s' 已存在", bus.LicensePlate))
		}
	}

	stamp(&bus.BaseModel)
	s.buses[bus.ID] = cloneBus(bus)
	s.touch()
	return nil
}

// DeleteBus 删除车辆及其排班
func (s *MemoryStore) DeleteBus(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buses[id]; !ok {
		return errors.NotFound("车辆", id.String())
	}
	delete(s.buses, id)
	s.deleteAssignmentsWhere(func(a *model.Assignment) bool { return a.BusID == id })
	s.touch()
	return nil
}

// ========================================
// 司机
// ========================================

// GetAllDrivers 获取全部司机（按姓名排序）
func (s *MemoryStore) GetAllDrivers(ctx context.Context) ([]*model.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		result = append(result, cloneDriver(d))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FullName < result[j].FullName })
	return result, nil
}

// GetDriver 根据ID获取司机
func (s *MemoryStore) GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.drivers[id]; ok {
		return cloneDriver(d), nil
	}
	return nil, nil
}

// SaveDriver 新建或更新司机，保存前解决矛盾偏好
func (s *MemoryStore) SaveDriver(ctx context.Context, driver *model.Driver) error {
	driver.ResolveContradictions()

	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(&driver.BaseModel)
	s.drivers[driver.ID] = cloneDriver(driver)
	s.touch()
	return nil
}

// DeleteDriver 删除司机及其排班
func (s *MemoryStore) DeleteDriver(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drivers[id]; !ok {
		return errors.NotFound("司机", id.String())
	}
	delete(s.drivers, id)
	s.deleteAssignmentsWhere(func(a *model.Assignment) bool { return a.DriverID == id })
	s.touch()
	return nil
}

// ========================================
// 排班分配
// ========================================

// filterAssignments 按条件筛选排班副本并排序
func (s *MemoryStore) filterAssignments(match func(a *model.Assignment) bool) []*model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Assignment, 0)
	for _, a := range s.assignments {
		if match(a) {
			cp := *a
			result = append(result, &cp)
		}
	}
	sortAssignments(result)
	return result
}

// GetAllAssignments 获取全部排班
func (s *MemoryStore) GetAllAssignments(ctx context.Context) ([]*model.Assignment, error) {
	return s.filterAssignments(func(*model.Assignment) bool { return true }), nil
}

// GetAssignment 根据ID获取排班
func (s *MemoryStore) GetAssignment(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.assignments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

// GetAssignmentsByDate 获取某日排班
func (s *MemoryStore) GetAssignmentsByDate(ctx context.Context, date model.Date) ([]*model.Assignment, error) {
	return s.filterAssignments(func(a *model.Assignment) bool { return a.Date == date }), nil
}

// GetAssignmentsByShift 获取某日某班次排班
func (s *MemoryStore) GetAssignmentsByShift(ctx context.Context, date model.Date, shift model.ShiftType) ([]*model.Assignment, error) {
	return s.filterAssignments(func(a *model.Assignment) bool {
		return a.Date == date && a.Shift == shift
	}), nil
}

// GetAssignmentsByDateRange 获取日期范围内（含两端）的排班
func (s *MemoryStore) GetAssignmentsByDateRange(ctx context.Context, from, to model.Date) ([]*model.Assignment, error) {
	return s.filterAssignments(func(a *model.Assignment) bool {
		return !a.Date.Before(from) && !a.Date.After(to)
	}), nil
}

// GetConflicts 同日同班次占用该车辆或司机的排班
func (s *MemoryStore) GetConflicts(ctx context.Context, date model.Date, shift model.ShiftType, busID, driverID uuid.UUID) ([]*model.Assignment, error) {
	return s.filterAssignments(func(a *model.Assignment) bool {
		return a.Date == date && a.Shift == shift && a.UsesBusOrDriver(busID, driverID)
	}), nil
}

// CreateAssignment 检查并写入排班
func (s *MemoryStore) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.assignments {
		if existing.Date != a.Date || existing.Shift != a.Shift {
			continue
		}
		if existing.LineID == a.LineID {
			return errors.AssignmentBlocked(fmt.Sprintf("线路在 %s %s 班次已有排班", a.Date, a.Shift))
		}
		if existing.UsesBusOrDriver(a.BusID, a.DriverID) {
			return errors.AssignmentBlocked(fmt.Sprintf("车辆或司机在 %s %s 班次已被分配", a.Date, a.Shift))
		}
	}

	stamp(&a.BaseModel)
	cp := *a
	s.assignments[a.ID] = &cp
	s.touch()
	return nil
}

// DeleteAssignment 删除排班
func (s *MemoryStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[id]; !ok {
		return errors.NotFound("排班", id.String())
	}
	delete(s.assignments, id)
	s.touch()
	return nil
}

// deleteAssignmentsWhere 级联删除，调用方需持有写锁
func (s *MemoryStore) deleteAssignmentsWhere(match func(a *model.Assignment) bool) {
	for id, a := range s.assignments {
		if match(a) {
			delete(s.assignments, id)
		}
	}
}

// Stats 数据统计
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		Lines:        len(s.lines),
		Buses:        len(s.buses),
		Drivers:      len(s.drivers),
		Assignments:  len(s.assignments),
		LastModified: s.modified,
	}
	for _, l := range s.lines {
		if l.IsActive {
			stats.ActiveLines++
		}
	}
	for _, b := range s.buses {
		if b.IsElectric() {
			stats.ElectricBuses++
		}
	}
	return stats, nil
}

// ========================================
// 副本
// ========================================

func cloneLine(l *model.Line) *model.Line {
	cp := *l
	cp.CompatibleSizes = append([]model.BusSize(nil), l.CompatibleSizes...)
	cp.Schedule = make(model.WeeklySchedule, len(l.Schedule))
	for wd, w := range l.Schedule {
		if w == nil {
			continue
		}
		window := *w
		cp.Schedule[wd] = &window
	}
	return &cp
}

func cloneBus(b *model.Bus) *model.Bus {
	cp := *b
	if b.MaxRangeKm != nil {
		r := *b.MaxRangeKm
		cp.MaxRangeKm = &r
	}
	cp.UnavailableDates = append([]model.Date(nil), b.UnavailableDates...)
	return &cp
}

func cloneDriver(d *model.Driver) *model.Driver {
	cp := *d
	cp.AvailableDays = append([]time.Weekday(nil), d.AvailableDays...)
	cp.PreferredShifts = append([]model.ShiftType(nil), d.PreferredShifts...)
	cp.AvoidShifts = append([]model.ShiftType(nil), d.AvoidShifts...)
	cp.UnavailableDates = append([]model.Date(nil), d.UnavailableDates...)
	return &cp
}
