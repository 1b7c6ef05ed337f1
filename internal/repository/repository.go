// Package repository 提供数据访问层
package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/busplan/pkg/model"
)

// LineStore 线路存取
type LineStore interface {
	GetAllLines(ctx context.Context) ([]*model.Line, error)
	GetLine(ctx context.Context, id uuid.UUID) (*model.Line, error)
	GetLineByNumber(ctx context.Context, number string) (*model.Line, error)
	SaveLine(ctx context.Context, line *model.Line) error
	DeleteLine(ctx context.Context, id uuid.UUID) error
}

// BusStore 车辆存取
type BusStore interface {
	GetAllBuses(ctx context.Context) ([]*model.Bus, error)
	GetBus(ctx context.Context, id uuid.UUID) (*model.Bus, error)
	GetBusByLicensePlate(ctx context.Context, plate string) (*model.Bus, error)
	SaveBus(ctx context.Context, bus *model.Bus) error
	DeleteBus(ctx context.Context, id uuid.UUID) error
}

// DriverStore 司机存取
type DriverStore interface {
	GetAllDrivers(ctx context.Context) ([]*model.Driver, error)
	GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error)
	SaveDriver(ctx context.Context, driver *model.Driver) error
	DeleteDriver(ctx context.Context, id uuid.UUID) error
}

// AssignmentStore 排班分配存取
type AssignmentStore interface {
	GetAllAssignments(ctx context.Context) ([]*model.Assignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*model.Assignment, error)
	GetAssignmentsByDate(ctx context.Context, date model.Date) ([]*model.Assignment, error)
	GetAssignmentsByShift(ctx context.Context, date model.Date, shift model.ShiftType) ([]*model.Assignment, error)
	GetAssignmentsByDateRange(ctx context.Context, from, to model.Date) ([]*model.Assignment, error)
	// GetConflicts 同日同班次中占用该车辆或司机的排班，uuid.Nil 表示不按该项过滤
	GetConflicts(ctx context.Context, date model.Date, shift model.ShiftType, busID, driverID uuid.UUID) ([]*model.Assignment, error)
	// CreateAssignment 原子地检查并写入：同班次车辆/司机已被占用或线路班次已有排班时返回 ASSIGNMENT_BLOCKED
	CreateAssignment(ctx context.Context, a *model.Assignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
}

// Store 线路排班数据存取接口
// 查询不到时 Get 方法返回 nil, nil；删除线路/车辆/司机会级联删除相关排班
type Store interface {
	LineStore
	BusStore
	DriverStore
	AssignmentStore
	Stats(ctx context.Context) (*Stats, error)
}

// Stats 数据统计
type Stats struct {
	Lines         int       `json:"lines"`
	ActiveLines   int       `json:"active_lines"`
	Buses         int       `json:"buses"`
	ElectricBuses int       `json:"electric_buses"`
	Drivers       int       `json:"drivers"`
	Assignments   int       `json:"assignments"`
	LastModified  time.Time `json:"last_modified"`
}

// LinesOperatingOn 返回该日期运营的线路
func LinesOperatingOn(ctx context.Context, s LineStore, date model.Date) ([]*model.Line, error) {
	lines, err := s.GetAllLines(ctx)
	if err != nil {
		return nil, err
	}
	var result []*model.Line
	for _, l := range lines {
		if l.OperatesOn(date) {
			result = append(result, l)
		}
	}
	return result, nil
}

// AvailableBuses 返回该日期可用的车辆
func AvailableBuses(ctx context.Context, s BusStore, date model.Date) ([]*model.Bus, error) {
	buses, err := s.GetAllBuses(ctx)
	if err != nil {
		return nil, err
	}
	var result []*model.Bus
	for _, b := range buses {
		if b.IsAvailableOn(date) {
			result = append(result, b)
		}
	}
	return result, nil
}

// AvailableDrivers 返回该日期可用的司机
func AvailableDrivers(ctx context.Context, s DriverStore, date model.Date) ([]*model.Driver, error) {
	drivers, err := s.GetAllDrivers(ctx)
	if err != nil {
		return nil, err
	}
	var result []*model.Driver
	for _, d := range drivers {
		if d.IsAvailableOn(date) {
			result = append(result, d)
		}
	}
	return result, nil
}

var shiftOrder = map[model.ShiftType]int{
	model.ShiftMorning:   0,
	model.ShiftAfternoon: 1,
	model.ShiftNight:     2,
}

// sortAssignments 按日期、班次、创建时间排序
func sortAssignments(list []*model.Assignment) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Shift != b.Shift {
			return shiftOrder[a.Shift] < shiftOrder[b.Shift]
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
