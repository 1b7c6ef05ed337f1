// Package validator 提供排班冲突检测功能
package validator

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/paiban/busplan/pkg/model"
)

// WarningType 警告类型
type WarningType string

const (
	WarningDoubleBooking       WarningType = "double_booking"        // 同班次重复占用
	WarningUnavailableResource WarningType = "unavailable_resource"  // 资源不可用或不存在
	WarningBusSizeMismatch     WarningType = "bus_size_mismatch"     // 车辆尺寸不兼容
	WarningInsufficientRange   WarningType = "insufficient_range"    // 续航不足
	WarningPreference          WarningType = "preference_violation"  // 违反司机偏好
	WarningWeeklyHours         WarningType = "weekly_hours_exceeded" // 超出合同周工时
)

// Severity 严重程度
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Warning 校验警告
type Warning struct {
	Type        WarningType `json:"type"`
	Severity    Severity    `json:"severity"`
	Message     string      `json:"message"`
	Assignments []uuid.UUID `json:"assignments,omitempty"` // 相关的排班ID
}

// Validation 校验结果
type Validation struct {
	IsValid  bool      `json:"is_valid"`
	Warnings []Warning `json:"warnings"`
}

// HasType 是否包含某类警告
func (v *Validation) HasType(t WarningType) bool {
	for _, w := range v.Warnings {
		if w.Type == t {
			return true
		}
	}
	return false
}

// AssignmentRequest 待校验的排班
type AssignmentRequest struct {
	Date     model.Date
	Shift    model.ShiftType
	LineID   uuid.UUID
	BusID    uuid.UUID
	DriverID uuid.UUID
	// ExcludeID 修改已有排班时排除其自身
	ExcludeID uuid.UUID
}

// Reader 冲突检测所需的数据读取接口
type Reader interface {
	GetLine(ctx context.Context, id uuid.UUID) (*model.Line, error)
	GetBus(ctx context.Context, id uuid.UUID) (*model.Bus, error)
	GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error)
	GetConflicts(ctx context.Context, date model.Date, shift model.ShiftType, busID, driverID uuid.UUID) ([]*model.Assignment, error)
	GetAssignmentsByDateRange(ctx context.Context, from, to model.Date) ([]*model.Assignment, error)
}

// DetectorConfig 检测器配置
type DetectorConfig struct {
	CheckWeeklyHours bool    // 是否检查合同周工时
	ShiftHours       float64 // 每个班次计入的工时
}

// DefaultDetectorConfig 返回默认配置
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		CheckWeeklyHours: false,
		ShiftHours:       8,
	}
}

// ConflictDetector 冲突检测器
type ConflictDetector struct {
	reader Reader
	config *DetectorConfig
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(reader Reader, config *DetectorConfig) *ConflictDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &ConflictDetector{reader: reader, config: config}
}

// ValidateAssignment 校验一个排班，只读不写；返回的 error 仅表示数据读取失败
func (d *ConflictDetector) ValidateAssignment(ctx context.Context, req AssignmentRequest) (*Validation, error) {
	line, err := d.reader.GetLine(ctx, req.LineID)
	if err != nil {
		return nil, fmt.Errorf("读取线路失败: %w", err)
	}
	bus, err := d.reader.GetBus(ctx, req.BusID)
	if err != nil {
		return nil, fmt.Errorf("读取车辆失败: %w", err)
	}
	driver, err := d.reader.GetDriver(ctx, req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("读取司机失败: %w", err)
	}

	if line == nil || bus == nil || driver == nil {
		return &Validation{
			IsValid: false,
			Warnings: []Warning{{
				Type:     WarningUnavailableResource,
				Severity: SeverityError,
				Message:  "线路、车辆或司机不存在",
			}},
		}, nil
	}

	var warnings []Warning

	doubleBookings, err := d.detectDoubleBookings(ctx, req, bus, driver)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, doubleBookings...)
	warnings = append(warnings, d.detectResourceIssues(req, line, bus, driver)...)

	if d.config.CheckWeeklyHours {
		w, err := d.detectWeeklyHours(ctx, req, driver)
		if err != nil {
			return nil, err
		}
		if w != nil {
			warnings = append(warnings, *w)
		}
	}

	return newValidation(warnings), nil
}

// detectDoubleBookings 同日同班次已占用该车辆或司机的排班（不论线路）
func (d *ConflictDetector) detectDoubleBookings(ctx context.Context, req AssignmentRequest, bus *model.Bus, driver *model.Driver) ([]Warning, error) {
	conflicts, err := d.reader.GetConflicts(ctx, req.Date, req.Shift, req.BusID, req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("查询冲突失败: %w", err)
	}

	sorted := make([]*model.Assignment, 0, len(conflicts))
	for _, a := range conflicts {
		if req.ExcludeID != uuid.Nil && a.ID == req.ExcludeID {
			continue
		}
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	var warnings []Warning
	for _, a := range sorted {
		var msg string
		switch {
		case a.BusID == req.BusID && a.DriverID == req.DriverID:
			msg = fmt.Sprintf("车辆 %s 和司机 %s 已在 %s %s 班次被分配", bus.LicensePlate, driver.FullName, req.Date, req.Shift)
		case a.BusID == req.BusID:
			msg = fmt.Sprintf("车辆 %s 已在 %s %s 班次被分配", bus.LicensePlate, req.Date, req.Shift)
		default:
			msg = fmt.Sprintf("司机 %s 已在 %s %s 班次被分配", driver.FullName, req.Date, req.Shift)
		}
		warnings = append(warnings, Warning{
			Type:        WarningDoubleBooking,
			Severity:    SeverityError,
			Message:     msg,
			Assignments: []uuid.UUID{a.ID},
		})
	}
	return warnings, nil
}

// detectResourceIssues 软性检查，各项独立判断
func (d *ConflictDetector) detectResourceIssues(req AssignmentRequest, line *model.Line, bus *model.Bus, driver *model.Driver) []Warning {
	var warnings []Warning
	add := func(t WarningType, format string, args ...interface{}) {
		warnings = append(warnings, Warning{
			Type:     t,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if !bus.IsAvailableOn(req.Date) {
		add(WarningUnavailableResource, "车辆 %s 在 %s 不可用", bus.LicensePlate, req.Date)
	}
	if !driver.IsAvailableOn(req.Date) {
		add(WarningUnavailableResource, "司机 %s 在 %s 不可用", driver.FullName, req.Date)
	}
	if !line.AcceptsSize(bus.Size) {
		add(WarningBusSizeMismatch, "车辆尺寸 %s 与线路 %s 不兼容", bus.Size, line.Number)
	}
	if bus.IsElectric() && !bus.CanHandleDistance(line.DistanceKm) {
		add(WarningInsufficientRange, "电动车 %s 续航不足以完成线路 %s（%.0f 公里）", bus.LicensePlate, line.Number, line.DistanceKm)
	}
	if driver.AvoidsShift(req.Shift) {
		add(WarningPreference, "司机 %s 希望避免 %s 班次", driver.FullName, req.Shift)
	}
	if len(driver.PreferredShifts) > 0 && !driver.PrefersShift(req.Shift) {
		add(WarningPreference, "%s 班次不在司机 %s 的偏好中", req.Shift, driver.FullName)
	}

	return warnings
}

// detectWeeklyHours 检查加上本班次后是否超出司机合同周工时
func (d *ConflictDetector) detectWeeklyHours(ctx context.Context, req AssignmentRequest, driver *model.Driver) (*Warning, error) {
	if driver.WeeklyHours <= 0 {
		return nil, nil
	}

	from := model.WeekStart(req.Date)
	assignments, err := d.reader.GetAssignmentsByDateRange(ctx, from, from.AddDays(6))
	if err != nil {
		return nil, fmt.Errorf("查询周排班失败: %w", err)
	}

	shifts := 1
	for _, a := range assignments {
		if a.DriverID != driver.ID || a.ID == req.ExcludeID {
			continue
		}
		if a.Date == req.Date && a.Shift == req.Shift {
			continue
		}
		shifts++
	}

	hours := float64(shifts) * d.config.ShiftHours
	if hours <= float64(driver.WeeklyHours) {
		return nil, nil
	}
	return &Warning{
		Type:     WarningWeeklyHours,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("司机 %s 本周将工作 %.0f 小时，超过合同 %d 小时", driver.FullName, hours, driver.WeeklyHours),
	}, nil
}

// newValidation 没有 error 级别警告即为有效
func newValidation(warnings []Warning) *Validation {
	if warnings == nil {
		warnings = []Warning{}
	}
	valid := true
	for _, w := range warnings {
		if w.Severity == SeverityError {
			valid = false
			break
		}
	}
	return &Validation{IsValid: valid, Warnings: warnings}
}
