// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/model"
)

// DB 数据库接口（*sqlx.DB 与 *database.DB 均满足）
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// PostgresStore PostgreSQL 存储
type PostgresStore struct {
	db DB
}

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// uniqueViolation PostgreSQL 唯一约束冲突错误码
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// withTx 执行事务
func (r *PostgresStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("事务回滚失败: %v (原始错误: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("事务提交失败: %w", err)
	}
	return nil
}

// deleteByID 删除一行，不存在时返回 NOT_FOUND
func (r *PostgresStore) deleteByID(ctx context.Context, table, resource string, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return fmt.Errorf("删除%s失败: %w", resource, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound(resource, id.String())
	}
	return nil
}

// ========================================
// 线路
// ========================================

type lineRow struct {
	ID              uuid.UUID            `db:"id"`
	Number          string               `db:"line_number"`
	RouteName       string               `db:"route_name"`
	DistanceKm      float64              `db:"distance_km"`
	DurationMinutes int                  `db:"duration_minutes"`
	CompatibleSizes pq.StringArray       `db:"compatible_sizes"`
	Schedule        model.WeeklySchedule `db:"schedule"`
	IsActive        bool                 `db:"is_active"`
	CreatedAt       time.Time            `db:"created_at"`
	UpdatedAt       time.Time            `db:"updated_at"`
}

func (row *lineRow) toModel() *model.Line {
	sizes := make([]model.BusSize, 0, len(row.CompatibleSizes))
	for _, s := range row.CompatibleSizes {
		sizes = append(sizes, model.BusSize(s))
	}
	schedule := row.Schedule
	if schedule == nil {
		schedule = model.WeeklySchedule{}
	}
	return &model.Line{
		BaseModel:       model.BaseModel{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		Number:          row.Number,
		RouteName:       row.RouteName,
		DistanceKm:      row.DistanceKm,
		DurationMinutes: row.DurationMinutes,
		CompatibleSizes: sizes,
		Schedule:        schedule,
		IsActive:        row.IsActive,
	}
}

const selectLines = `
	SELECT id, line_number, route_name, distance_km, duration_minutes,
		compatible_sizes, schedule, is_active, created_at, updated_at
	FROM lines`

// GetAllLines 获取全部线路
func (r *PostgresStore) GetAllLines(ctx context.Context) ([]*model.Line, error) {
	var rows []lineRow
	if err := r.db.SelectContext(ctx, &rows, selectLines+" ORDER BY line_number"); err != nil {
		return nil, fmt.Errorf("查询线路失败: %w", err)
	}

	lines := make([]*model.Line, 0, len(rows))
	for i := range rows {
		lines = append(lines, rows[i].toModel())
	}
	return lines, nil
}

// getLine 按条件查询单条线路
func (r *PostgresStore) getLine(ctx context.Context, where string, arg interface{}) (*model.Line, error) {
	var row lineRow
	err := r.db.GetContext(ctx, &row, selectLines+" WHERE "+where, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询线路失败: %w", err)
	}
	return row.toModel(), nil
}

// GetLine 根据ID获取线路
func (r *PostgresStore) GetLine(ctx context.Context, id uuid.UUID) (*model.Line, error) {
	return r.getLine(ctx, "id = $1", id)
}

// GetLineByNumber 根据线路号获取线路
func (r *PostgresStore) GetLineByNumber(ctx context.Context, number string) (*model.Line, error) {
	return r.getLine(ctx, "line_number = $1", number)
}

// SaveLine 新建或更新线路
func (r *PostgresStore) SaveLine(ctx context.Context, line *model.Line) error {
	stamp(&line.BaseModel)

	sizes := make([]string, 0, len(line.CompatibleSizes))
	for _, s := range line.CompatibleSizes {
		sizes = append(sizes, string(s))
	}

	query := `
		INSERT INTO lines (
			id, line_number, route_name, distance_km, duration_minutes,
			compatible_sizes, schedule, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			line_number = EXCLUDED.line_number, route_name = EXCLUDED.route_name,
			distance_km = EXCLUDED.distance_km, duration_minutes = EXCLUDED.duration_minutes,
			compatible_sizes = EXCLUDED.compatible_sizes, schedule = EXCLUDED.schedule,
			is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		line.ID, line.Number, line.RouteName, line.DistanceKm, line.DurationMinutes,
		pq.Array(sizes), line.Schedule, line.IsActive, line.CreatedAt, line.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("线路号 '%s' 已存在", line.Number))
	}
	if err != nil {
		return fmt.Errorf("保存线路失败: %w", err)
	}
	return nil
}

// DeleteLine 删除线路（排班由外键级联删除）
func (r *PostgresStore) DeleteLine(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "lines", "线路", id)
}

// ========================================
// 车辆
// ========================================

type busRow struct {
	ID               uuid.UUID       `db:"id"`
	LicensePlate     string          `db:"license_plate"`
	Size             string          `db:"size"`
	Propulsion       string          `db:"propulsion"`
	MaxRangeKm       sql.NullFloat64 `db:"max_range_km"`
	UnavailableDates pq.StringArray  `db:"unavailable_dates"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (row *busRow) toModel() (*model.Bus, error) {
	dates, err := parseDates(row.UnavailableDates)
	if err != nil {
		return nil, err
	}
	bus := &model.Bus{
		BaseModel:        model.BaseModel{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		LicensePlate:     row.LicensePlate,
		Size:             model.BusSize(row.Size),
		Propulsion:       model.Propulsion(row.Propulsion),
		UnavailableDates: dates,
	}
	if row.MaxRangeKm.Valid {
		r := row.MaxRangeKm.Float64
		bus.MaxRangeKm = &r
	}
	return bus, nil
}

const selectBuses = `
	SELECT id, license_plate, size, propulsion, max_range_km,
		unavailable_dates, created_at, updated_at
	FROM buses`

// GetAllBuses 获取全部车辆
func (r *PostgresStore) GetAllBuses(ctx context.Context) ([]*model.Bus, error) {
	var rows []busRow
	if err := r.db.SelectContext(ctx, &rows, selectBuses+" ORDER BY license_plate"); err != nil {
		return nil, fmt.Errorf("查询车辆失败: %w", err)
	}

	buses := make([]*model.Bus, 0, len(rows))
	for i := range rows {
		bus, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		buses = append(buses, bus)
	}
	return buses, nil
}

// getBus 按条件查询单辆车
func (r *PostgresStore) getBus(ctx context.Context, where string, arg interface{}) (*model.Bus, error) {
	var row busRow
	err := r.db.GetContext(ctx, &row, selectBuses+" WHERE "+where, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询车辆失败: %w", err)
	}
	return row.toModel()
}

// GetBus 根据ID获取车辆
func (r *PostgresStore) GetBus(ctx context.Context, id uuid.UUID) (*model.Bus, error) {
	return r.getBus(ctx, "id = $1", id)
}

// GetBusByLicensePlate 根据车牌获取车辆
func (r *PostgresStore) GetBusByLicensePlate(ctx context.Context, plate string) (*model.Bus, error) {
	return r.getBus(ctx, "license_plate = $1", plate)
}

// SaveBus 新建或更新车辆
func (r *PostgresStore) SaveBus(ctx context.Context, bus *model.Bus) error {
	stamp(&bus.BaseModel)

	var maxRange sql.NullFloat64
	if bus.MaxRangeKm != nil {
		maxRange = sql.NullFloat64{Float64: *bus.MaxRangeKm, Valid: true}
	}

	query := `
		INSERT INTO buses (
			id, license_plate, size, propulsion, max_range_km,
			unavailable_dates, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::date[], $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			license_plate = EXCLUDED.license_plate, size = EXCLUDED.size,
			propulsion = EXCLUDED.propulsion, max_range_km = EXCLUDED.max_range_km,
			unavailable_dates = EXCLUDED.unavailable_dates, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		bus.ID, bus.LicensePlate, string(bus.Size), string(bus.Propulsion), maxRange,
		pq.Array(formatDates(bus.UnavailableDates)), bus.CreatedAt, bus.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("车牌 '%s' 已存在", bus.LicensePlate))
	}
	if err != nil {
		return fmt.Errorf("保存车辆失败: %w", err)
	}
	return nil
}

// DeleteBus 删除车辆（排班由外键级联删除）
func (r *PostgresStore) DeleteBus(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "buses", "车辆", id)
}

// ========================================
// 司机
// ========================================

type driverRow struct {
	ID               uuid.UUID      `db:"id"`
	FullName         string         `db:"full_name"`
	WeeklyHours      int            `db:"weekly_hours"`
	AvailableDays    pq.Int64Array  `db:"available_days"`
	PreferredShifts  pq.StringArray `db:"preferred_shifts"`
	AvoidShifts      pq.StringArray `db:"avoid_shifts"`
	UnavailableDates pq.StringArray `db:"unavailable_dates"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (row *driverRow) toModel() (*model.Driver, error) {
	dates, err := parseDates(row.UnavailableDates)
	if err != nil {
		return nil, err
	}
	days := make([]time.Weekday, 0, len(row.AvailableDays))
	for _, d := range row.AvailableDays {
		days = append(days, time.Weekday(d))
	}
	driver := &model.Driver{
		BaseModel:        model.BaseModel{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		FullName:         row.FullName,
		WeeklyHours:      row.WeeklyHours,
		AvailableDays:    days,
		PreferredShifts:  toShifts(row.PreferredShifts),
		AvoidShifts:      toShifts(row.AvoidShifts),
		UnavailableDates: dates,
	}
	// 其他工具写入的数据可能存在矛盾偏好
	driver.ResolveContradictions()
	return driver, nil
}

const selectDrivers = `
	SELECT id, full_name, weekly_hours, available_days, preferred_shifts,
		avoid_shifts, unavailable_dates, created_at, updated_at
	FROM drivers`

// GetAllDrivers 获取全部司机
func (r *PostgresStore) GetAllDrivers(ctx context.Context) ([]*model.Driver, error) {
	var rows []driverRow
	if err := r.db.SelectContext(ctx, &rows, selectDrivers+" ORDER BY full_name"); err != nil {
		return nil, fmt.Errorf("查询司机失败: %w", err)
	}

	drivers := make([]*model.Driver, 0, len(rows))
	for i := range rows {
		driver, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, nil
}

// GetDriver 根据ID获取司机
func (r *PostgresStore) GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error) {
	var row driverRow
	err := r.db.GetContext(ctx, &row, selectDrivers+" WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询司机失败: %w", err)
	}
	return row.toModel()
}

// SaveDriver 新建或更新司机
func (r *PostgresStore) SaveDriver(ctx context.Context, driver *model.Driver) error {
	driver.ResolveContradictions()
	stamp(&driver.BaseModel)

	days := make([]int64, 0, len(driver.AvailableDays))
	for _, d := range driver.AvailableDays {
		days = append(days, int64(d))
	}

	query := `
		INSERT INTO drivers (
			id, full_name, weekly_hours, available_days, preferred_shifts,
			avoid_shifts, unavailable_dates, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::date[], $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name, weekly_hours = EXCLUDED.weekly_hours,
			available_days = EXCLUDED.available_days, preferred_shifts = EXCLUDED.preferred_shifts,
			avoid_shifts = EXCLUDED.avoid_shifts, unavailable_dates = EXCLUDED.unavailable_dates,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		driver.ID, driver.FullName, driver.WeeklyHours, pq.Array(days),
		pq.Array(fromShifts(driver.PreferredShifts)), pq.Array(fromShifts(driver.AvoidShifts)),
		pq.Array(formatDates(driver.UnavailableDates)), driver.CreatedAt, driver.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存司机失败: %w", err)
	}
	return nil
}

// DeleteDriver 删除司机（排班由外键级联删除）
func (r *PostgresStore) DeleteDriver(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "drivers", "司机", id)
}

// ========================================
// 排班分配
// ========================================

type assignmentRow struct {
	ID        uuid.UUID  `db:"id"`
	Date      model.Date `db:"date"`
	Shift     string     `db:"shift"`
	LineID    uuid.UUID  `db:"line_id"`
	BusID     uuid.UUID  `db:"bus_id"`
	DriverID  uuid.UUID  `db:"driver_id"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func (row *assignmentRow) toModel() *model.Assignment {
	return &model.Assignment{
		BaseModel: model.BaseModel{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		Date:      row.Date,
		Shift:     model.ShiftType(row.Shift),
		LineID:    row.LineID,
		BusID:     row.BusID,
		DriverID:  row.DriverID,
	}
}

const selectAssignments = `
	SELECT id, date, shift, line_id, bus_id, driver_id, created_at, updated_at
	FROM assignments`

const orderAssignments = `
	ORDER BY date, array_position(ARRAY['morning','afternoon','night'], shift), created_at, id`

// selectAssignmentsWhere 按条件查询排班
func (r *PostgresStore) selectAssignmentsWhere(ctx context.Context, where string, args ...interface{}) ([]*model.Assignment, error) {
	query := selectAssignments
	if where != "" {
		query += " WHERE " + where
	}
	query += orderAssignments

	var rows []assignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("查询排班失败: %w", err)
	}

	assignments := make([]*model.Assignment, 0, len(rows))
	for i := range rows {
		assignments = append(assignments, rows[i].toModel())
	}
	return assignments, nil
}

// GetAllAssignments 获取全部排班
func (r *PostgresStore) GetAllAssignments(ctx context.Context) ([]*model.Assignment, error) {
	return r.selectAssignmentsWhere(ctx, "")
}

// GetAssignment 根据ID获取排班
func (r *PostgresStore) GetAssignment(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	var row assignmentRow
	err := r.db.GetContext(ctx, &row, selectAssignments+" WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询排班失败: %w", err)
	}
	return row.toModel(), nil
}

// GetAssignmentsByDate 获取某日排班
func (r *PostgresStore) GetAssignmentsByDate(ctx context.Context, date model.Date) ([]*model.Assignment, error) {
	return r.selectAssignmentsWhere(ctx, "date = $1", date)
}

// GetAssignmentsByShift 获取某日某班次排班
func (r *PostgresStore) GetAssignmentsByShift(ctx context.Context, date model.Date, shift model.ShiftType) ([]*model.Assignment, error) {
	return r.selectAssignmentsWhere(ctx, "date = $1 AND shift = $2", date, string(shift))
}

// GetAssignmentsByDateRange 获取日期范围内（含两端）的排班
func (r *PostgresStore) GetAssignmentsByDateRange(ctx context.Context, from, to model.Date) ([]*model.Assignment, error) {
	return r.selectAssignmentsWhere(ctx, "date BETWEEN $1 AND $2", from, to)
}

// GetConflicts 同日同班次占用该车辆或司机的排班
func (r *PostgresStore) GetConflicts(ctx context.Context, date model.Date, shift model.ShiftType, busID, driverID uuid.UUID) ([]*model.Assignment, error) {
	return r.selectAssignmentsWhere(ctx,
		"date = $1 AND shift = $2 AND (bus_id = $3 OR driver_id = $4)",
		date, string(shift), busID, driverID,
	)
}

// CreateAssignment 在事务中按 (日期, 班次) 加咨询锁，检查占用后写入
func (r *PostgresStore) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	stamp(&a.BaseModel)

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		lockKey := a.Date.String() + "|" + string(a.Shift)
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockKey); err != nil {
			return fmt.Errorf("获取排班锁失败: %w", err)
		}

		var occupied int
		err := tx.GetContext(ctx, &occupied, `
			SELECT COUNT(*) FROM assignments
			WHERE date = $1 AND shift = $2 AND (line_id = $3 OR bus_id = $4 OR driver_id = $5)
		`, a.Date, string(a.Shift), a.LineID, a.BusID, a.DriverID)
		if err != nil {
			return fmt.Errorf("检查排班占用失败: %w", err)
		}
		if occupied > 0 {
			return errors.AssignmentBlocked(fmt.Sprintf("线路、车辆或司机在 %s %s 班次已被占用", a.Date, a.Shift))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO assignments (id, date, shift, line_id, bus_id, driver_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, a.ID, a.Date, string(a.Shift), a.LineID, a.BusID, a.DriverID, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("创建排班失败: %w", err)
		}
		return nil
	})
}

// DeleteAssignment 删除排班
func (r *PostgresStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "assignments", "排班", id)
}

// Stats 数据统计
func (r *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var row struct {
		Lines         int          `db:"lines"`
		ActiveLines   int          `db:"active_lines"`
		Buses         int          `db:"buses"`
		ElectricBuses int          `db:"electric_buses"`
		Drivers       int          `db:"drivers"`
		Assignments   int          `db:"assignments"`
		LastModified  sql.NullTime `db:"last_modified"`
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM lines) AS lines,
			(SELECT COUNT(*) FROM lines WHERE is_active) AS active_lines,
			(SELECT COUNT(*) FROM buses) AS buses,
			(SELECT COUNT(*) FROM buses WHERE propulsion = 'electric') AS electric_buses,
			(SELECT COUNT(*) FROM drivers) AS drivers,
			(SELECT COUNT(*) FROM assignments) AS assignments,
			GREATEST(
				(SELECT MAX(updated_at) FROM lines),
				(SELECT MAX(updated_at) FROM buses),
				(SELECT MAX(updated_at) FROM drivers),
				(SELECT MAX(updated_at) FROM assignments)
			) AS last_modified
	`
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("查询统计失败: %w", err)
	}

	return &Stats{
		Lines:         row.Lines,
		ActiveLines:   row.ActiveLines,
		Buses:         row.Buses,
		ElectricBuses: row.ElectricBuses,
		Drivers:       row.Drivers,
		Assignments:   row.Assignments,
		LastModified:  row.LastModified.Time,
	}, nil
}

// ========================================
// 数组转换
// ========================================

func parseDates(values []string) ([]model.Date, error) {
	dates := make([]model.Date, 0, len(values))
	for _, v := range values {
		d, err := model.ParseDate(v)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func formatDates(dates []model.Date) []string {
	values := make([]string, 0, len(dates))
	for _, d := range dates {
		values = append(values, d.String())
	}
	return values
}

func toShifts(values []string) []model.ShiftType {
	shifts := make([]model.ShiftType, 0, len(values))
	for _, v := range values {
		shifts = append(shifts, model.ShiftType(v))
	}
	return shifts
}

func fromShifts(shifts []model.ShiftType) []string {
	values := make([]string, 0, len(shifts))
	for _, s := range shifts {
		values = append(values, string(s))
	}
	return values
}
