package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/busplan/internal/metrics"
	"github.com/paiban/busplan/internal/repository"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/logger"
	"github.com/paiban/busplan/pkg/model"
	"github.com/paiban/busplan/pkg/scorer"
	"github.com/paiban/busplan/pkg/stats"
	conflict "github.com/paiban/busplan/pkg/validator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monday = "2024-03-04"

type fixture struct {
	svc    *PlanningService
	store  *repository.MemoryStore
	line   *model.Line
	diesel *model.Bus
	ev     *model.Bus
	ana    *model.Driver
	bea    *model.Driver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	now, err := time.Parse(time.RFC3339, "2024-03-06T10:00:00Z")
	require.NoError(t, err)

	svc := NewPlanningService(store, Options{
		Logger:   logger.NewPlannerLoggerFrom(zerolog.Nop()),
		Metrics:  metrics.NewRegistry(),
		Planning: []stats.PlanningOption{stats.WithClock(func() time.Time { return now })},
	})

	schedule := model.WeeklySchedule{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		schedule[wd] = &model.TimeWindow{Start: "06:00", End: "22:00"}
	}
	line := &model.Line{
		BaseModel:       model.NewBaseModel(),
		Number:          "12",
		RouteName:       "火车站-机场",
		DistanceKm:      20,
		DurationMinutes: 50,
		CompatibleSizes: []model.BusSize{model.BusSizeMedium},
		Schedule:        schedule,
		IsActive:        true,
	}
	require.NoError(t, store.SaveLine(ctx, line))

	rangeKm := 500.0
	diesel := &model.Bus{BaseModel: model.NewBaseModel(), LicensePlate: "A-100", Size: model.BusSizeMedium, Propulsion: model.PropulsionDiesel}
	ev := &model.Bus{BaseModel: model.NewBaseModel(), LicensePlate: "A-200", Size: model.BusSizeMedium, Propulsion: model.PropulsionElectric, MaxRangeKm: &rangeKm}
	require.NoError(t, store.SaveBus(ctx, diesel))
	require.NoError(t, store.SaveBus(ctx, ev))

	ana := model.NewDriver("Ana", 40, nil, nil, nil)
	bea := model.NewDriver("Bea", 40, nil, nil, []model.ShiftType{model.ShiftMorning})
	require.NoError(t, store.SaveDriver(ctx, ana))
	require.NoError(t, store.SaveDriver(ctx, bea))

	return &fixture{svc: svc, store: store, line: line, diesel: diesel, ev: ev, ana: ana, bea: bea}
}

func (f *fixture) input(shift model.ShiftType, bus *model.Bus, driver *model.Driver) AssignmentInput {
	return AssignmentInput{
		Date:     monday,
		Shift:    string(shift),
		LineID:   f.line.ID.String(),
		BusID:    bus.ID.String(),
		DriverID: driver.ID.String(),
	}
}

func TestPlanningService_CreateAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.diesel, f.ana))
	require.NoError(t, err)
	require.NotNil(t, result.Assignment)
	assert.True(t, result.Validation.IsValid)
	assert.Empty(t, result.Validation.Warnings)

	list, err := f.svc.ListAssignments(ctx, model.MustParseDate(monday), "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, result.Assignment.ID, list[0].ID)
}

func TestPlanningService_CreateAssignment_SoftWarningsAllowed(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CreateAssignment(context.Background(), f.input(model.ShiftMorning, f.diesel, f.bea))
	require.NoError(t, err)
	require.NotNil(t, result.Assignment)
	assert.True(t, result.Validation.IsValid)
	assert.True(t, result.Validation.HasType(conflict.WarningPreference))
}

func TestPlanningService_CreateAssignment_DoubleBookingBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.diesel, f.ana))
	require.NoError(t, err)

	result, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.diesel, f.bea))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeAssignmentBlocked))
	require.NotNil(t, result)
	assert.Nil(t, result.Assignment)
	assert.False(t, result.Validation.IsValid)
	assert.True(t, result.Validation.HasType(conflict.WarningDoubleBooking))

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Fields, "warnings")
}

func TestPlanningService_CreateAssignment_SlotTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.diesel, f.ana))
	require.NoError(t, err)

	// 不同车辆和司机，但线路班次已有排班
	_, err = f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.ev, f.bea))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeAssignmentBlocked))
}

func TestPlanningService_CreateAssignment_InvalidInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input AssignmentInput
		field string
	}{
		{"日期格式", AssignmentInput{Date: "04/03/2024", Shift: "morning", LineID: f.line.ID.String(), BusID: f.diesel.ID.String(), DriverID: f.ana.ID.String()}, "Date"},
		{"班次", AssignmentInput{Date: monday, Shift: "evening", LineID: f.line.ID.String(), BusID: f.diesel.ID.String(), DriverID: f.ana.ID.String()}, "Shift"},
		{"线路ID", AssignmentInput{Date: monday, Shift: "morning", LineID: "12", BusID: f.diesel.ID.String(), DriverID: f.ana.ID.String()}, "LineID"},
		{"缺少司机", AssignmentInput{Date: monday, Shift: "morning", LineID: f.line.ID.String(), BusID: f.diesel.ID.String()}, "DriverID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAssignment(context.Background(), tt.input)
			require.Error(t, err)
			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.CodeValidationFail, appErr.Code)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}
}

func TestPlanningService_CreateAssignment_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftNight, f.diesel, f.ana)); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	list, err := f.svc.ListAssignments(ctx, model.MustParseDate(monday), model.ShiftNight)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPlanningService_Validate_MissingEntity(t *testing.T) {
	f := newFixture(t)
	in := f.input(model.ShiftMorning, f.diesel, f.ana)
	in.BusID = uuid.New().String()

	v, err := f.svc.Validate(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	require.Len(t, v.Warnings, 1)
	assert.Equal(t, conflict.WarningUnavailableResource, v.Warnings[0].Type)
}

func TestPlanningService_DeleteAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.diesel, f.ana))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAssignment(ctx, result.Assignment.ID))

	err = f.svc.DeleteAssignment(ctx, result.Assignment.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestPlanningService_Candidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.Candidates(ctx, CandidateQuery{
		LineID: f.line.ID,
		Date:   model.MustParseDate(monday),
		Shift:  model.ShiftMorning,
	})
	require.NoError(t, err)

	assert.True(t, list.Required)
	assert.Equal(t, 320.0, list.AccumulatedKm)

	require.Len(t, list.Drivers, 2)
	assert.Equal(t, "Ana", list.Drivers[0].Driver.FullName)
	assert.Equal(t, 95, list.Drivers[0].Score)
	assert.Equal(t, scorer.TierExcellent, list.Drivers[0].Tier)
	assert.Equal(t, 20, list.Drivers[1].Score)

	require.Len(t, list.Buses, 2)
	assert.Equal(t, "A-100", list.Buses[0].Bus.LicensePlate, "diesel first on long routes when tied")
	assert.Equal(t, 100, list.Buses[0].Score)
}

func TestPlanningService_Candidates_AvailableOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := model.MustParseDate(monday)

	_, err := f.svc.SetDriverAvailability(ctx, f.ana.ID, date, false)
	require.NoError(t, err)

	list, err := f.svc.Candidates(ctx, CandidateQuery{LineID: f.line.ID, Date: date, Shift: model.ShiftMorning, AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Drivers, 1)
	assert.Equal(t, "Bea", list.Drivers[0].Driver.FullName)
}

func TestPlanningService_Candidates_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Candidates(ctx, CandidateQuery{LineID: uuid.New(), Date: model.MustParseDate(monday), Shift: model.ShiftMorning})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = f.svc.Candidates(ctx, CandidateQuery{LineID: f.line.ID, Date: model.MustParseDate(monday), Shift: "evening"})
	assert.True(t, errors.Is(err, errors.CodeInvalidShift))
}

func TestPlanningService_LineDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftAfternoon, f.diesel, f.ana))
	require.NoError(t, err)

	day, err := f.svc.LineDay(ctx, f.line.ID, model.MustParseDate(monday))
	require.NoError(t, err)

	assert.True(t, day.Operating)
	assert.Equal(t, []model.ShiftType{model.ShiftMorning, model.ShiftAfternoon, model.ShiftNight}, day.RequiredShifts)
	assert.Equal(t, 320.0, day.AccumulatedKm)
	require.NotNil(t, day.Window)
	assert.Equal(t, "06:00", day.Window.Start)
	assert.Len(t, day.Assignments, 1)
}

func TestPlanningService_PlanningStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.diesel, f.ana))
	require.NoError(t, err)

	status, err := f.svc.PlanningStatus(ctx)
	require.NoError(t, err)

	assert.False(t, status.Cached)
	assert.Equal(t, "2024-02-18", status.Window.From.String())
	assert.Len(t, status.Days, 63)
	assert.Equal(t, 63*3, status.Summary.TotalShifts)
	assert.Equal(t, 1, status.Summary.AssignedShifts)
}

func TestPlanningService_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAssignment(ctx, f.input(model.ShiftMorning, f.diesel, f.ana))
	require.NoError(t, err)

	date := model.MustParseDate(monday)
	overview, err := f.svc.Stats(ctx, date, date.AddDays(6))
	require.NoError(t, err)

	assert.Equal(t, 1, overview.Store.Lines)
	assert.Equal(t, 1, overview.Store.ElectricBuses)
	assert.Equal(t, 1, overview.Store.Assignments)
	require.Len(t, overview.Workload.Drivers, 2)
	assert.Equal(t, 1, overview.Workload.Drivers[0].Shifts)
	assert.Equal(t, 8.0, overview.Workload.Drivers[0].Hours)
}
