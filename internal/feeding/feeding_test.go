package feeding

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"finfare-backend/config"
	"finfare-backend/internal/connection"
	"finfare-backend/internal/db"
	"finfare-backend/internal/model"
	"finfare-backend/internal/store"
)

type feedCall struct {
	address  string
	foodType string
	quantity int
	duration float64
}

type mockCommander struct {
	mu    sync.Mutex
	calls []feedCall
	err   error
}

func (m *mockCommander) Feed(_ context.Context, address, foodType string, quantity int, duration float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, feedCall{address, foodType, quantity, duration})
	return nil
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) Notify(_ int64, kind, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, kind+": "+message)
}

type fixture struct {
	db        *gorm.DB
	store     store.Store
	commander *mockCommander
	notifier  *mockNotifier
	service   *Service
	device    *model.Device
	patch     *model.FoodPatch
}

func newFixture(t *testing.T, active bool, quantity float64, cfg config.FeedingConfig) *fixture {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	t.Cleanup(func() { sqlDB.Close() })

	st := store.NewGormStore(gormDB)
	ctx := context.Background()
	require.NoError(t, gormDB.Create(&model.Aquarium{ID: 1, Name: "Reef", Capacity: 100, CompanyID: 1}).Error)
	dev := &model.Device{UniqueAddress: "feeder-1", AquariumID: 1, IsActive: active}
	require.NoError(t, st.CreateDevice(ctx, dev))
	patch := &model.FoodPatch{Name: "Flakes", FoodType: "flakes", Quantity: quantity, DeviceID: dev.ID}
	require.NoError(t, st.CreateFoodPatch(ctx, patch))

	if cfg.Portion == 0 {
		cfg.Portion = 1
		cfg.DurationSeconds = 2
	}
	commander := &mockCommander{}
	notifier := &mockNotifier{}
	return &fixture{
		db:        gormDB,
		store:     st,
		commander: commander,
		notifier:  notifier,
		service:   NewService(st, commander, notifier, cfg),
		device:    dev,
		patch:     patch,
	}
}

func (f *fixture) quantity(t *testing.T) float64 {
	t.Helper()
	p, err := f.store.GetFoodPatch(context.Background(), f.patch.ID)
	require.NoError(t, err)
	return p.Quantity
}

func TestFeedNow_InactiveDevice(t *testing.T) {
	f := newFixture(t, false, 5, config.FeedingConfig{})

	res, err := f.service.FeedNow(context.Background(), Request{AquariumID: 1})
	assert.ErrorIs(t, err, ErrDeviceInactive)
	assert.Equal(t, Result{Status: StatusError, Message: "device inactive"}, res)
	assert.Empty(t, f.commander.calls, "no dispatch is attempted")
	assert.Equal(t, 5.0, f.quantity(t))
}

func TestFeedNow_DepletesThenRejects(t *testing.T) {
	f := newFixture(t, true, 1, config.FeedingConfig{})
	ctx := context.Background()

	res, err := f.service.FeedNow(ctx, Request{AquariumID: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 0.0, f.quantity(t))
	require.Len(t, f.commander.calls, 1)
	assert.Equal(t, feedCall{"feeder-1", "flakes", 1, 2}, f.commander.calls[0])
	assert.Len(t, f.notifier.messages, 1, "running low is reported")

	res, err = f.service.FeedNow(ctx, Request{AquariumID: 1})
	assert.ErrorIs(t, err, ErrFoodDepleted)
	assert.Equal(t, Result{Status: StatusError, Message: "food depleted"}, res)
	assert.Equal(t, 0.0, f.quantity(t))
	assert.Len(t, f.commander.calls, 1)
}

func TestFeedNow_DispatchFailureLeavesInventory(t *testing.T) {
	f := newFixture(t, true, 3, config.FeedingConfig{})
	f.commander.err = connection.ErrDeviceNotConnected

	res, err := f.service.FeedNow(context.Background(), Request{AquariumID: 1})
	assert.ErrorIs(t, err, connection.ErrDeviceNotConnected)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, 3.0, f.quantity(t))

	var count int64
	require.NoError(t, f.db.Model(&model.FeedDispatch{}).Count(&count).Error)
	assert.Zero(t, count)
}

// unrecordedStore fails every ConsumeFood call.
type unrecordedStore struct {
	Store
	err error
}

func (s unrecordedStore) ConsumeFood(context.Context, *model.FeedDispatch) (float64, error) {
	return 0, s.err
}

func TestFeedNow_RecordFailureAfterDispatchIsLogged(t *testing.T) {
	f := newFixture(t, true, 3, config.FeedingConfig{})
	dbErr := errors.New("database is locked")
	svc := NewService(unrecordedStore{Store: f.store, err: dbErr}, f.commander, f.notifier, config.FeedingConfig{Portion: 1, DurationSeconds: 2})

	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	res, err := svc.FeedNow(context.Background(), Request{AquariumID: 1})
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, StatusError, res.Status)
	assert.Len(t, f.commander.calls, 1)
	assert.Equal(t, 3.0, f.quantity(t))

	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "feed dispatched but unrecorded")
	assert.Contains(t, buf.String(), `"address":"feeder-1"`)
}

func TestFeedNow_FailureResultRestoresInventory(t *testing.T) {
	f := newFixture(t, true, 1, config.FeedingConfig{})
	ctx := context.Background()

	_, err := f.service.FeedNow(ctx, Request{AquariumID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, f.quantity(t))

	require.NoError(t, f.service.HandleFeedResult(ctx, "feeder-1", false))
	assert.Equal(t, 1.0, f.quantity(t))
	assert.Contains(t, f.notifier.messages[len(f.notifier.messages)-1], "failed")

	require.NoError(t, f.service.HandleFeedResult(ctx, "feeder-1", false), "a stray result is ignored")
	assert.Equal(t, 1.0, f.quantity(t), "compensation happens once")
}

func TestFeedNow_SuccessResultKeepsInventory(t *testing.T) {
	f := newFixture(t, true, 4, config.FeedingConfig{})
	ctx := context.Background()

	_, err := f.service.FeedNow(ctx, Request{AquariumID: 1, Source: model.SourceSchedule})
	require.NoError(t, err)
	require.NoError(t, f.service.HandleFeedResult(ctx, "feeder-1", true))
	assert.Equal(t, 3.0, f.quantity(t))

	var d model.FeedDispatch
	require.NoError(t, f.db.First(&d).Error)
	assert.Equal(t, model.DispatchConfirmed, d.Status)
	assert.Equal(t, model.SourceSchedule, d.Source)
}

func TestFeedNow_MissingRecords(t *testing.T) {
	f := newFixture(t, true, 4, config.FeedingConfig{})
	ctx := context.Background()

	res, err := f.service.FeedNow(ctx, Request{AquariumID: 42})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, "device not found", res.Message)

	require.NoError(t, f.store.DeleteFoodPatch(ctx, f.patch.ID))
	res, err = f.service.FeedNow(ctx, Request{AquariumID: 1})
	assert.ErrorIs(t, err, ErrNoFoodPatch)
	assert.Equal(t, StatusError, res.Status)

	assert.ErrorIs(t, f.service.HandleFeedResult(ctx, "ghost", true), ErrDeviceNotFound)
}

func TestFeedNow_PortionLargerThanStock(t *testing.T) {
	f := newFixture(t, true, 1.5, config.FeedingConfig{Portion: 2, DurationSeconds: 3})

	_, err := f.service.FeedNow(context.Background(), Request{AquariumID: 1})
	assert.ErrorIs(t, err, ErrFoodDepleted)
	assert.Equal(t, 1.5, f.quantity(t))
}

func TestFeedNow_FeedInFlight(t *testing.T) {
	f := newFixture(t, true, 5, config.FeedingConfig{Portion: 1, DurationSeconds: 2, AckTimeout: time.Minute})
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	_, err := f.service.FeedNow(ctx, Request{AquariumID: 1})
	require.NoError(t, err)

	_, err = f.service.FeedNow(ctx, Request{AquariumID: 1})
	assert.ErrorIs(t, err, ErrFeedInFlight)
	assert.Equal(t, 4.0, f.quantity(t))

	now = now.Add(2 * time.Minute)
	_, err = f.service.FeedNow(ctx, Request{AquariumID: 1})
	require.NoError(t, err, "an unanswered feed stops blocking after the timeout")
	assert.Equal(t, 3.0, f.quantity(t))

	var superseded int64
	require.NoError(t, f.db.Model(&model.FeedDispatch{}).Where("status = ?", model.DispatchUnacknowledged).Count(&superseded).Error)
	assert.Equal(t, int64(1), superseded)
}

func TestFeedNow_ConcurrentNeverNegative(t *testing.T) {
	f := newFixture(t, true, 1, config.FeedingConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.FeedNow(ctx, Request{AquariumID: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, ErrFoodDepleted))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0.0, f.quantity(t))
	assert.Len(t, f.commander.calls, 1)
}
