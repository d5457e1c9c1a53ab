package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"finfare-backend/config"
	"finfare-backend/internal/access"
	"finfare-backend/internal/connection"
	"finfare-backend/internal/db"
	"finfare-backend/internal/device"
	"finfare-backend/internal/feeding"
	"finfare-backend/internal/model"
	"finfare-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopNotifier struct{}

func (nopNotifier) Notify(int64, string, string) {}

// recordingChannel stands in for a device socket.
type recordingChannel struct {
	mu     sync.Mutex
	sent   []string
	closes int
}

func (c *recordingChannel) ID() string { return "recording" }

func (c *recordingChannel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(payload))
	return nil
}

func (c *recordingChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *recordingChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *recordingChannel) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	store    store.Store
	registry *connection.Registry
}

func newTestEnv(t *testing.T, checker access.Checker) *testEnv {
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
	registry := connection.NewRegistry()
	dispatcher := device.NewDispatcher(registry)
	reconciler := device.NewReconciler(st, dispatcher, device.SyncToggle)
	feeder := feeding.NewService(st, dispatcher, nopNotifier{}, config.FeedingConfig{Portion: 1, DurationSeconds: 2})
	telemetry := device.NewTelemetry(st, nopNotifier{}, config.WaterQualityConfig{})

	if checker == nil {
		checker = access.AllowAll{}
	}
	router := NewRouter(config.ServerConfig{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTLSeconds: 1,
		IdentityHeader:  "X-User-ID",
	}, Deps{
		Store:      st,
		Access:     checker,
		Controller: device.NewController(st, reconciler),
		Feeder:     feeder,
		Sessions:   device.NewSessions(registry, reconciler, feeder, telemetry),
		Registry:   registry,
	})

	require.NoError(t, gormDB.Create(&model.Aquarium{ID: 1, Name: "Reef", Capacity: 120, CompanyID: 1}).Error)
	require.NoError(t, gormDB.Create(&model.Aquarium{ID: 2, Name: "Nano", Capacity: 30, CompanyID: 2}).Error)

	return &testEnv{router: router, db: gormDB, store: st, registry: registry}
}

func (e *testEnv) do(method, path, body, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// seedDevice provisions a device with one food patch in aquarium 1.
func (e *testEnv) seedDevice(t *testing.T, active bool, quantity float64) (*model.Device, *model.FoodPatch) {
	t.Helper()
	ctx := context.Background()
	d := &model.Device{UniqueAddress: "feeder-1", AquariumID: 1, IsActive: active}
	require.NoError(t, e.store.CreateDevice(ctx, d))
	p := &model.FoodPatch{Name: "Flakes", FoodType: "flakes", Quantity: quantity, DeviceID: d.ID}
	require.NoError(t, e.store.CreateFoodPatch(ctx, p))
	return d, p
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestIdentityRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/devices/1", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissionChecks(t *testing.T) {
	env := newTestEnv(t, access.NewStatic(map[string][]string{
		"viewer": {"1:" + access.ViewDevices},
	}))
	env.seedDevice(t, true, 5)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"view own company", http.MethodGet, "/api/devices/1", "", http.StatusOK},
		{"manage without grant", http.MethodPost, "/api/devices/1/activate", "", http.StatusForbidden},
		{"other company", http.MethodGet, "/api/devices/2", "", http.StatusForbidden},
		{"unknown aquarium", http.MethodGet, "/api/devices/99", "", http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/devices/abc", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.body, "viewer")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestDeviceLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/devices/1", `{"unique_address":"feeder-1"}`, "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[deviceResponse](t, w)
	assert.Equal(t, "feeder-1", created.UniqueAddress)
	assert.False(t, created.IsActive)
	assert.False(t, created.Connected)

	w = env.do(http.MethodPost, "/api/devices/1", `{"unique_address":"feeder-2"}`, "alice")
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(http.MethodPost, "/api/devices/2", `{"unique_address":"feeder-1"}`, "alice")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/devices/1/activate", "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"is_active":true,"delivered":false}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/devices/1/activate", "", "alice")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPut, "/api/devices/1", `{"aquarium_id":2}`, "alice")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[deviceResponse](t, w)
	assert.Equal(t, int64(2), moved.AquariumID)
	assert.True(t, moved.IsActive)

	w = env.do(http.MethodGet, "/api/devices/1", "", "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateDevice_AddressChangeDropsSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedDevice(t, true, 5)
	ch := &recordingChannel{}
	env.registry.Connect("feeder-1", ch)

	w := env.do(http.MethodPut, "/api/devices/1", `{"unique_address":"feeder-9"}`, "alice")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, env.registry.IsConnected("feeder-1"))
	// The socket must drop so the device reconnects under its new address.
	assert.Equal(t, 1, ch.closeCount())

	w = env.do(http.MethodPut, "/api/devices/1", `{"unique_address":""}`, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivate_ConnectedDeviceReceivesCommand(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedDevice(t, false, 5)
	ch := &recordingChannel{}
	env.registry.Connect("feeder-1", ch)

	w := env.do(http.MethodPost, "/api/devices/1/activate", "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"is_active":true,"delivered":true}`, w.Body.String())
	assert.Equal(t, []string{`{"action":"activate"}`}, ch.frames())
}

func TestFoodPatches(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedDevice(t, true, 5)

	w := env.do(http.MethodPost, "/api/devices/1/food-patches", `{"name":"Pellets","food_type":"pellets","quantity":3}`, "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	patch := decode[model.FoodPatch](t, w)

	w = env.do(http.MethodPost, "/api/devices/1/food-patches", `{"name":"Bad","food_type":"pellets","quantity":-1}`, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/devices/1/food-patches", "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.FoodPatch](t, w), 2)

	path := "/api/devices/1/food-patches/" + jsonID(patch.ID)
	w = env.do(http.MethodPut, path, `{"name":"Pellets","food_type":"pellets","quantity":10}`, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10.0, decode[model.FoodPatch](t, w).Quantity)

	// Aquarium 2 has its own device; the patch is not reachable through it.
	require.NoError(t, env.store.CreateDevice(context.Background(), &model.Device{UniqueAddress: "feeder-2", AquariumID: 2}))
	w = env.do(http.MethodDelete, "/api/devices/2/food-patches/"+jsonID(patch.ID), "", "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, path, "", "alice")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodDelete, path, "", "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedingSchedules(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/aquariums/1/feeding-schedules", `{"food_type":"flakes","scheduled_time":"8:30"}`, "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	s := decode[model.FeedingSchedule](t, w)
	assert.Equal(t, "08:30:00", s.ScheduledTime)

	w = env.do(http.MethodPost, "/api/aquariums/1/feeding-schedules", `{"food_type":"flakes","scheduled_time":"25:00"}`, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodPost, "/api/aquariums/99/feeding-schedules", `{"food_type":"flakes","scheduled_time":"09:00"}`, "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)

	path := "/api/feeding-schedules/" + jsonID(s.ID)
	w = env.do(http.MethodPut, path, `{"food_type":"pellets","scheduled_time":"2024-01-01T18:45:00Z"}`, "alice")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[model.FeedingSchedule](t, w)
	assert.Equal(t, "18:45:00", updated.ScheduledTime)
	assert.Equal(t, "pellets", updated.FoodType)

	w = env.do(http.MethodGet, "/api/aquariums/1/feeding-schedules", "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.FeedingSchedule](t, w), 1)

	w = env.do(http.MethodDelete, path, "", "alice")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodGet, path, "", "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedNow(t *testing.T) {
	tests := []struct {
		name      string
		seed      bool
		active    bool
		quantity  float64
		connected bool
		want      int
		message   string
	}{
		{"no device", false, false, 0, false, http.StatusNotFound, "device not found"},
		{"inactive", true, false, 5, true, http.StatusConflict, "device inactive"},
		{"depleted", true, true, 0, true, http.StatusConflict, "food depleted"},
		{"offline", true, true, 5, false, http.StatusServiceUnavailable, "device not connected"},
		{"success", true, true, 5, true, http.StatusOK, "feeding started"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			ch := &recordingChannel{}
			if tt.seed {
				env.seedDevice(t, tt.active, tt.quantity)
			}
			if tt.connected {
				env.registry.Connect("feeder-1", ch)
			}

			w := env.do(http.MethodPost, "/api/aquariums/1/feed-now", "", "alice")
			assert.Equal(t, tt.want, w.Code)
			result := decode[feeding.Result](t, w)
			assert.Equal(t, tt.message, result.Message)
			if tt.want == http.StatusOK {
				assert.Equal(t, feeding.StatusSuccess, result.Status)
				assert.Equal(t, []string{`{"action":"feed","food_type":"flakes","quantity":1,"duration":2}`}, ch.frames())
			} else {
				assert.Equal(t, feeding.StatusError, result.Status)
			}
		})
	}
}

func TestFeedNow_FoodTypeBody(t *testing.T) {
	env := newTestEnv(t, nil)
	d, _ := env.seedDevice(t, true, 5)
	require.NoError(t, env.store.CreateFoodPatch(context.Background(), &model.FoodPatch{Name: "Pellets", FoodType: "pellets", Quantity: 2, DeviceID: d.ID}))
	ch := &recordingChannel{}
	env.registry.Connect("feeder-1", ch)

	w := env.do(http.MethodPost, "/api/aquariums/1/feed-now", `{"food_type":"pellets"}`, "alice")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, ch.frames()[0], `"food_type":"pellets"`)

	w = env.do(http.MethodPost, "/api/aquariums/1/feed-now", `{"food_type":`, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWaterParameters(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, env.store.SaveWaterParameter(ctx, &model.WaterParameter{
			AquariumID:  1,
			MeasuredAt:  testTime.Add(time.Duration(i) * time.Minute),
			PH:          7 + float64(i)/10,
			Temperature: 25,
		}))
	}

	w := env.do(http.MethodGet, "/api/aquariums/1/water-parameters?limit=2", "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	params := decode[[]model.WaterParameter](t, w)
	require.Len(t, params, 2)
	assert.InDelta(t, 7.2, params[0].PH, 1e-9)

	w = env.do(http.MethodGet, "/api/aquariums/1/water-parameters?limit=zero", "", "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey_NotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/vapid_public_key", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServeDevice_UnknownAddress(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/ws/nobody", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

var testTime = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}
