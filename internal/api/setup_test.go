package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"training-booking-backend/config"
	"training-booking-backend/internal/booking"
	"training-booking-backend/internal/db"
	"training-booking-backend/internal/model"
	"training-booking-backend/internal/mw"
	"training-booking-backend/internal/store"
)

const testSecret = "api-test-secret"

var testNow = time.Date(2025, 11, 5, 6, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	cache  *mw.ResponseCache
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, initial model.ReservationStatus, push *webpush.Options) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	require.NoError(t, gormDB.Create(&[]model.Trainer{
		{ID: 1, DisplayName: "Ana", Specialty: "Yoga"},
		{ID: 2, DisplayName: "Bruno", Specialty: "Boxing"},
	}).Error)
	for _, id := range []int64{7, 8, 9} {
		require.NoError(t, gormDB.Create(&model.Client{ID: id, DisplayName: fmt.Sprintf("Client %d", id), Email: fmt.Sprintf("c%d@example.com", id)}).Error)
	}
	require.NoError(t, gormDB.Create(&[]model.Session{
		{ID: 1, TrainerID: 1, Title: "Morning yoga", Date: "2025-11-05", Capacity: 2},
		{ID: 2, TrainerID: 2, Title: "Boxing basics", Date: "2025-11-06", Capacity: 1},
	}).Error)

	s := store.NewGormStore(gormDB)
	cache := mw.NewResponseCache(time.Minute)
	engine := booking.NewEngine(s, booking.Settings{
		MinNotice:     2 * time.Hour,
		InitialStatus: initial,
		PaymentWindow: 15 * time.Minute,
	}, &fixedClock{now: testNow}, booking.Notifiers{cache}, nil)

	router := NewRouter(Dependencies{
		Engine:    engine,
		Store:     s,
		WebPush:   push,
		Cache:     cache,
		Server:    config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTL: time.Minute},
		JWTSecret: testSecret,
	})
	return &testServer{router: router, db: gormDB, cache: cache}
}

func tokenFor(t *testing.T, clientID int64) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": clientID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do sends a request as clientID; zero means anonymous.
func (ts *testServer) do(t *testing.T, method, path string, clientID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if clientID != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, clientID))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Remaining *int   `json:"remaining"`
}

type sessionsBody struct {
	Sessions []booking.SessionAvailability `json:"sessions"`
}

type reservationsBody struct {
	Reservations []booking.ReservationView `json:"reservations"`
}

