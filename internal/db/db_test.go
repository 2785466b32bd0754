package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"training-booking-backend/config"
	"training-booking-backend/internal/model"
)

func TestInit_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:                 "sqlite",
		DSN:                    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns:           10,
		MaxIdleConns:           10,
		ConnMaxLifetimeMinutes: 5,
	}

	gormDB, err := Init(cfg, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	for _, table := range []any{&model.Trainer{}, &model.Client{}, &model.Session{}, &model.Reservation{}, &model.PushSubscription{}} {
		assert.True(t, gormDB.Migrator().HasTable(table))
	}
	assert.True(t, gormDB.Migrator().HasIndex(&model.Reservation{}, "idx_reservations_active_client_session"))
}

func TestMigrate_ActiveReservationIndex(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	gormDB, err := Init(cfg, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	now := time.Now().UTC()
	require.NoError(t, gormDB.Create(&model.Trainer{ID: 1, DisplayName: "Ana"}).Error)
	require.NoError(t, gormDB.Create(&model.Client{ID: 7, DisplayName: "Client 7", Email: "c7@example.com"}).Error)
	require.NoError(t, gormDB.Create(&model.Session{ID: 1, TrainerID: 1, Date: "2025-11-05", Capacity: 5}).Error)

	active := model.Reservation{ClientID: 7, SessionID: 1, Status: model.StatusConfirmed, RequestedAt: now, CreatedAt: now}
	require.NoError(t, gormDB.Create(&active).Error)

	duplicate := model.Reservation{ClientID: 7, SessionID: 1, Status: model.StatusPending, RequestedAt: now, CreatedAt: now}
	assert.ErrorIs(t, gormDB.Create(&duplicate).Error, gorm.ErrDuplicatedKey, "a second active reservation must be rejected")

	// Cancelled rows do not count against the index.
	require.NoError(t, gormDB.Model(&active).Update("status", model.StatusCancelled).Error)
	rebook := model.Reservation{ClientID: 7, SessionID: 1, Status: model.StatusConfirmed, RequestedAt: now, CreatedAt: now}
	assert.NoError(t, gormDB.Create(&rebook).Error)
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "mysql"}, zap.NewNop())
	assert.Error(t, err)
}
