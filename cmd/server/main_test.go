package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/teamhub/internal/domain"
	"github.com/tbourn/teamhub/internal/repo"
)

func TestPurge_RemovesOnlyExpiredRecords(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "purge.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Now().UTC()
	u := domain.User{ID: "00000000-0000-0000-0000-000000000001", Email: "a@example.com", Name: "A", PasswordHash: "x"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	sessions := []domain.Session{
		{Token: "old", UserID: u.ID, ExpiresAt: now.Add(-time.Minute)},
		{Token: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour)},
	}
	if err := db.Create(&sessions).Error; err != nil {
		t.Fatalf("sessions: %v", err)
	}
	keys := []domain.Idempotency{
		{ID: "i1", UserID: u.ID, Scope: "teams", Key: "k1", ResourceID: "r", Status: 201, CreatedAt: now, ExpiresAt: now.Add(-time.Second)},
		{ID: "i2", UserID: u.ID, Scope: "teams", Key: "k2", ResourceID: "r", Status: 201, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	if err := db.Create(&keys).Error; err != nil {
		t.Fatalf("keys: %v", err)
	}

	purge(context.Background(), db, zerolog.Nop(), now)

	var n int64
	db.Model(&domain.Session{}).Count(&n)
	if n != 1 {
		t.Fatalf("sessions left = %d, want 1", n)
	}
	db.Model(&domain.Idempotency{}).Count(&n)
	if n != 1 {
		t.Fatalf("idempotency rows left = %d, want 1", n)
	}
}

func TestPurgeLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		purgeLoop(ctx, nil, zerolog.Nop(), time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("purgeLoop did not return after cancel")
	}
}
