package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// categoryOf asserts err is a taxonomy error and returns its category.
func categoryOf(t *testing.T, err error) apperr.Category {
	t.Helper()
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apperr.Error, got %T (%v)", err, err)
	}
	return ae.Category()
}

func fieldOf(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if f, ok := ae.Meta(apperr.MetaField); ok {
			s, _ := f.(string)
			return s
		}
	}
	return ""
}

func TestTeamService_Create_NormalizesAndValidates(t *testing.T) {
	svc := NewTeamService(newTestDB(t))
	ctx := context.Background()

	team, err := svc.Create(ctx, "owner", "  Platform   Team ", " infra ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if team.Name != "Platform Team" || team.Description != "infra" || team.OwnerID != "owner" {
		t.Fatalf("unexpected team: %+v", team)
	}

	_, err = svc.Create(ctx, "owner", "   ", "")
	if categoryOf(t, err) != apperr.CategoryValidation || fieldOf(err) != "name" {
		t.Fatalf("blank name: %v", err)
	}

	_, err = svc.Create(ctx, "owner", strings.Repeat("ü", 101), "")
	if categoryOf(t, err) != apperr.CategoryValidation {
		t.Fatalf("long name: %v", err)
	}
	// Exactly 100 runes is allowed even though it is 200 bytes.
	if _, err := svc.Create(ctx, "owner", strings.Repeat("ü", 100), ""); err != nil {
		t.Fatalf("100-rune name rejected: %v", err)
	}
}

func TestTeamService_Create_DuplicateIsConflict(t *testing.T) {
	svc := NewTeamService(newTestDB(t))
	ctx := context.Background()

	if _, err := svc.Create(ctx, "o", "alpha", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := svc.Create(ctx, "o", "alpha", "")
	if !errors.Is(err, apperr.ErrConflict) || fieldOf(err) != "name" {
		t.Fatalf("expected conflict on name, got %v", err)
	}
}

func TestTeamService_ListPage_DefaultsAndTotal(t *testing.T) {
	svc := NewTeamService(newTestDB(t))
	ctx := context.Background()

	items, total, err := svc.ListPage(ctx, 0, 0)
	if err != nil || total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("empty list = %v, %d, %v", items, total, err)
	}

	for _, n := range []string{"c", "a", "b"} {
		if _, err := svc.Create(ctx, "o", n, ""); err != nil {
			t.Fatalf("seed %s: %v", n, err)
		}
	}
	items, total, err = svc.ListPage(ctx, 2, 2)
	if err != nil || total != 3 || len(items) != 1 || items[0].Name != "c" {
		t.Fatalf("page 2 = %+v, %d, %v", items, total, err)
	}
}

func TestTeamService_GetMissing_IsNotFound(t *testing.T) {
	svc := NewTeamService(newTestDB(t))
	_, err := svc.Get(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTeamService_Update_OwnerOnlyAndConflict(t *testing.T) {
	svc := NewTeamService(newTestDB(t))
	ctx := context.Background()
	a, _ := svc.Create(ctx, "owner", "alpha", "")
	if _, err := svc.Create(ctx, "owner", "bravo", ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.Update(ctx, "owner", a.ID, "alpha two", "renamed")
	if err != nil || got.Name != "alpha two" || got.Description != "renamed" {
		t.Fatalf("Update = %+v, %v", got, err)
	}
	if _, err := svc.Update(ctx, "intruder", a.ID, "x", ""); categoryOf(t, err) != apperr.CategoryAuthorization {
		t.Fatalf("non-owner update: %v", err)
	}
	if _, err := svc.Update(ctx, "owner", a.ID, "bravo", ""); categoryOf(t, err) != apperr.CategoryConflict {
		t.Fatalf("rename onto taken name: %v", err)
	}
	if _, err := svc.Update(ctx, "owner", "missing", "x", ""); categoryOf(t, err) != apperr.CategoryNotFound {
		t.Fatalf("update missing: %v", err)
	}
	if _, err := svc.Update(ctx, "owner", a.ID, "", ""); categoryOf(t, err) != apperr.CategoryValidation {
		t.Fatalf("blank rename: %v", err)
	}
}

func TestTeamService_Delete_WithMembersIsBusinessRule(t *testing.T) {
	db := newTestDB(t)
	svc := NewTeamService(db)
	ctx := context.Background()
	team, _ := svc.Create(ctx, "owner", "alpha", "")
	member, err := repo.CreateUser(ctx, db, &team.ID, "m@example.com", "M", "h")
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}

	err = svc.Delete(ctx, "owner", team.ID)
	if categoryOf(t, err) != apperr.CategoryBusinessRule {
		t.Fatalf("expected business_rule, got %v", err)
	}
	pub := apperr.Public(apperr.From(err))
	if pub.Details["members"] != int64(1) {
		t.Fatalf("member count not in details: %+v", pub)
	}

	if err := svc.Delete(ctx, "intruder", team.ID); categoryOf(t, err) != apperr.CategoryAuthorization {
		t.Fatalf("non-owner delete: %v", err)
	}

	if err := repo.DeleteUser(ctx, db, member.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if err := svc.Delete(ctx, "owner", team.ID); err != nil {
		t.Fatalf("Delete empty team: %v", err)
	}
	if err := svc.Delete(ctx, "owner", team.ID); categoryOf(t, err) != apperr.CategoryNotFound {
		t.Fatalf("second delete: %v", err)
	}
}

func TestTeamService_StorageFailureIsInternal(t *testing.T) {
	db := newTestDB(t)
	svc := NewTeamService(db)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	_, _, err := svc.ListPage(context.Background(), 1, 10)
	if categoryOf(t, err) != apperr.CategoryInternal {
		t.Fatalf("expected internal, got %v", err)
	}
	if apperr.Public(apperr.From(err)).Message != apperr.GenericInternalMessage {
		t.Fatalf("internal detail would leak")
	}
}

// hashFor keeps bcrypt fast in tests.
func hashFor(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}
