package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/teamhub/internal/apperr"
)

func TestNormalizeEmail_FoldsCase(t *testing.T) {
	cases := map[string]string{
		"  Ada@Example.COM ": "ada@example.com",
		"":                   "",
		"straße@x.de":        "strasse@x.de",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestUserService_Create_HashesAndNormalizes(t *testing.T) {
	svc := NewUserService(newTestDB(t), bcrypt.MinCost)
	ctx := context.Background()

	u, err := svc.Create(ctx, nil, "Ada@Example.com", "  Ada  Lovelace ", "correct horse")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "ada@example.com" || u.Name != "Ada Lovelace" || u.TeamID != nil {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.PasswordHash == "correct horse" {
		t.Fatalf("password stored in clear")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct horse")) != nil {
		t.Fatalf("hash does not verify")
	}

	_, err = svc.Create(ctx, nil, "ADA@example.com", "Other", "another pass")
	if !errors.Is(err, apperr.ErrConflict) || fieldOf(err) != "email" {
		t.Fatalf("case-insensitive duplicate email: %v", err)
	}
}

func TestUserService_Create_Validation(t *testing.T) {
	svc := NewUserService(newTestDB(t), bcrypt.MinCost)
	ctx := context.Background()

	tests := []struct {
		name, email, user, password, field string
	}{
		{"missing email", " ", "A", "password1", "email"},
		{"bad email", "not-an-email", "A", "password1", "email"},
		{"missing name", "a@example.com", "  ", "password1", "name"},
		{"short password", "a@example.com", "A", "short", "password"},
		{"long password", "a@example.com", "A", strings.Repeat("x", 73), "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, nil, tc.email, tc.user, tc.password)
			if categoryOf(t, err) != apperr.CategoryValidation || fieldOf(err) != tc.field {
				t.Fatalf("got %v (field %q); want validation on %q", err, fieldOf(err), tc.field)
			}
		})
	}
}

func TestUserService_Create_UnknownTeamIsNotFound(t *testing.T) {
	svc := NewUserService(newTestDB(t), bcrypt.MinCost)
	missing := "nope"
	_, err := svc.Create(context.Background(), &missing, "a@example.com", "A", "password1")
	if categoryOf(t, err) != apperr.CategoryNotFound || fieldOf(err) != "team_id" {
		t.Fatalf("unknown team: %v", err)
	}

	blank := "  "
	if _, err := svc.Create(context.Background(), &blank, "b@example.com", "B", "password1"); err != nil {
		t.Fatalf("blank team id should mean no team: %v", err)
	}
}

func TestUserService_ListPage_ByTeam(t *testing.T) {
	db := newTestDB(t)
	teams := NewTeamService(db)
	svc := NewUserService(db, bcrypt.MinCost)
	ctx := context.Background()

	team, _ := teams.Create(ctx, "o", "alpha", "")
	for _, e := range []string{"b@example.com", "a@example.com"} {
		if _, err := svc.Create(ctx, &team.ID, e, "M", "password1"); err != nil {
			t.Fatalf("seed %s: %v", e, err)
		}
	}
	if _, err := svc.Create(ctx, nil, "solo@example.com", "S", "password1"); err != nil {
		t.Fatalf("seed solo: %v", err)
	}

	items, total, err := svc.ListPage(ctx, team.ID, 1, 10)
	if err != nil || total != 2 || len(items) != 2 || items[0].Email != "a@example.com" {
		t.Fatalf("team page = %+v, %d, %v", items, total, err)
	}
	_, total, err = svc.ListPage(ctx, "", 1, 10)
	if err != nil || total != 3 {
		t.Fatalf("all users total = %d, %v", total, err)
	}
}

func TestUserService_GetAndDelete(t *testing.T) {
	svc := NewUserService(newTestDB(t), bcrypt.MinCost)
	ctx := context.Background()
	u, _ := svc.Create(ctx, nil, "a@example.com", "A", "password1")

	if got, err := svc.Get(ctx, u.ID); err != nil || got.Email != u.Email {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}
	if err := svc.Delete(ctx, "someone-else", u.ID); categoryOf(t, err) != apperr.CategoryAuthorization {
		t.Fatalf("delete other user: %v", err)
	}
	if err := svc.Delete(ctx, u.ID, u.ID); err != nil {
		t.Fatalf("self delete: %v", err)
	}
	if err := svc.Delete(ctx, u.ID, u.ID); categoryOf(t, err) != apperr.CategoryNotFound {
		t.Fatalf("second delete: %v", err)
	}
}
