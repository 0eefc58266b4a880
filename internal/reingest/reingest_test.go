package reingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tallyflow/workcfg/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Datasource{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func load(t *testing.T, db *gorm.DB, tenant, id string) models.Datasource {
	t.Helper()
	var ds models.Datasource
	if err := db.First(&ds, "tenant_id = ? AND datasource_id = ?", tenant, id).Error; err != nil {
		t.Fatalf("load datasource: %v", err)
	}
	return ds
}

func TestKickOffReIngest_ClearsCursor(t *testing.T) {
	db := testDB(t)
	later := time.Now().Add(time.Hour)
	if err := db.Create(&models.Datasource{TenantID: "acme", DatasourceID: "d1", Kind: "jira", Schedule: "0 * * * *", Enabled: true, NextRunAt: &later}).Error; err != nil {
		t.Fatal(err)
	}

	if err := NewCursorTrigger(db).KickOffReIngest(context.Background(), "acme", "d1"); err != nil {
		t.Fatalf("KickOffReIngest: %v", err)
	}
	ds := load(t, db, "acme", "d1")
	if ds.NextRunAt != nil {
		t.Errorf("NextRunAt = %v, want nil", ds.NextRunAt)
	}
	if ds.Kind != "jira" || ds.Schedule != "0 * * * *" {
		t.Errorf("datasource attributes overwritten: %+v", ds)
	}
}

func TestKickOffReIngest_RegistersUnknownDatasource(t *testing.T) {
	db := testDB(t)
	if err := NewCursorTrigger(db).KickOffReIngest(context.Background(), "acme", "d9"); err != nil {
		t.Fatalf("KickOffReIngest: %v", err)
	}
	ds := load(t, db, "acme", "d9")
	if !ds.Enabled || ds.NextRunAt != nil {
		t.Errorf("datasource = %+v, want enabled with cleared cursor", ds)
	}
}

func TestScheduler_DueAndAdvance(t *testing.T) {
	db := testDB(t)
	now := time.Date(2026, 3, 4, 10, 7, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	rows := []models.Datasource{
		{TenantID: "acme", DatasourceID: "cleared", Enabled: true},
		{TenantID: "acme", DatasourceID: "past", Enabled: true, NextRunAt: &past, Schedule: "0 12 * * *"},
		{TenantID: "acme", DatasourceID: "future", Enabled: true, NextRunAt: &future},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.Datasource{TenantID: "acme", DatasourceID: "disabled"}).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Model(&models.Datasource{}).Where("datasource_id = ?", "disabled").Update("enabled", false).Error; err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(db, "*/30 * * * *", quiet())
	due, err := s.Due(context.Background(), now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %+v, want cleared and past", due)
	}

	for _, ds := range due {
		next, err := s.Advance(context.Background(), ds, now)
		if err != nil {
			t.Fatalf("Advance(%s): %v", ds.DatasourceID, err)
		}
		want := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
		if ds.DatasourceID == "past" {
			want = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
		}
		if !next.Equal(want) {
			t.Errorf("Advance(%s) = %v, want %v", ds.DatasourceID, next, want)
		}
	}

	due, err = s.Due(context.Background(), now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due after advance = %+v, want none", due)
	}
}

func TestScheduler_AdvanceBadSchedule(t *testing.T) {
	db := testDB(t)
	s := NewScheduler(db, "*/30 * * * *", quiet())
	_, err := s.Advance(context.Background(), models.Datasource{TenantID: "acme", DatasourceID: "d1", Schedule: "bogus"}, time.Now())
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestScheduler_Poll(t *testing.T) {
	db := testDB(t)
	trigger := NewCursorTrigger(db)
	for _, id := range []string{"d1", "d2"} {
		if err := trigger.KickOffReIngest(context.Background(), "acme", id); err != nil {
			t.Fatal(err)
		}
	}

	s := NewScheduler(db, "0 * * * *", quiet())
	now := time.Now()
	var seen []string
	n, err := s.Poll(context.Background(), now, func(_ context.Context, ds models.Datasource) error {
		seen = append(seen, ds.DatasourceID)
		if ds.DatasourceID == "d2" {
			return errors.New("worker busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || len(seen) != 2 {
		t.Errorf("advanced %d of %v, want 1 of 2", n, seen)
	}
	if ds := load(t, db, "acme", "d1"); ds.NextRunAt == nil {
		t.Error("d1 cursor not advanced")
	}
	if ds := load(t, db, "acme", "d2"); ds.NextRunAt != nil {
		t.Error("d2 cursor advanced although dispatch failed")
	}
}
