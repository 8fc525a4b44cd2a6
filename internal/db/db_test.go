package db

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return gdb
}

func TestMigrateLegacySettings(t *testing.T) {
	gdb := openTestDB(t)

	// 模拟旧版扁平结构：user_settings 直接携带单方案字段
	if err := gdb.Exec(`CREATE TABLE user_settings (
		id integer PRIMARY KEY AUTOINCREMENT,
		created_at datetime, updated_at datetime, deleted_at datetime,
		treatment_start_date datetime,
		reminder_time text,
		enable_notifications numeric,
		notification_permission text,
		protocol text,
		start_date datetime,
		concentration_mg_per_ml real
	)`).Error; err != nil {
		t.Fatalf("failed to create legacy table: %v", err)
	}

	legacyStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := gdb.Exec(
		`INSERT INTO user_settings (protocol, start_date, concentration_mg_per_ml, reminder_time) VALUES (?, ?, ?, ?)`,
		"E2D", legacyStart, 200.0, "08:00",
	).Error; err != nil {
		t.Fatalf("failed to insert legacy row: %v", err)
	}

	if err := gdb.AutoMigrate(&UserSettings{}, &ProtocolSettings{}, &InjectionRecord{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	if err := MigrateLegacySettings(gdb); err != nil {
		t.Fatalf("legacy migration failed: %v", err)
	}

	var protocols []ProtocolSettings
	if err := gdb.Order("id ASC").Find(&protocols).Error; err != nil {
		t.Fatalf("failed to load protocols: %v", err)
	}

	if len(protocols) != 1 {
		t.Fatalf("expected exactly one migrated protocol entry, got %d", len(protocols))
	}
	if protocols[0].Protocol != "e2d" {
		t.Fatalf("expected protocol e2d, got %s", protocols[0].Protocol)
	}
	if protocols[0].ConcentrationMgPerMl != 200.0 {
		t.Fatalf("expected concentration 200, got %v", protocols[0].ConcentrationMgPerMl)
	}
	if !protocols[0].StartDate.Equal(legacyStart) {
		t.Fatalf("expected start date %v, got %v", legacyStart, protocols[0].StartDate)
	}

	if gdb.Migrator().HasColumn(&UserSettings{}, "protocol") {
		t.Fatal("expected legacy protocol column to be dropped")
	}

	// 迁移应幂等：再次执行不产生重复条目
	if err := MigrateLegacySettings(gdb); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	var count int64
	if err := gdb.Model(&ProtocolSettings{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count protocols: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected migration to stay idempotent, got %d entries", count)
	}
}

func TestMigrateLegacySettingsNoLegacyColumns(t *testing.T) {
	gdb := openTestDB(t)
	if err := gdb.AutoMigrate(&UserSettings{}, &ProtocolSettings{}, &InjectionRecord{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	if err := MigrateLegacySettings(gdb); err != nil {
		t.Fatalf("expected no-op migration to succeed: %v", err)
	}
}
