package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/doselog/internal/db"
)

func TestBackupExportImportRoundTrip(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	settings := NewSettingsService(db.DB)
	records := NewRecordService(db.DB, settings)
	backup := NewBackupService(db.DB)

	if _, err := settings.GetOrCreate(); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	if _, err := records.Upsert(RecordInput{Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.Local), DoseMg: 33, Notes: "ok"}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	doc, err := backup.Export()
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if doc.Settings == nil || len(doc.Settings.Protocols) != 1 {
		t.Fatalf("expected exported settings with one protocol, got %+v", doc.Settings)
	}
	if len(doc.Records) != 1 || doc.Records[0].Date != "2025-01-03" {
		t.Fatalf("expected one exported record with ISO date, got %+v", doc.Records)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}

	result, err := backup.Import(raw)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.RecordsImported != 1 || result.RecordsDropped != 0 || !result.SettingsLoaded {
		t.Fatalf("unexpected import result: %+v", result)
	}

	reloaded, err := settings.Get()
	if err != nil {
		t.Fatalf("Get after import returned error: %v", err)
	}
	if len(reloaded.Protocols) != 1 {
		t.Fatalf("expected protocol history preserved, got %d entries", len(reloaded.Protocols))
	}
}

func TestBackupImportMigratesLegacyShape(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	backup := NewBackupService(db.DB)

	// 旧版扁平结构：顶层单方案字段，无 protocols 列表
	raw := []byte(`{
		"settings": {
			"protocol": "E2D",
			"startDate": "2024-01-01",
			"concentration": 200,
			"reminderTime": "09:00"
		},
		"records": []
	}`)

	if _, err := backup.Import(raw); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	settings := NewSettingsService(db.DB)
	loaded, err := settings.Get()
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	if len(loaded.Protocols) != 1 {
		t.Fatalf("expected migrated single protocol entry, got %d", len(loaded.Protocols))
	}
	if loaded.Protocols[0].Protocol != "e2d" {
		t.Fatalf("expected protocol e2d, got %s", loaded.Protocols[0].Protocol)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	if !loaded.Protocols[0].StartDate.Equal(want) {
		t.Fatalf("expected start date %v, got %v", want, loaded.Protocols[0].StartDate)
	}
	if loaded.Protocols[0].ConcentrationMgPerMl != 200 {
		t.Fatalf("expected concentration 200, got %v", loaded.Protocols[0].ConcentrationMgPerMl)
	}
}

func TestBackupImportDropsMalformedRecords(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	backup := NewBackupService(db.DB)

	// 缺 id、坏日期、重复 id 的记录逐条丢弃，其余照常导入
	raw := []byte(`{
		"settings": null,
		"records": [
			{"id": "a", "date": "2025-01-01", "doseMg": 40},
			{"id": "", "date": "2025-01-02", "doseMg": 40},
			{"id": "b", "date": "not-a-date", "doseMg": 40},
			{"id": "a", "date": "2025-01-04", "doseMg": 40},
			{"id": "c", "date": "2025-01-05", "doseMg": 40}
		]
	}`)

	result, err := backup.Import(raw)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.RecordsImported != 2 || result.RecordsDropped != 3 {
		t.Fatalf("expected 2 imported / 3 dropped, got %+v", result)
	}
	if result.SettingsLoaded {
		t.Fatal("expected settings to stay empty for null settings")
	}
}

func TestBackupImportRejectsMalformedSettings(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	backup := NewBackupService(db.DB)

	cases := []string{
		`not json at all`,
		`{"settings": {"protocols": []}, "records": []}`,
		`{"settings": {"protocols": [{"protocol": "hourly", "startDate": "2024-01-01"}]}, "records": []}`,
		`{"settings": {"protocols": [{"protocol": "e2d", "startDate": "soon"}]}, "records": []}`,
	}

	for _, raw := range cases {
		if _, err := backup.Import([]byte(raw)); !errors.Is(err, ErrMalformedDocument) {
			t.Fatalf("expected ErrMalformedDocument for %q, got %v", raw, err)
		}
	}
}

func TestBackupImportToleratesUnknownFields(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	backup := NewBackupService(db.DB)

	// 前向兼容：未知字段直接忽略
	raw := []byte(`{
		"settings": {
			"protocols": [{"protocol": "weekly", "startDate": "2024-06-01", "weeklyDoseMg": 120, "concentrationMgPerMl": 250, "syringe": {"volumeMl": 1, "totalUnits": 100, "deadSpaceMl": 0}, "futureFlag": true}],
			"theme": "dark"
		},
		"records": [],
		"schemaVersion": 9
	}`)

	result, err := backup.Import(raw)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if !result.SettingsLoaded {
		t.Fatal("expected settings to load despite unknown fields")
	}
}
