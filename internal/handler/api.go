package handler

import (
	"github.com/doselog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db       *gorm.DB
	settings *service.SettingsService
	records  *service.RecordService
	schedule *service.ScheduleService
	backup   *service.BackupService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB) *API {
	settingsService := service.NewSettingsService(db)
	recordService := service.NewRecordService(db, settingsService)

	return &API{
		db:       db,
		settings: settingsService,
		records:  recordService,
		schedule: service.NewScheduleService(settingsService, recordService),
		backup:   service.NewBackupService(db),
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}
