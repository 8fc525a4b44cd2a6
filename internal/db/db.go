package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 doselog.db。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "doselog.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return err
	}

	// 自动迁移模式，为核心模型创建表
	if err = DB.AutoMigrate(
		&UserSettings{},
		&ProtocolSettings{},
		&InjectionRecord{},
	); err != nil {
		return err
	}

	return MigrateLegacySettings(DB)
}

// MigrateLegacySettings 处理历史单方案扁平结构
// 旧版 user_settings 直接带 protocol/start_date/concentration_mg_per_ml 列，
// 没有方案历史表；迁移时为尚无方案条目的行合成一条 ProtocolSettings，
// 然后删除扁平列，下游逻辑只见规范结构
func MigrateLegacySettings(gdb *gorm.DB) error {
	migrator := gdb.Migrator()
	if !migrator.HasColumn(&UserSettings{}, "protocol") {
		return nil
	}

	type legacyRow struct {
		ID                   uint
		Protocol             string
		StartDate            *time.Time
		ConcentrationMgPerMl float64
		WeeklyDoseMg         float64
	}

	// 扁平列在不同旧版本间并不齐全，只读取实际存在的列
	columns := []string{"id", "protocol"}
	for _, optional := range []string{"start_date", "concentration_mg_per_ml", "weekly_dose_mg"} {
		if migrator.HasColumn(&UserSettings{}, optional) {
			columns = append(columns, optional)
		}
	}

	var rows []legacyRow
	if err := gdb.Table("user_settings").
		Select(strings.Join(columns, ", ")).
		Scan(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		var count int64
		if err := gdb.Model(&ProtocolSettings{}).
			Where("user_settings_id = ?", row.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || strings.TrimSpace(row.Protocol) == "" {
			continue
		}

		start := time.Now()
		if row.StartDate != nil {
			start = *row.StartDate
		}

		entry := ProtocolSettings{
			UserSettingsID:       row.ID,
			Protocol:             strings.ToLower(strings.TrimSpace(row.Protocol)),
			WeeklyDoseMg:         row.WeeklyDoseMg,
			ConcentrationMgPerMl: row.ConcentrationMgPerMl,
			SyringeVolumeMl:      1,
			SyringeTotalUnits:    100,
			StartDate:            start,
		}
		if err := gdb.Create(&entry).Error; err != nil {
			return err
		}
	}

	for _, column := range []string{"protocol", "start_date", "concentration_mg_per_ml", "weekly_dose_mg"} {
		if migrator.HasColumn(&UserSettings{}, column) {
			if dropErr := migrator.DropColumn(&UserSettings{}, column); dropErr != nil {
				return dropErr
			}
		}
	}

	return nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
