package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doselog/internal/db"
	"github.com/doselog/internal/schedule"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrRecordNotFound 在指定记录不存在时返回
	ErrRecordNotFound = errors.New("injection record not found")
	// ErrDayAlreadyLogged 当同一日历日已有记录且调用方试图新建时返回
	ErrDayAlreadyLogged = errors.New("a record already exists for this day")
)

// RecordService 负责注射记录的增删改与漏针处理
// 记录以 uuid 作为对外 id；同一日历日视作单一槽位，
// 新建时拒绝重复占用，修改走已有 id 的原位更新
type RecordService struct {
	db       *gorm.DB
	settings *SettingsService
}

// RecordInput 定义记录注射时的输入对象
// RecordID 为空表示新建，非空表示按 id 原位更新
type RecordInput struct {
	RecordID string
	Date     time.Time
	DoseMg   float64
	Missed   bool
	Notes    string
}

// NewRecordService 构造 RecordService
func NewRecordService(gdb *gorm.DB, settings *SettingsService) *RecordService {
	return &RecordService{db: gdb, settings: settings}
}

// Upsert 记录一次注射结果：按 id 原位更新，或以新 uuid 创建
func (s *RecordService) Upsert(input RecordInput) (*db.InjectionRecord, error) {
	if input.Date.IsZero() {
		return nil, fmt.Errorf("record date is required")
	}
	day := schedule.NormalizeDate(input.Date)

	if id := strings.TrimSpace(input.RecordID); id != "" {
		var existing db.InjectionRecord
		if err := s.db.Where("record_id = ?", id).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrRecordNotFound
			}
			return nil, fmt.Errorf("find record: %w", err)
		}

		existing.Date = day
		existing.DoseMg = input.DoseMg
		existing.Missed = input.Missed
		existing.Notes = strings.TrimSpace(input.Notes)
		if !existing.Missed {
			existing.Rescheduled = false
		}

		if err := s.db.Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("update record: %w", err)
		}
		return &existing, nil
	}

	// 同一日历日最多一条记录，重复录入必须走已有 id
	var count int64
	if err := s.db.Model(&db.InjectionRecord{}).
		Where("date = ?", day).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check day occupancy: %w", err)
	}
	if count > 0 {
		return nil, ErrDayAlreadyLogged
	}

	record := db.InjectionRecord{
		RecordID: uuid.NewString(),
		Date:     day,
		DoseMg:   input.DoseMg,
		Missed:   input.Missed,
		Notes:    strings.TrimSpace(input.Notes),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return &record, nil
}

// Get 按对外 id 获取记录
func (s *RecordService) Get(recordID string) (*db.InjectionRecord, error) {
	var record db.InjectionRecord
	if err := s.db.Where("record_id = ?", recordID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &record, nil
}

// Delete 按对外 id 删除记录
func (s *RecordService) Delete(recordID string) error {
	result := s.db.Where("record_id = ?", recordID).Delete(&db.InjectionRecord{})
	if result.Error != nil {
		return fmt.Errorf("delete record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListBetween 返回日期区间内的记录，按日期升序
func (s *RecordService) ListBetween(start, end time.Time) ([]db.InjectionRecord, error) {
	var records []db.InjectionRecord
	if err := s.db.
		Where("date BETWEEN ? AND ?", schedule.NormalizeDate(start), schedule.NormalizeDate(end)).
		Order("date ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// ListAll 返回全部记录，按日期升序
func (s *RecordService) ListAll() ([]db.InjectionRecord, error) {
	var records []db.InjectionRecord
	if err := s.db.Order("date ASC, id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// ResolveMissed 应用漏针处理选项
// Skip/Maintain 仅标记漏针；ShiftSchedule 额外把当前方案起始日
// 顺延到漏针次日，使后续排期整体后移
func (s *RecordService) ResolveMissed(recordID string, option schedule.Resolution) (*db.InjectionRecord, error) {
	record, err := s.Get(recordID)
	if err != nil {
		return nil, err
	}

	view := schedule.Record{
		ID:     record.RecordID,
		Date:   record.Date,
		DoseMg: record.DoseMg,
	}
	shift := schedule.ApplyResolution(&view, option)

	record.Missed = view.Missed
	record.Rescheduled = view.Rescheduled
	if err := s.db.Save(record).Error; err != nil {
		return nil, fmt.Errorf("save resolution: %w", err)
	}

	if shift {
		if err := s.settings.ShiftCurrentStart(record.Date.AddDate(0, 0, 1)); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// ToScheduleRecords 把数据库记录映射为对账核心使用的视图
func ToScheduleRecords(records []db.InjectionRecord) []schedule.Record {
	views := make([]schedule.Record, 0, len(records))
	for _, r := range records {
		views = append(views, schedule.Record{
			ID:          r.RecordID,
			Date:        r.Date,
			DoseMg:      r.DoseMg,
			Missed:      r.Missed,
			Rescheduled: r.Rescheduled,
			Notes:       r.Notes,
		})
	}
	return views
}
