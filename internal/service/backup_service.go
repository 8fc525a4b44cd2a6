package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doselog/internal/db"
	"github.com/doselog/internal/dose"
	"github.com/doselog/internal/schedule"
	"gorm.io/gorm"
)

// ErrMalformedDocument 当备份文档结构校验失败时返回
var ErrMalformedDocument = errors.New("malformed backup document")

const documentDateLayout = "2006-01-02"

// Document 是持久化/备份文档的完整形态
// settings 可为 null（首次使用）；所有日期以 ISO-8601 字符串落盘
type Document struct {
	Settings *DocumentSettings `json:"settings"`
	Records  []DocumentRecord  `json:"records"`
}

// DocumentSettings 对应 UserSettings 的文档形态
// 同时兼容旧版扁平单方案结构（顶层 protocol/startDate/concentration），
// 读取时统一迁移为 protocols 列表
type DocumentSettings struct {
	TreatmentStartDate     string             `json:"treatmentStartDate"`
	Protocols              []DocumentProtocol `json:"protocols"`
	ReminderTime           string             `json:"reminderTime"`
	EnableNotifications    bool               `json:"enableNotifications"`
	NotificationPermission string             `json:"notificationPermission"`

	// 旧版扁平字段，仅用于迁移
	LegacyProtocol      string  `json:"protocol,omitempty"`
	LegacyStartDate     string  `json:"startDate,omitempty"`
	LegacyConcentration float64 `json:"concentration,omitempty"`
	LegacyWeeklyDose    float64 `json:"weeklyDose,omitempty"`
}

// DocumentProtocol 对应 ProtocolSettings 的文档形态
type DocumentProtocol struct {
	Protocol             string          `json:"protocol"`
	WeeklyDoseMg         float64         `json:"weeklyDoseMg"`
	ConcentrationMgPerMl float64         `json:"concentrationMgPerMl"`
	Syringe              DocumentSyringe `json:"syringe"`
	SyringeFillAmountMl  float64         `json:"syringeFillAmountMl"`
	StartDate            string          `json:"startDate"`
	DisplayColor         string          `json:"displayColor"`
}

// DocumentSyringe 对应注射器配置的文档形态
type DocumentSyringe struct {
	VolumeMl    float64 `json:"volumeMl"`
	TotalUnits  float64 `json:"totalUnits"`
	DeadSpaceMl float64 `json:"deadSpaceMl"`
}

// DocumentRecord 对应 InjectionRecord 的文档形态
type DocumentRecord struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	DoseMg      float64 `json:"doseMg"`
	Missed      bool    `json:"missed"`
	Rescheduled bool    `json:"rescheduled"`
	Notes       string  `json:"notes,omitempty"`
}

// ImportResult 汇总导入结果
type ImportResult struct {
	RecordsImported int
	RecordsDropped  int
	SettingsLoaded  bool
}

// BackupService 负责设置+记录文档的导出与导入
type BackupService struct {
	db *gorm.DB
}

// NewBackupService 构造 BackupService
func NewBackupService(gdb *gorm.DB) *BackupService {
	return &BackupService{db: gdb}
}

// Export 把当前全部状态导出为备份文档
func (s *BackupService) Export() (*Document, error) {
	doc := &Document{Records: []DocumentRecord{}}

	var settings db.UserSettings
	err := s.db.Preload("Protocols", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).First(&settings).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("export settings: %w", err)
	}
	if err == nil {
		doc.Settings = settingsToDocument(&settings)
	}

	var records []db.InjectionRecord
	if err := s.db.Order("date ASC, id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}
	for _, r := range records {
		doc.Records = append(doc.Records, DocumentRecord{
			ID:          r.RecordID,
			Date:        r.Date.Format(documentDateLayout),
			DoseMg:      r.DoseMg,
			Missed:      r.Missed,
			Rescheduled: r.Rescheduled,
			Notes:       r.Notes,
		})
	}
	return doc, nil
}

// Import 校验并导入备份文档，整体替换现有状态
// 设置不合法时整体拒绝；单条记录不合法时仅丢弃该条，
// 保证局部损坏的数据不会让用户失去全部内容
func (s *BackupService) Import(raw []byte) (*ImportResult, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var settings *db.UserSettings
	if doc.Settings != nil {
		migrated, err := MigrateDocumentSettings(doc.Settings)
		if err != nil {
			return nil, err
		}
		settings = migrated
	}

	records, dropped := sanitizeDocumentRecords(doc.Records)

	result := &ImportResult{
		RecordsImported: len(records),
		RecordsDropped:  dropped,
		SettingsLoaded:  settings != nil,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 物理删除，避免软删除行继续占用 record_id 唯一索引
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&db.InjectionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&db.ProtocolSettings{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&db.UserSettings{}).Error; err != nil {
			return err
		}

		if settings != nil {
			if err := tx.Create(settings).Error; err != nil {
				return err
			}
		}
		for i := range records {
			if err := tx.Create(&records[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import document: %w", err)
	}
	return result, nil
}

// MigrateDocumentSettings 把文档设置迁移为规范结构并校验
// 旧版扁平形态（无 protocols 列表）会合成一条方案历史；
// 迁移后方案列表必须非空且每条均可解析，否则整体拒绝
func MigrateDocumentSettings(ds *DocumentSettings) (*db.UserSettings, error) {
	if ds == nil {
		return nil, nil
	}

	protocols := ds.Protocols
	if len(protocols) == 0 {
		if strings.TrimSpace(ds.LegacyProtocol) == "" {
			return nil, fmt.Errorf("%w: settings without protocols", ErrMalformedDocument)
		}
		protocols = []DocumentProtocol{{
			Protocol:             ds.LegacyProtocol,
			WeeklyDoseMg:         ds.LegacyWeeklyDose,
			ConcentrationMgPerMl: ds.LegacyConcentration,
			Syringe:              DocumentSyringe{VolumeMl: 1, TotalUnits: 100},
			StartDate:            ds.LegacyStartDate,
		}}
	}

	settings := &db.UserSettings{
		ReminderTime:           strings.TrimSpace(ds.ReminderTime),
		EnableNotifications:    ds.EnableNotifications,
		NotificationPermission: strings.ToLower(strings.TrimSpace(ds.NotificationPermission)),
	}
	if settings.ReminderTime == "" {
		settings.ReminderTime = "08:00"
	}
	if settings.NotificationPermission == "" {
		settings.NotificationPermission = "default"
	}

	if ds.TreatmentStartDate != "" {
		start, err := parseDocumentDate(ds.TreatmentStartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad treatment start date", ErrMalformedDocument)
		}
		settings.TreatmentStartDate = start
	}

	for _, p := range protocols {
		proto, ok := dose.ParseProtocol(p.Protocol)
		if !ok {
			return nil, fmt.Errorf("%w: unknown protocol %q", ErrMalformedDocument, p.Protocol)
		}
		start, err := parseDocumentDate(p.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad protocol start date %q", ErrMalformedDocument, p.StartDate)
		}

		entry := db.ProtocolSettings{
			Protocol:             string(proto),
			WeeklyDoseMg:         p.WeeklyDoseMg,
			ConcentrationMgPerMl: p.ConcentrationMgPerMl,
			SyringeVolumeMl:      p.Syringe.VolumeMl,
			SyringeTotalUnits:    p.Syringe.TotalUnits,
			SyringeDeadSpaceMl:   p.Syringe.DeadSpaceMl,
			SyringeFillAmountMl:  p.SyringeFillAmountMl,
			StartDate:            start,
			DisplayColor:         strings.TrimSpace(p.DisplayColor),
		}
		settings.Protocols = append(settings.Protocols, entry)
	}

	if settings.TreatmentStartDate.IsZero() {
		settings.TreatmentStartDate = settings.Protocols[0].StartDate
	}
	return settings, nil
}

func sanitizeDocumentRecords(docs []DocumentRecord) ([]db.InjectionRecord, int) {
	records := make([]db.InjectionRecord, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	dropped := 0

	for _, r := range docs {
		id := strings.TrimSpace(r.ID)
		if id == "" || seen[id] {
			dropped++
			continue
		}
		date, err := parseDocumentDate(r.Date)
		if err != nil {
			dropped++
			continue
		}
		seen[id] = true
		records = append(records, db.InjectionRecord{
			RecordID:    id,
			Date:        schedule.NormalizeDate(date),
			DoseMg:      r.DoseMg,
			Missed:      r.Missed,
			Rescheduled: r.Rescheduled,
			Notes:       strings.TrimSpace(r.Notes),
		})
	}
	return records, dropped
}

func settingsToDocument(settings *db.UserSettings) *DocumentSettings {
	doc := &DocumentSettings{
		TreatmentStartDate:     settings.TreatmentStartDate.Format(documentDateLayout),
		ReminderTime:           settings.ReminderTime,
		EnableNotifications:    settings.EnableNotifications,
		NotificationPermission: settings.NotificationPermission,
		Protocols:              make([]DocumentProtocol, 0, len(settings.Protocols)),
	}

	for _, p := range settings.Protocols {
		doc.Protocols = append(doc.Protocols, DocumentProtocol{
			Protocol:             p.Protocol,
			WeeklyDoseMg:         p.WeeklyDoseMg,
			ConcentrationMgPerMl: p.ConcentrationMgPerMl,
			Syringe: DocumentSyringe{
				VolumeMl:    p.SyringeVolumeMl,
				TotalUnits:  p.SyringeTotalUnits,
				DeadSpaceMl: p.SyringeDeadSpaceMl,
			},
			SyringeFillAmountMl: p.SyringeFillAmountMl,
			StartDate:           p.StartDate.Format(documentDateLayout),
			DisplayColor:        p.DisplayColor,
		})
	}
	return doc
}

// parseDocumentDate 接受 ISO-8601 日期或完整时间戳
func parseDocumentDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation(documentDateLayout, raw, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
