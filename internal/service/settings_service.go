package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doselog/internal/db"
	"github.com/doselog/internal/dose"
	"github.com/doselog/internal/schedule"
	"gorm.io/gorm"
)

var (
	// ErrSettingsNotFound 在尚未初始化设置时返回
	ErrSettingsNotFound = errors.New("settings not found")
	// ErrInvalidProtocolInput 当方案配置不合法时返回
	ErrInvalidProtocolInput = errors.New("invalid protocol configuration")
	// ErrInvalidPreferences 当提醒/通知配置不合法时返回
	ErrInvalidPreferences = errors.New("invalid preferences")
)

// 首次使用时创建的默认方案
const (
	defaultProtocol          = dose.ProtocolE3D
	defaultWeeklyDoseMg      = 100.0
	defaultConcentration     = 200.0
	defaultSyringeVolumeMl   = 1.0
	defaultSyringeUnits      = 100.0
	defaultSyringeDeadSpace  = 0.05
	defaultSyringeFillAmount = 0.5
	defaultDisplayColor      = "#4f86f7"
)

// SettingsService 管理用户设置与方案历史
// 方案历史只追加或原位替换最后一条，从不删除
type SettingsService struct {
	db *gorm.DB
}

// ProtocolInput 定义新增/编辑方案时可配置字段
type ProtocolInput struct {
	Protocol             string
	WeeklyDoseMg         float64
	ConcentrationMgPerMl float64
	SyringeVolumeMl      float64
	SyringeTotalUnits    float64
	SyringeDeadSpaceMl   float64
	SyringeFillAmountMl  float64
	StartDate            time.Time
	DisplayColor         string
}

// NewSettingsService 构造 SettingsService
func NewSettingsService(gdb *gorm.DB) *SettingsService {
	return &SettingsService{db: gdb}
}

// Get 返回当前设置（含按插入顺序排列的方案历史）
func (s *SettingsService) Get() (*db.UserSettings, error) {
	var settings db.UserSettings
	err := s.db.Preload("Protocols", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return &settings, nil
}

// GetOrCreate 返回设置，首次使用时以默认方案初始化
func (s *SettingsService) GetOrCreate() (*db.UserSettings, error) {
	settings, err := s.Get()
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrSettingsNotFound) {
		return nil, err
	}

	today := schedule.NormalizeDate(time.Now())
	created := db.UserSettings{
		TreatmentStartDate:     today,
		ReminderTime:           "08:00",
		EnableNotifications:    false,
		NotificationPermission: "default",
		Protocols: []db.ProtocolSettings{{
			Protocol:             string(defaultProtocol),
			WeeklyDoseMg:         defaultWeeklyDoseMg,
			ConcentrationMgPerMl: defaultConcentration,
			SyringeVolumeMl:      defaultSyringeVolumeMl,
			SyringeTotalUnits:    defaultSyringeUnits,
			SyringeDeadSpaceMl:   defaultSyringeDeadSpace,
			SyringeFillAmountMl:  defaultSyringeFillAmount,
			StartDate:            today,
			DisplayColor:         defaultDisplayColor,
		}},
	}

	if err := s.db.Create(&created).Error; err != nil {
		return nil, fmt.Errorf("create default settings: %w", err)
	}
	return &created, nil
}

// ChangeProtocol 追加一条新的方案历史，新条目即成为当前方案
func (s *SettingsService) ChangeProtocol(input ProtocolInput) (*db.UserSettings, error) {
	entry, err := validateProtocolInput(input)
	if err != nil {
		return nil, err
	}

	settings, err := s.GetOrCreate()
	if err != nil {
		return nil, err
	}

	// 历史按时间向前推进：新方案起始日不得早于当前方案
	current := CurrentProtocol(settings)
	if current != nil && schedule.NormalizeDate(entry.StartDate).Before(schedule.NormalizeDate(current.StartDate)) {
		return nil, fmt.Errorf("%w: start date precedes current protocol", ErrInvalidProtocolInput)
	}

	entry.UserSettingsID = settings.ID
	if err := s.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("append protocol: %w", err)
	}

	return s.Get()
}

// UpdateCurrent 原位替换最后一条方案（设置编辑，不产生新历史）
func (s *SettingsService) UpdateCurrent(input ProtocolInput) (*db.UserSettings, error) {
	entry, err := validateProtocolInput(input)
	if err != nil {
		return nil, err
	}

	settings, err := s.Get()
	if err != nil {
		return nil, err
	}

	current := CurrentProtocol(settings)
	if current == nil {
		return nil, ErrSettingsNotFound
	}

	current.Protocol = entry.Protocol
	current.WeeklyDoseMg = entry.WeeklyDoseMg
	current.ConcentrationMgPerMl = entry.ConcentrationMgPerMl
	current.SyringeVolumeMl = entry.SyringeVolumeMl
	current.SyringeTotalUnits = entry.SyringeTotalUnits
	current.SyringeDeadSpaceMl = entry.SyringeDeadSpaceMl
	current.SyringeFillAmountMl = entry.SyringeFillAmountMl
	current.StartDate = entry.StartDate
	current.DisplayColor = entry.DisplayColor

	if err := s.db.Save(current).Error; err != nil {
		return nil, fmt.Errorf("update current protocol: %w", err)
	}
	return s.Get()
}

// ShiftCurrentStart 将当前方案的起始日改到指定日期
// 漏针后选择整体顺延时由记录服务调用
func (s *SettingsService) ShiftCurrentStart(date time.Time) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	current := CurrentProtocol(settings)
	if current == nil {
		return ErrSettingsNotFound
	}

	current.StartDate = schedule.NormalizeDate(date)
	if err := s.db.Save(current).Error; err != nil {
		return fmt.Errorf("shift protocol start: %w", err)
	}
	return nil
}

// UpdatePreferences 更新提醒时间与通知开关
// 只保存权限与开关状态，不负责任何通知投递
func (s *SettingsService) UpdatePreferences(reminderTime string, enableNotifications bool, permission string) (*db.UserSettings, error) {
	reminderTime = strings.TrimSpace(reminderTime)
	if _, err := time.Parse("15:04", reminderTime); err != nil {
		return nil, fmt.Errorf("%w: reminder time must be HH:MM", ErrInvalidPreferences)
	}

	permission = strings.ToLower(strings.TrimSpace(permission))
	if permission != "default" && permission != "granted" && permission != "denied" {
		return nil, fmt.Errorf("%w: unknown notification permission %s", ErrInvalidPreferences, permission)
	}

	settings, err := s.GetOrCreate()
	if err != nil {
		return nil, err
	}

	settings.ReminderTime = reminderTime
	settings.EnableNotifications = enableNotifications
	settings.NotificationPermission = permission

	if err := s.db.Save(settings).Error; err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return settings, nil
}

// CurrentProtocol 返回方案历史的最后一条，历史为空时返回 nil
func CurrentProtocol(settings *db.UserSettings) *db.ProtocolSettings {
	if settings == nil || len(settings.Protocols) == 0 {
		return nil
	}
	return &settings.Protocols[len(settings.Protocols)-1]
}

// Periods 把方案历史映射为日程核心使用的区间序列
func Periods(settings *db.UserSettings) []schedule.Period {
	if settings == nil {
		return nil
	}
	periods := make([]schedule.Period, 0, len(settings.Protocols))
	for _, p := range settings.Protocols {
		proto, ok := dose.ParseProtocol(p.Protocol)
		if !ok {
			continue
		}
		periods = append(periods, schedule.Period{Start: p.StartDate, Protocol: proto})
	}
	return periods
}

func validateProtocolInput(input ProtocolInput) (*db.ProtocolSettings, error) {
	proto, ok := dose.ParseProtocol(input.Protocol)
	if !ok {
		return nil, fmt.Errorf("%w: unknown protocol %s", ErrInvalidProtocolInput, input.Protocol)
	}
	if input.WeeklyDoseMg <= 0 {
		return nil, fmt.Errorf("%w: weekly dose must be positive", ErrInvalidProtocolInput)
	}
	if input.ConcentrationMgPerMl <= 0 {
		return nil, fmt.Errorf("%w: concentration must be positive", ErrInvalidProtocolInput)
	}
	if input.SyringeVolumeMl <= 0 || input.SyringeTotalUnits <= 0 {
		return nil, fmt.Errorf("%w: syringe volume and units must be positive", ErrInvalidProtocolInput)
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidProtocolInput)
	}

	color := strings.TrimSpace(input.DisplayColor)
	if color == "" {
		color = defaultDisplayColor
	}

	return &db.ProtocolSettings{
		Protocol:             string(proto),
		WeeklyDoseMg:         input.WeeklyDoseMg,
		ConcentrationMgPerMl: input.ConcentrationMgPerMl,
		SyringeVolumeMl:      input.SyringeVolumeMl,
		SyringeTotalUnits:    input.SyringeTotalUnits,
		SyringeDeadSpaceMl:   input.SyringeDeadSpaceMl,
		SyringeFillAmountMl:  input.SyringeFillAmountMl,
		StartDate:            schedule.NormalizeDate(input.StartDate),
		DisplayColor:         color,
	}, nil
}
