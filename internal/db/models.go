package db

import (
	"time"

	"gorm.io/gorm"
)

// UserSettings 保存用户层面的治疗配置
// 单用户应用，库中只维护一行；方案历史以追加方式挂在 Protocols 上，
// 最后一条始终是当前方案
// ReminderTime 形如 "HH:MM"；通知只保留权限与开关，不负责投递
type UserSettings struct {
	gorm.Model
	TreatmentStartDate     time.Time
	ReminderTime           string
	EnableNotifications    bool
	NotificationPermission string
	Protocols              []ProtocolSettings `gorm:"foreignKey:UserSettingsID;constraint:OnDelete:CASCADE"`
}

// ProtocolSettings 表示方案历史中的一段配置
// 注射器参数内联为列，TotalUnits/VolumeMl 给出每毫升刻度数
// DeadSpace 仅作展示记录，不参与剂量计算
type ProtocolSettings struct {
	gorm.Model
	UserSettingsID       uint `gorm:"index"`
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

// InjectionRecord 记录某个日历日的注射结果
// RecordID 为对外暴露的 uuid，全局唯一；Date 归一到当日零点
// 同一日历日在对账逻辑中视作单一槽位
type InjectionRecord struct {
	gorm.Model
	RecordID    string    `gorm:"uniqueIndex"`
	Date        time.Time `gorm:"index"`
	DoseMg      float64
	Missed      bool
	Rescheduled bool
	Notes       string
}
