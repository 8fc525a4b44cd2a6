package dose

import (
	"fmt"
	"math"
	"strings"
)

// Protocol 表示注射频率方案
// daily/e2d/e3d/weekly 分别对应每日、隔日、三日一次、每周
type Protocol string

const (
	ProtocolDaily  Protocol = "daily"
	ProtocolE2D    Protocol = "e2d"
	ProtocolE3D    Protocol = "e3d"
	ProtocolWeekly Protocol = "weekly"
)

// Syringe 描述注射器的物理参数
// TotalUnits/VolumeMl 给出每毫升刻度数，用于剂量换算
// DeadSpaceMl 仅作记录展示，不参与当前剂量公式
type Syringe struct {
	VolumeMl    float64
	TotalUnits  float64
	DeadSpaceMl float64
}

// Calculation 是由方案配置与周剂量推导出的单针数据，不做持久化
type Calculation struct {
	MgPerInjection       float64
	VolumePerInjectionMl float64
	UnitsPerInjection    float64
	InjectionsPerWeek    float64
}

// ParseProtocol 归一化方案字符串，未知值返回 false
func ParseProtocol(raw string) (Protocol, bool) {
	switch Protocol(strings.ToLower(strings.TrimSpace(raw))) {
	case ProtocolDaily:
		return ProtocolDaily, true
	case ProtocolE2D:
		return ProtocolE2D, true
	case ProtocolE3D:
		return ProtocolE3D, true
	case ProtocolWeekly:
		return ProtocolWeekly, true
	default:
		return "", false
	}
}

// InjectionsPerWeek 返回各方案的每周注射次数
// 固定查表：e3d 按 7/3 计，与 DaysBetween 的 3 天间隔并非严格互为倒数，
// 两张表各自独立锁定，保持与历史行为一致
func InjectionsPerWeek(p Protocol) float64 {
	switch p {
	case ProtocolDaily:
		return 7
	case ProtocolE2D:
		return 3.5
	case ProtocolE3D:
		return 7.0 / 3.0
	case ProtocolWeekly:
		return 1
	default:
		return 0
	}
}

// DaysBetween 返回相邻两针之间的天数，用于生成日程
func DaysBetween(p Protocol) int {
	switch p {
	case ProtocolDaily:
		return 1
	case ProtocolE2D:
		return 2
	case ProtocolE3D:
		return 3
	case ProtocolWeekly:
		return 7
	default:
		return 0
	}
}

// Calculate 由周剂量与方案配置推导单针剂量、容积和刻度数
// 本函数不做校验：浓度或注射器容积为 0 时结果为 Inf/NaN，
// 由调用方通过 Valid 判定后处理
func Calculate(weeklyDoseMg, concentrationMgPerMl float64, syringe Syringe, p Protocol) Calculation {
	mgPerInjection := weeklyDoseMg / InjectionsPerWeek(p)
	volumeMl := mgPerInjection / concentrationMgPerMl
	units := volumeMl * (syringe.TotalUnits / syringe.VolumeMl)

	return Calculation{
		MgPerInjection:       mgPerInjection,
		VolumePerInjectionMl: volumeMl,
		UnitsPerInjection:    units,
		InjectionsPerWeek:    InjectionsPerWeek(p),
	}
}

// Valid 检查计算结果是否可用（配置非法时为 Inf/NaN）
func (c Calculation) Valid() bool {
	for _, v := range []float64{c.MgPerInjection, c.VolumePerInjectionMl, c.UnitsPerInjection} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Format 按单位格式化展示值：mg 保留 1 位小数，mL 保留 3 位，units 取整
func Format(value float64, unit string) string {
	switch unit {
	case "mg":
		return fmt.Sprintf("%.1f mg", value)
	case "mL":
		return fmt.Sprintf("%.3f mL", value)
	case "units":
		return fmt.Sprintf("%d units", int(math.Round(value)))
	default:
		return fmt.Sprintf("%g %s", value, unit)
	}
}
