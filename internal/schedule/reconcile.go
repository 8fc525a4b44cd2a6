package schedule

import (
	"strings"
	"time"
)

// Status 表示单个排期日与记录对账后的状态
type Status string

const (
	// StatusCompleted 当日存在 missed=false 的记录
	StatusCompleted Status = "completed"
	// StatusMissed 当日存在 missed=true 的记录
	StatusMissed Status = "missed"
	// StatusPendingLog 日期已过但没有任何记录，等待补录
	StatusPendingLog Status = "pending_log"
	// StatusUpcoming 日期为今天或未来且没有记录
	StatusUpcoming Status = "upcoming"
)

// Record 是对账所需的注射记录视图
type Record struct {
	ID          string
	Date        time.Time
	DoseMg      float64
	Missed      bool
	Rescheduled bool
	Notes       string
}

// Classify 将一个排期日归入四种状态之一
// 记录按日历日匹配，同日多条记录时取首条（先到先得）
func Classify(scheduled time.Time, records []Record, today time.Time) Status {
	day := NormalizeDate(scheduled)

	for _, r := range records {
		if SameDay(r.Date, day) {
			if r.Missed {
				return StatusMissed
			}
			return StatusCompleted
		}
	}

	if day.Before(NormalizeDate(today)) {
		return StatusPendingLog
	}
	return StatusUpcoming
}

// DayStatus 是对账结果中的一项
type DayStatus struct {
	Date        time.Time
	Status      Status
	PeriodIndex int
	Record      *Record
}

// Reconcile 将排期序列与记录集合对账，逐日给出状态
func Reconcile(doses []ScheduledDose, records []Record, today time.Time) []DayStatus {
	result := make([]DayStatus, 0, len(doses))
	for _, d := range doses {
		status := DayStatus{
			Date:        d.Date,
			Status:      Classify(d.Date, records, today),
			PeriodIndex: d.PeriodIndex,
		}
		for i := range records {
			if SameDay(records[i].Date, d.Date) {
				status.Record = &records[i]
				break
			}
		}
		result = append(result, status)
	}
	return result
}

// Resolution 表示漏针后的处理选项
type Resolution string

const (
	// ResolutionSkip 跳过本针，后续日程不变
	ResolutionSkip Resolution = "skip"
	// ResolutionShiftSchedule 整体顺延：方案起始日移到漏针次日
	ResolutionShiftSchedule Resolution = "shift_schedule"
	// ResolutionMaintainSchedule 保持原日程，仅标记漏针
	ResolutionMaintainSchedule Resolution = "maintain_schedule"
)

// ParseResolution 归一化处理选项，未知值返回 false
func ParseResolution(raw string) (Resolution, bool) {
	switch Resolution(strings.ToLower(strings.TrimSpace(raw))) {
	case ResolutionSkip:
		return ResolutionSkip, true
	case ResolutionShiftSchedule:
		return ResolutionShiftSchedule, true
	case ResolutionMaintainSchedule:
		return ResolutionMaintainSchedule, true
	default:
		return "", false
	}
}

// ApplyResolution 按选项更新记录标记，返回是否需要顺延方案起始日
// Skip/Maintain 仅置 missed=true；Shift 另置 rescheduled=true，
// 调用方须把当前方案的起始日改为漏针次日，使后续排期整体后移
func ApplyResolution(r *Record, option Resolution) (shiftStart bool) {
	r.Missed = true
	r.Rescheduled = option == ResolutionShiftSchedule
	return r.Rescheduled
}
