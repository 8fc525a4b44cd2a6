package schedule

import (
	"time"

	"github.com/doselog/internal/dose"
)

// Period 表示方案历史中的一段配置区间
// 历史按插入顺序追加，最后一项始终是当前方案
type Period struct {
	Start    time.Time
	Protocol dose.Protocol
}

// ActiveProtocolIndex 返回指定日期生效的方案下标
// 规则：在所有 Start<=date 的条目中取 Start 最大者；
// 同一 Start 出现多次时后插入者胜出（顺序遍历天然满足）。
// 若日期早于全部起始日，回退到起始日最早的条目。
// 每次查询都重新求值，不做缓存：迭代历史记录的过程中方案表可能被追加
func ActiveProtocolIndex(date time.Time, periods []Period) int {
	if len(periods) == 0 {
		return -1
	}

	day := NormalizeDate(date)

	active := -1
	for i, p := range periods {
		start := NormalizeDate(p.Start)
		if start.After(day) {
			continue
		}
		if active == -1 || !start.Before(NormalizeDate(periods[active].Start)) {
			active = i
		}
	}
	if active >= 0 {
		return active
	}

	// 早于全部起始日：回退到最早的条目
	earliest := 0
	for i := 1; i < len(periods); i++ {
		if NormalizeDate(periods[i].Start).Before(NormalizeDate(periods[earliest].Start)) {
			earliest = i
		}
	}
	return earliest
}

// ScheduledDose 表示跨方案日程中的一个排期日
type ScheduledDose struct {
	Date        time.Time
	PeriodIndex int
}

// ScheduleForRange 依据方案历史生成 [from, to] 区间内的排期
// 每段方案从自身起始日按各自间隔步进，直至下一段方案接管（下一段的起始日归下一段）
func ScheduleForRange(periods []Period, from, to time.Time) []ScheduledDose {
	if len(periods) == 0 || to.Before(from) {
		return nil
	}

	rangeStart := NormalizeDate(from)
	rangeEnd := NormalizeDate(to)

	var doses []ScheduledDose
	for i, p := range periods {
		interval := dose.DaysBetween(p.Protocol)
		if interval <= 0 {
			continue
		}

		bound := rangeEnd.AddDate(0, 0, 1)
		if i+1 < len(periods) {
			next := NormalizeDate(periods[i+1].Start)
			if next.Before(bound) {
				bound = next
			}
		}

		for d := NormalizeDate(p.Start); d.Before(bound); d = d.AddDate(0, 0, interval) {
			if d.Before(rangeStart) {
				continue
			}
			doses = append(doses, ScheduledDose{Date: d, PeriodIndex: i})
		}
	}
	return doses
}
