package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/doselog/internal/db"
	"github.com/doselog/internal/dose"
	"github.com/doselog/internal/schedule"
)

// ErrInvalidConfiguration 当当前方案无法得出有效剂量时返回
// （浓度或注射器容积为 0 等，计算结果为 Inf/NaN）
var ErrInvalidConfiguration = errors.New("invalid dose configuration")

// ScheduleService 组合设置、记录与日程核心，产出日历与图表视图
type ScheduleService struct {
	settings *SettingsService
	records  *RecordService
}

// DayView 是日历单日的展示数据
type DayView struct {
	Date     time.Time
	Status   schedule.Status
	DoseMg   float64
	Color    string
	Protocol string
	RecordID string
	Notes    string
}

// HistoryPoint 是剂量历史曲线上的一个点
type HistoryPoint struct {
	Date   time.Time
	DoseMg float64
}

// HistoryMarker 标注一次方案切换
type HistoryMarker struct {
	Date     time.Time
	Protocol string
	Color    string
}

// HistorySeries 汇总剂量历史与方案切换标注
type HistorySeries struct {
	Points  []HistoryPoint
	Markers []HistoryMarker
}

// NewScheduleService 构造 ScheduleService
func NewScheduleService(settings *SettingsService, records *RecordService) *ScheduleService {
	return &ScheduleService{settings: settings, records: records}
}

// MonthView 生成指定月份的排期对账视图
// 排期由方案历史推导，记录按日历日匹配，today 决定 pending/upcoming 分界
func (s *ScheduleService) MonthView(year int, month time.Month, today time.Time) ([]DayView, error) {
	settings, err := s.settings.GetOrCreate()
	if err != nil {
		return nil, err
	}

	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	monthEnd := monthStart.AddDate(0, 1, -1)

	periods := Periods(settings)
	doses := schedule.ScheduleForRange(periods, monthStart, monthEnd)

	records, err := s.records.ListBetween(monthStart, monthEnd)
	if err != nil {
		return nil, err
	}

	reconciled := schedule.Reconcile(doses, ToScheduleRecords(records), today)

	views := make([]DayView, 0, len(reconciled))
	for _, day := range reconciled {
		view := DayView{
			Date:   day.Date,
			Status: day.Status,
		}

		if day.PeriodIndex >= 0 && day.PeriodIndex < len(settings.Protocols) {
			entry := settings.Protocols[day.PeriodIndex]
			view.Color = entry.DisplayColor
			view.Protocol = entry.Protocol

			if proto, ok := dose.ParseProtocol(entry.Protocol); ok {
				calc := dose.Calculate(entry.WeeklyDoseMg, entry.ConcentrationMgPerMl, protocolSyringe(entry), proto)
				if calc.Valid() {
					view.DoseMg = calc.MgPerInjection
				}
			}
		}

		if day.Record != nil {
			view.RecordID = day.Record.ID
			view.Notes = day.Record.Notes
			if day.Record.DoseMg > 0 {
				view.DoseMg = day.Record.DoseMg
			}
		}

		views = append(views, view)
	}
	return views, nil
}

// DoseSummary 基于当前方案计算头部展示的剂量数据
func (s *ScheduleService) DoseSummary() (dose.Calculation, *db.ProtocolSettings, error) {
	settings, err := s.settings.GetOrCreate()
	if err != nil {
		return dose.Calculation{}, nil, err
	}

	current := CurrentProtocol(settings)
	if current == nil {
		return dose.Calculation{}, nil, ErrSettingsNotFound
	}

	proto, ok := dose.ParseProtocol(current.Protocol)
	if !ok {
		return dose.Calculation{}, current, fmt.Errorf("%w: unknown protocol %s", ErrInvalidConfiguration, current.Protocol)
	}

	calc := dose.Calculate(current.WeeklyDoseMg, current.ConcentrationMgPerMl, protocolSyringe(*current), proto)
	if !calc.Valid() {
		return dose.Calculation{}, current, ErrInvalidConfiguration
	}
	return calc, current, nil
}

// HistorySeries 产出剂量历史曲线：已完成记录的剂量点加方案切换标注
func (s *ScheduleService) HistorySeries() (*HistorySeries, error) {
	settings, err := s.settings.GetOrCreate()
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListAll()
	if err != nil {
		return nil, err
	}

	series := &HistorySeries{}
	for _, r := range records {
		if r.Missed {
			continue
		}
		series.Points = append(series.Points, HistoryPoint{Date: r.Date, DoseMg: r.DoseMg})
	}

	for _, p := range settings.Protocols {
		series.Markers = append(series.Markers, HistoryMarker{
			Date:     p.StartDate,
			Protocol: p.Protocol,
			Color:    p.DisplayColor,
		})
	}
	return series, nil
}

func protocolSyringe(entry db.ProtocolSettings) dose.Syringe {
	return dose.Syringe{
		VolumeMl:    entry.SyringeVolumeMl,
		TotalUnits:  entry.SyringeTotalUnits,
		DeadSpaceMl: entry.SyringeDeadSpaceMl,
	}
}
