// Package demo holds the sample jobs shipped with the surfin command: a hello-world
// tasklet job and a forecast job that loads hourly readings into a warehouse table and
// exports them as parquet.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/surfin-engine/pkg/batch/component/item"
	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// ReadingTimeLayout is the timestamp layout of raw readings.
const ReadingTimeLayout = "2006-01-02T15:04"

// Reading is one raw hourly observation of a station.
type Reading struct {
	Station     string
	Time        string
	WeatherCode int
	Temperature float64
}

// HourlyForecast is the stored and exported form of a Reading.
type HourlyForecast struct {
	Station       string  `gorm:"column:station;primaryKey" parquet:"name=station, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time          int64   `gorm:"column:time;primaryKey" parquet:"name=time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Day           string  `gorm:"column:day;index" parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8"`
	WeatherCode   int32   `gorm:"column:weather_code" parquet:"name=weather_code, type=INT32"`
	Temperature2M float64 `gorm:"column:temperature_2m" parquet:"name=temperature_2m, type=DOUBLE"`
	CollectedAt   int64   `gorm:"column:collected_at" parquet:"name=collected_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// TableName returns the warehouse table of HourlyForecast.
func (HourlyForecast) TableName() string {
	return "hourly_forecast"
}

// GenerateReadings returns 24 hourly readings per station for day. Readings at 03:00
// carry the offline code -1. The first corrupt readings get an unparsable time.
func GenerateReadings(day time.Time, stations, corrupt int) []Reading {
	readings := make([]Reading, 0, stations*24)
	for s := 1; s <= stations; s++ {
		for h := 0; h < 24; h++ {
			code := h % 4
			if h == 3 {
				code = -1
			}
			readings = append(readings, Reading{
				Station:     fmt.Sprintf("ST%03d", s),
				Time:        day.Add(time.Duration(h) * time.Hour).Format(ReadingTimeLayout),
				WeatherCode: code,
				Temperature: 10 + float64(s) + float64(h)*0.5,
			})
		}
	}
	for i := 0; i < corrupt && i < len(readings); i++ {
		readings[i].Time = "n/a"
	}
	return readings
}

// readingReader generates the readings of the run date when the step opens and hands
// them out through a ListItemReader, which keeps the restart position.
type readingReader struct {
	list *item.ListItemReader[Reading]
}

var (
	_ port.ItemReader[Reading] = (*readingReader)(nil)
	_ port.ItemStream          = (*readingReader)(nil)
)

func (r *readingReader) Open(ctx context.Context, ec model.ExecutionContext) error {
	se := port.GetStepExecutionFromContext(ctx)
	if se == nil || se.JobExecution == nil {
		return exception.NewFatalError(moduleName, "reading reader opened outside a step execution", nil)
	}
	args, err := forecastArgsFrom(se.JobExecution.Parameters)
	if err != nil {
		return err
	}
	r.list = item.NewListItemReader(GenerateReadings(args.day, args.stations, args.corrupt)).WithKey("readings.read.count")
	return r.list.Open(ctx, ec)
}

func (r *readingReader) Read(ctx context.Context) (Reading, error) {
	if r.list == nil {
		return Reading{}, exception.NewFatalError(moduleName, "reading reader is not open", nil)
	}
	return r.list.Read(ctx)
}

func (r *readingReader) Update(ctx context.Context, ec model.ExecutionContext) error {
	if r.list == nil {
		return nil
	}
	return r.list.Update(ctx, ec)
}

func (r *readingReader) Close(ctx context.Context) error {
	r.list = nil
	return nil
}

// ForecastProcessor turns readings into HourlyForecast rows. Offline readings are
// filtered. A reading with a malformed time is a parse fault.
type ForecastProcessor struct {
	now func() time.Time
}

// NewForecastProcessor creates a ForecastProcessor stamping rows with the current time.
func NewForecastProcessor() *ForecastProcessor {
	return &ForecastProcessor{now: time.Now}
}

var _ port.ItemProcessor[Reading, *HourlyForecast] = (*ForecastProcessor)(nil)

// Process converts r. It returns nil for an offline reading.
func (p *ForecastProcessor) Process(ctx context.Context, r Reading) (*HourlyForecast, error) {
	if r.WeatherCode < 0 {
		logger.Debugf("ForecastProcessor: station %s is offline at %s, filtering.", r.Station, r.Time)
		return nil, nil
	}
	t, err := time.ParseInLocation(ReadingTimeLayout, r.Time, time.UTC)
	if err != nil {
		return nil, exception.NewParseError(moduleName, fmt.Sprintf("invalid time %q for station %s", r.Time, r.Station), err)
	}
	return &HourlyForecast{
		Station:       r.Station,
		Time:          t.UnixMilli(),
		Day:           t.Format("2006-01-02"),
		WeatherCode:   int32(r.WeatherCode),
		Temperature2M: r.Temperature,
		CollectedAt:   p.now().UnixMilli(),
	}, nil
}
