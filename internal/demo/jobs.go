package demo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	storage "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage"
	"github.com/tigerroll/surfin-engine/pkg/batch/component/step/reader"
	"github.com/tigerroll/surfin-engine/pkg/batch/component/step/writer"
	"github.com/tigerroll/surfin-engine/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/runner"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/support/parameters"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step/item"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const moduleName = "demo"

// Job names.
const (
	HelloJobName    = "helloJob"
	ForecastJobName = "forecastJob"
)

// Connection names the forecast job expects under surfin.datasources and surfin.storage.
const (
	WarehouseRef = "warehouse"
	ExportsRef   = "exports"
)

// helloTasklet logs a greeting for the "name" parameter.
type helloTasklet struct{}

func (helloTasklet) Execute(ctx context.Context, contribution *model.StepContribution, stepExecution *model.StepExecution) (model.RepeatStatus, error) {
	name := "world"
	if stepExecution.JobExecution != nil {
		if v, ok := stepExecution.JobExecution.Parameters.GetString("name"); ok && v != "" {
			name = v
		}
	}
	logger.Infof("Hello, %s!", name)
	stepExecution.ExecutionContext.Put("greeted", name)
	return model.RepeatStatusFinished, nil
}

type forecastArgs struct {
	day      time.Time
	stations int
	corrupt  int
}

func forecastArgsFrom(params model.JobParameters) (forecastArgs, error) {
	args := forecastArgs{stations: 3}
	day, ok := params.GetDate("date")
	if !ok {
		date, _ := params.GetString("date")
		var err error
		if day, err = parameters.ParseDate(date); err != nil {
			return args, exception.NewFatalError(moduleName, fmt.Sprintf("invalid date parameter %q", date), err)
		}
	}
	args.day = day.UTC().Truncate(24 * time.Hour)
	if n, ok := params.GetLong("stations"); ok && n > 0 {
		args.stations = int(n)
	}
	if n, ok := params.GetLong("corrupt"); ok && n > 0 {
		args.corrupt = int(n)
	}
	return args, nil
}

// exportReader pages through the forecasts of the run date.
type exportReader struct {
	resolver database.DBConnectionResolver
	paging   *reader.GormPagingItemReader[HourlyForecast]
}

var (
	_ port.ItemReader[HourlyForecast] = (*exportReader)(nil)
	_ port.ItemStream                 = (*exportReader)(nil)
)

func (r *exportReader) Open(ctx context.Context, ec model.ExecutionContext) error {
	se := port.GetStepExecutionFromContext(ctx)
	if se == nil || se.JobExecution == nil {
		return exception.NewFatalError(moduleName, "export reader opened outside a step execution", nil)
	}
	args, err := forecastArgsFrom(se.JobExecution.Parameters)
	if err != nil {
		return err
	}
	query := map[string]interface{}{"day": args.day.Format("2006-01-02")}
	r.paging = reader.NewGormPagingItemReader[HourlyForecast]("forecasts", r.resolver, WarehouseRef, query, "station, time", 100)
	return r.paging.Open(ctx, ec)
}

func (r *exportReader) Read(ctx context.Context) (HourlyForecast, error) {
	if r.paging == nil {
		return HourlyForecast{}, exception.NewFatalError(moduleName, "export reader is not open", nil)
	}
	return r.paging.Read(ctx)
}

func (r *exportReader) Update(ctx context.Context, ec model.ExecutionContext) error {
	if r.paging == nil {
		return nil
	}
	return r.paging.Update(ctx, ec)
}

func (r *exportReader) Close(ctx context.Context) error {
	if r.paging == nil {
		return nil
	}
	err := r.paging.Close(ctx)
	r.paging = nil
	return err
}

// JobsParams are the fx inputs of NewJobs. The database and storage inputs are only
// present when the CLI wires the corresponding adapters.
type JobsParams struct {
	fx.In
	Config     *config.Config
	Builder    *runner.JobBuilder
	Repository repository.JobRepository
	TxManager  tx.TransactionManager
	Listeners  *listener.Registry                     `optional:"true"`
	DBResolver database.DBConnectionResolver          `optional:"true"`
	TxFactory  *gormadapter.TransactionManagerFactory `optional:"true"`
	Storage    storage.StorageConnectionResolver      `optional:"true"`
	// DBProviders run the warehouse migrations.
	DBProviders []database.DBProvider `group:"db_providers"`
}

// JobsResult contributes the demo jobs to the "jobs" group.
type JobsResult struct {
	fx.Out
	Jobs []port.Job `group:"jobs,flatten"`
}

// NewJobs builds helloJob and, when a warehouse datasource is configured, forecastJob.
func NewJobs(p JobsParams) (JobsResult, error) {
	jobs := []port.Job{NewHelloJob(p)}

	if _, ok := p.Config.Surfin.Datasources[WarehouseRef]; !ok || p.DBResolver == nil || p.TxFactory == nil {
		logger.Infof("Datasource '%s' is not configured; %s is not registered.", WarehouseRef, ForecastJobName)
		return JobsResult{Jobs: jobs}, nil
	}
	forecast, err := NewForecastJob(p)
	if err != nil {
		return JobsResult{}, err
	}
	return JobsResult{Jobs: append(jobs, forecast)}, nil
}

// NewHelloJob builds helloJob: a single tasklet step. It takes an optional "name"
// parameter and supports StartNextInstance through run.id.
func NewHelloJob(p JobsParams) port.Job {
	helloStep := tasklet.NewTaskletStep("helloStep", helloTasklet{}, p.Repository, p.TxManager, p.Listeners, step.Options{AllowStartIfComplete: true})
	return p.Builder.Build(HelloJobName, []port.Step{helloStep},
		runner.WithIncrementer(incrementer.NewRunIDIncrementer(incrementer.DefaultRunIDKey)),
		runner.WithValidator(parameters.NewDefaultJobParametersValidator(nil, []string{"name", incrementer.DefaultRunIDKey})),
	)
}

// NewForecastJob builds forecastJob. Parameters: date (required, identifying),
// stations (long, default 3) and corrupt (long, readings with a broken timestamp).
// Steps: schemaStep applies the warehouse migrations, loadStep upserts the readings of the date and,
// when the exports storage is configured, exportStep writes them as parquet partitioned by day.
func NewForecastJob(p JobsParams) (port.Job, error) {
	batchCfg := p.Config.Surfin.Batch
	skipCfg := batchCfg.ItemSkip
	if _, ok := skipCfg.CategoryLimits[exception.ParseErrorName]; !ok {
		limits := map[string]int{exception.ParseErrorName: 10}
		for k, v := range skipCfg.CategoryLimits {
			limits[k] = v
		}
		skipCfg.CategoryLimits = limits
	}
	batchCfg.ItemSkip = skipCfg

	warehouseTx := p.TxFactory.NewTransactionManager(WarehouseRef)
	resourceless := tx.NewResourcelessTransactionManager()

	// DDL runs outside a warehouse transaction; golang-migrate also reopens the connection.
	schema, err := migration.NewMigrationTasklet(p.Config, p.DBProviders, Migrations(), map[string]interface{}{
		"db_ref": WarehouseRef,
		"table":  MigrationTable,
	})
	if err != nil {
		return nil, err
	}

	steps := []port.Step{
		tasklet.NewTaskletStep("schemaStep", schema, p.Repository, resourceless, p.Listeners, step.Options{AllowStartIfComplete: true}),
		item.NewChunkStep[Reading, *HourlyForecast](
			"loadStep",
			&readingReader{},
			NewForecastProcessor(),
			writer.NewGormItemWriter[*HourlyForecast]("forecastWriter", writer.WithUpsert([]string{"station", "time"}, "day", "weather_code", "temperature_2m", "collected_at")),
			batchCfg.ChunkSize,
			p.Repository,
			warehouseTx,
			item.FromConfig(batchCfg),
			item.WithRegistry(p.Listeners),
		),
	}

	if _, ok := p.Config.Surfin.Storage[ExportsRef]; ok && p.Storage != nil {
		parquetWriter, err := writer.NewParquetItemWriter[HourlyForecast]("forecast", map[string]interface{}{
			"storage_ref":     ExportsRef,
			"output_base_dir": "hourly_forecast",
		}, p.Storage, func(f HourlyForecast) (string, error) { return "dt=" + f.Day, nil })
		if err != nil {
			return nil, err
		}
		steps = append(steps, item.NewChunkStep[HourlyForecast, HourlyForecast](
			"exportStep",
			&exportReader{resolver: p.DBResolver},
			nil,
			parquetWriter,
			batchCfg.ChunkSize,
			p.Repository,
			resourceless,
			item.FromConfig(p.Config.Surfin.Batch),
			item.WithRegistry(p.Listeners),
		))
	} else {
		logger.Infof("Storage '%s' is not configured; %s runs without exportStep.", ExportsRef, ForecastJobName)
	}

	return p.Builder.Build(ForecastJobName, steps,
		runner.WithValidator(parameters.NewDefaultJobParametersValidator([]string{"date"}, []string{"stations", "corrupt"})),
	), nil
}

// Module registers the demo jobs.
var Module = fx.Provide(NewJobs)
