package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-engine/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/registry"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/support/parameters"
)

func newRootCommand(out io.Writer) *cobra.Command {
	var opts appOptions
	root := &cobra.Command{
		Use:           "surfin",
		Short:         "Run and inspect batch jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to the YAML configuration")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "path to a .env file (default: ./.env when present)")

	root.AddCommand(
		runCommand(&opts),
		nextCommand(&opts),
		restartCommand(&opts),
		stopCommand(&opts),
		jobsCommand(&opts),
		executionsCommand(&opts),
		migrateCommand(&opts),
	)
	return root
}

func printExecution(w io.Writer, je *model.JobExecution) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", je.ID, je.JobName, je.Status, je.ExitStatus.ExitCode)
}

// finished turns an unsuccessful or stopped execution into an error so that the
// process exits non-zero.
func finished(je *model.JobExecution) error {
	if je.Status == model.BatchStatusCompleted {
		return nil
	}
	return fmt.Errorf("job '%s' execution %s ended %s", je.JobName, je.ID, je.Status)
}

func runCommand(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <jobName> [key(type)=value | -key(type)=value ...]",
		Short: "Run a job in the foreground and print its execution",
		Long: "Run a job in the foreground. Parameters use the form key(type)=value where type is\n" +
			"string (default), long, double or date. A leading '-' marks a parameter non-identifying.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				locator  registry.JobLocator
				launcher *usecase.SimpleJobLauncher
			)
			return withApp(cmd.Context(), *opts, func(ctx context.Context) error {
				job, err := locator.GetJob(args[0])
				if err != nil {
					return err
				}
				params, err := parameters.NewDefaultJobParametersConverter().GetJobParameters(args[1:])
				if err != nil {
					return err
				}
				je, err := launcher.Run(ctx, job, params)
				if err != nil {
					return err
				}
				printExecution(cmd.OutOrStdout(), je)
				return finished(je)
			}, fx.Populate(&locator, &launcher))
		},
	}
}

func nextCommand(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next <jobName>",
		Short: "Run the next instance of a job, derived by its incrementer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				operator usecase.JobOperator
				launcher *usecase.SimpleJobLauncher
			)
			return withApp(cmd.Context(), *opts, func(ctx context.Context) error {
				je, err := operator.StartNextInstance(ctx, args[0])
				if err != nil {
					return err
				}
				if je, err = launcher.Await(ctx, je.ID); err != nil {
					return err
				}
				printExecution(cmd.OutOrStdout(), je)
				return finished(je)
			}, fx.Populate(&operator, &launcher))
		},
	}
}

func restartCommand(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <executionID>",
		Short: "Restart a FAILED or STOPPED execution (requires the sql repository)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				operator usecase.JobOperator
				launcher *usecase.SimpleJobLauncher
			)
			return withApp(cmd.Context(), *opts, func(ctx context.Context) error {
				je, err := operator.Restart(ctx, args[0])
				if err != nil {
					return err
				}
				if je, err = launcher.Await(ctx, je.ID); err != nil {
					return err
				}
				printExecution(cmd.OutOrStdout(), je)
				return finished(je)
			}, fx.Populate(&operator, &launcher))
		},
	}
}

func stopCommand(opts *appOptions) *cobra.Command {
	var abandon bool
	cmd := &cobra.Command{
		Use:   "stop <executionID>",
		Short: "Mark an execution STOPPING, or ABANDONED with --abandon (requires the sql repository)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var operator usecase.JobOperator
			return withApp(cmd.Context(), *opts, func(ctx context.Context) error {
				if abandon {
					je, err := operator.Abandon(ctx, args[0])
					if err != nil {
						return err
					}
					printExecution(cmd.OutOrStdout(), je)
					return nil
				}
				if err := operator.Stop(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tSTOPPING\n", args[0])
				return nil
			}, fx.Populate(&operator))
		},
	}
	cmd.Flags().BoolVar(&abandon, "abandon", false, "abandon the execution instead of stopping it")
	return cmd
}

func jobsCommand(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the registered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var operator usecase.JobOperator
			return withApp(cmd.Context(), *opts, func(ctx context.Context) error {
				for _, name := range operator.GetJobNames() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}, fx.Populate(&operator))
		},
	}
}

func executionsCommand(opts *appOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "executions <jobName>",
		Short: "List the latest instances of a job with their executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var explorer usecase.JobExplorer
			return withApp(cmd.Context(), *opts, func(ctx context.Context) error {
				instances, err := explorer.GetJobInstances(ctx, args[0], 0, count)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "INSTANCE\tEXECUTION\tSTATUS\tEXIT\tPARAMETERS")
				for _, instance := range instances {
					executions, err := explorer.GetJobExecutions(ctx, instance.ID)
					if err != nil {
						return err
					}
					for _, je := range executions {
						props := parameters.NewDefaultJobParametersConverter().GetProperties(je.Parameters)
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", instance.ID, je.ID, je.Status, je.ExitStatus.ExitCode, strings.Join(props, " "))
					}
				}
				return tw.Flush()
			}, fx.Populate(&explorer))
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 20, "number of instances to list")
	return cmd
}

// migrationInputs collects the DB providers for the migrate command.
type migrationInputs struct {
	fx.In
	Config    *config.Config
	Providers []database.DBProvider `group:"db_providers"`
}

func migrateCommand(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the job repository schema on the metadata datasource",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{migration.CommandUp, migration.CommandDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := migration.CommandUp
			if len(args) == 1 {
				command = strings.ToLower(args[0])
			}
			if command != migration.CommandUp && command != migration.CommandDown {
				return fmt.Errorf("unknown migration command %q", args[0])
			}
			var inputs migrationInputs
			capture := func(in migrationInputs) { inputs = in }
			return withApp(cmd.Context(), *opts, func(ctx context.Context) error {
				version, err := migration.RunFramework(ctx, inputs.Config, inputs.Providers, command)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tversion %d\n", inputs.Config.Surfin.Infrastructure.JobRepository.DBRef, command, version)
				return nil
			}, fx.Invoke(capture))
		},
	}
}
