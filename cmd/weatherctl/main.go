package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"weather-etl/internal/config"
	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

const version = "1.0.0"

var loadableTables = []string{models.TableWeather, models.TableCropYield, models.TableWeatherTransformed}

// app carries what every subcommand needs. The database is opened lazily
// so a dry run never connects.
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	db      *database.DB
}

func main() {
	a := &app{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "weatherctl",
		Short:         "Create, load and transform the weather tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.AddCommand(newCreateTablesCmd(a))
	root.AddCommand(newLoadCmd(a))
	root.AddCommand(newTransformCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return err
	}

	a.cfg = cfg
	a.logger = logging.NewStructuredLogger("weatherctl", version, logging.ParseLevel(cfg.Logging.Level))
	a.metrics = metrics.NewCollector("weather_etl", nil)
	return nil
}

func (a *app) ingestion(ctx context.Context) (*services.IngestionService, error) {
	db, err := database.Open(a.cfg.DBConfig(), a.logger, a.metrics)
	if err != nil {
		a.logger.Error(ctx, "[CLI_ERROR] Failed to connect to database", logging.Fields{
			"driver": a.cfg.Database.Driver,
		}, err)
		return nil, err
	}
	a.db = db

	repo := repository.NewWeatherRepository(db, a.logger, a.metrics)
	stats := services.NewStatisticsService(repo, a.logger, a.metrics)
	return services.NewIngestionService(repo, stats, a.logger, a.metrics), nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

func (a *app) fail(ctx context.Context, message string, fields logging.Fields, err error) error {
	a.logger.Error(ctx, message, fields, err)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}

func newCreateTablesCmd(a *app) *cobra.Command {
	var sel services.TableSelection

	cmd := &cobra.Command{
		Use:   "create-tables",
		Short: "Create the weather tables (all three when no flag is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, err := a.ingestion(ctx)
			if err != nil {
				return err
			}
			if err := svc.CreateTables(ctx, sel); err != nil {
				return a.fail(ctx, "[CLI_ERROR] Table creation failed", logging.Fields{}, err)
			}

			fmt.Println("Tables ready")
			return nil
		},
	}

	cmd.Flags().BoolVar(&sel.Weather, "weather", false, "Create "+models.TableWeather)
	cmd.Flags().BoolVar(&sel.CropYield, "crop-yield", false, "Create "+models.TableCropYield)
	cmd.Flags().BoolVar(&sel.Transformed, "transformed", false, "Create "+models.TableWeatherTransformed)
	return cmd
}

func newLoadCmd(a *app) *cobra.Command {
	var (
		table    string
		dir      string
		srcTable string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a table from its source files or source table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fields := logging.Fields{
				"table":     table,
				"dir":       dir,
				"src_table": srcTable,
				"dry_run":   dryRun,
			}

			a.logger.Info(ctx, "[CLI_LOAD] Starting load", fields)

			var (
				result *services.LoadResult
				err    error
			)
			if dryRun {
				result, err = services.DryRun(ctx, table, dir, a.logger, a.metrics)
			} else {
				var svc *services.IngestionService
				if svc, err = a.ingestion(ctx); err != nil {
					return err
				}
				result, err = svc.LoadTable(ctx, table, dir, srcTable)
			}
			if err != nil {
				return a.fail(ctx, "[CLI_ERROR] Load failed", fields, err)
			}

			printResult("LOAD COMPLETE", result, dryRun)
			return nil
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Target table: "+strings.Join(loadableTables, ", "))
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory holding wx_data and yld_data")
	cmd.Flags().StringVar(&srcTable, "src-table", models.TableWeather, "Source table of the transform")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse the source files without touching the database")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newTransformCmd(a *app) *cobra.Command {
	var srcTable string

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Aggregate the source table into " + models.TableWeatherTransformed,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, err := a.ingestion(ctx)
			if err != nil {
				return err
			}
			result, err := svc.LoadTable(ctx, models.TableWeatherTransformed, "", srcTable)
			if err != nil {
				return a.fail(ctx, "[CLI_ERROR] Transform failed", logging.Fields{"src_table": srcTable}, err)
			}

			printResult("TRANSFORM COMPLETE", result, false)
			return nil
		},
	}

	cmd.Flags().StringVar(&srcTable, "src-table", models.TableWeather, "Source table of the transform")
	return cmd
}

func printResult(title string, result *services.LoadResult, dryRun bool) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Table:            %s\n", result.Table)
	fmt.Printf("Source:           %s\n", result.Source)
	fmt.Printf("Prepared Records: %d\n", result.Loaded)
	if dryRun {
		fmt.Println("Dry run:          nothing written")
	} else {
		fmt.Printf("Inserted Records: %d\n", result.Inserted)
		fmt.Printf("Skipped Records:  %d\n", result.Skipped)
	}
	fmt.Printf("Duration:         %v\n", result.Duration)
	if secs := result.Duration.Seconds(); secs > 0 {
		fmt.Printf("Records/Second:   %.2f\n", float64(result.Loaded)/secs)
	}
}
