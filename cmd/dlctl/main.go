// dlctl: консольный клиент к хранилищу datalogger (seed, экспорт,
// импорт, архив, отчёты) без HTTP-сервера.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"datalogger/internal/app"
	"datalogger/internal/config"
	"datalogger/internal/logging"
)

// rootOpts: значения persistent-флагов; применяются поверх config.Load,
// только если флаг задан явно.
type rootOpts struct {
	configPath string
	store      string
	dataFile   string
	db         string
	sqlite     string
	seed       string
	options    string
	location   string
	logLevel   string
	blobDriver string
	filesRoot  string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &rootOpts{}
	root := &cobra.Command{
		Use:           "dlctl",
		Short:         "Manage a datalogger store from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "config.json", "Path to config JSON")
	pf.StringVar(&o.store, "store", "", "Store driver (memory/file/postgres/sqlite)")
	pf.StringVar(&o.dataFile, "data-file", "", "State file (store=file)")
	pf.StringVar(&o.db, "db", "", "Postgres URL (store=postgres)")
	pf.StringVar(&o.sqlite, "sqlite", "", "SQLite path (store=sqlite)")
	pf.StringVar(&o.seed, "seed", "", "Path to seed DSL directory")
	pf.StringVar(&o.options, "options", "", "Path to select option catalogs")
	pf.StringVar(&o.location, "location", "", "Time zone for report date bounds")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level")
	pf.StringVar(&o.blobDriver, "blob-driver", "", "Blob driver (local/s3)")
	pf.StringVar(&o.filesRoot, "files-root", "", "Local export archive root (blob=local)")

	open := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := o.load(cmd)
		if err != nil {
			return nil, err
		}
		log, err := logging.New(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		return app.New(cmd.Context(), cfg, log)
	}

	root.AddCommand(
		newSeedCmd(open),
		newExportCmd(open),
		newImportCmd(open),
		newArchiveCmd(open),
		newReportCmd(open),
		newActionsCmd(),
	)
	return root
}

// load: config.Load, затем явно заданные флаги, затем Validate.
func (o *rootOpts) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("store", &cfg.StoreDriver, o.store)
	set("data-file", &cfg.DataFile, o.dataFile)
	set("db", &cfg.DBURL, o.db)
	set("sqlite", &cfg.SQLitePath, o.sqlite)
	set("seed", &cfg.SeedDir, o.seed)
	set("options", &cfg.OptionsDir, o.options)
	set("location", &cfg.Location, o.location)
	set("log-level", &cfg.LogLevel, o.logLevel)
	set("blob-driver", &cfg.BlobDriver, o.blobDriver)
	set("files-root", &cfg.FilesRoot, o.filesRoot)
	return cfg, cfg.Validate()
}

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "dlctl: %v\n", err)
		os.Exit(1)
	}
}

// withApp открывает хранилище на время одной команды.
func withApp(cmd *cobra.Command, open opener, fn func(a *app.App) error) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Log.Warn("store close failed", zap.Error(err))
		}
		_ = a.Log.Sync()
	}()
	return fn(a)
}

type opener func(cmd *cobra.Command) (*app.App, error)
