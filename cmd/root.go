package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pypeclub/tmplbuild/internal/builder"
	"github.com/pypeclub/tmplbuild/internal/config"
	"github.com/pypeclub/tmplbuild/internal/database"
	"github.com/pypeclub/tmplbuild/internal/loader"
	"github.com/pypeclub/tmplbuild/internal/scene"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	dbPath      string
	sceneRoot   string
	workfile    string
	logLevel    string
	jsonLog     bool
	verifyFiles bool
	runCtx      config.Context
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to tmplbuild.yaml")
	pf.StringVar(&dbPath, "db", "", "Asset database (SQLite); overrides config")
	pf.StringVar(&sceneRoot, "scene-root", "", "Directory holding workfiles and templates; overrides config")
	pf.StringVarP(&workfile, "workfile", "w", "", "Workfile path relative to the scene root (default {asset}_{task}.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level; overrides config")
	pf.BoolVar(&jsonLog, "json-log", false, "Log as JSON")
	pf.BoolVar(&verifyFiles, "verify-files", false, "Fail loads whose published file is missing")

	pf.StringVar(&runCtx.Project, "project", "", "Project name")
	pf.StringVar(&runCtx.Asset, "asset", "", "Current asset")
	pf.StringVar(&runCtx.Task, "task", "", "Current task")
	pf.StringVar(&runCtx.TaskType, "task-type", "", "Current task type")
	pf.StringVar(&runCtx.Host, "host", "", "Host application the profiles are selected for (default "+defaultHost+")")
}

// defaultHost applies when neither --host nor TMPLBUILD_HOST is set.
const defaultHost = "scene"

var rootCmd = &cobra.Command{
	Use:           "tmplbuild",
	Short:         "tmplbuild: populate workfile templates from the asset database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is everything a subcommand needs for one run.
type session struct {
	cfg     *config.Config
	ctx     config.Context
	log     *logrus.Logger
	db      *database.SQLite
	scene   *scene.Host
	builder *builder.Builder
}

func (s *session) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if sceneRoot != "" {
		cfg.Scene.Root = sceneRoot
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	if jsonLog {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return cfg, log, nil
}

// openSession loads config, opens the database and the current workfile,
// and wires a builder over them.
func openSession() (*session, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ctx, err := runContext()
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, ctx: ctx, log: log, db: db}

	root, err := filepath.Abs(cfg.Scene.Root)
	if err != nil {
		s.Close()
		return nil, err
	}
	fs := osfs.New(root)
	s.scene, err = scene.Open(scene.HostConfig{
		FS:     fs,
		Path:   workfilePath(ctx),
		Asset:  ctx.Asset,
		Logger: log,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	ref := scene.ReferenceLoader{}
	if verifyFiles {
		ref.FS = osfs.New("/")
	}
	s.builder, err = builder.New(builder.Config{
		Host:    s.scene,
		DB:      db,
		Loaders: loader.NewRegistry(ref),
		Context: ctx,
		Logger:  log,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// runContext merges the context flags over the TMPLBUILD_* environment.
func runContext() (config.Context, error) {
	ctx, err := config.ContextFromEnv(runCtx, nil)
	if err != nil {
		return config.Context{}, err
	}
	if ctx.Host == "" {
		ctx.Host = defaultHost
	}
	return ctx, ctx.Validate()
}

func workfilePath(ctx config.Context) string {
	if workfile != "" {
		return workfile
	}
	name := ctx.Asset
	if ctx.Task != "" {
		name += "_" + ctx.Task
	}
	return strings.ReplaceAll(name, string(filepath.Separator), "_") + ".yaml"
}
