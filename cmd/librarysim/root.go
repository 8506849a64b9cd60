package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "LIBRARYSIM"

// Config keys. Flags carry the same names.
const (
	keyLogFormat    = "log-format"
	keyLogLevel     = "log-level"
	keyStore        = "store"
	keySnapshotFile = "snapshot-file"
	keySnapshotName = "snapshot-name"
	keyDSN          = "dsn"
	keyDriver       = "driver"
)

const (
	storeFile     = "file"
	storePostgres = "postgres"
	storeNone     = "none"

	driverPGX  = "pgx"
	driverSQL  = "sql"
	driverSQLX = "sqlx"

	logFormatText = "text"
	logFormatJSON = "json"
)

var (
	// ErrUnknownStore is returned for a --store value other than file, postgres, or none.
	ErrUnknownStore = errors.New("unknown snapshot store")

	// ErrUnknownDriver is returned for a --driver value other than pgx, sql, or sqlx.
	ErrUnknownDriver = errors.New("unknown database driver")

	// ErrUnknownLogFormat is returned for a --log-format value other than text or json.
	ErrUnknownLogFormat = errors.New("unknown log format")
)

// app carries what the commands share. Each root command has its own viper instance.
type app struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer
	errOut  io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "librarysim",
		Short:         "Simulate library patrons borrowing and returning books concurrently",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig(cmd)
		},
	}

	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.String(keyLogFormat, logFormatText, "log format: text or json")
	flags.String(keyLogLevel, "info", "log level: debug, info, warn, or error")
	flags.String(keyStore, storeFile, "snapshot store: file, postgres, or none")
	flags.String(keySnapshotFile, "library.json", "snapshot file for --store file")
	flags.String(keySnapshotName, "library", "snapshot name for --store postgres")
	flags.String(keyDSN, "", "PostgreSQL DSN for --store postgres")
	flags.String(keyDriver, driverPGX, "database driver for --store postgres: pgx, sql, or sqlx")

	rootCmd.AddCommand(newRunCmd(a), newInventoryCmd(a))

	return rootCmd
}

// initConfig layers flags over environment over a config file. Without --config,
// ./librarysim.yaml is read if it exists.
func (a *app) initConfig(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName("librarysim")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
	}

	if err := a.v.ReadInConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil
		}

		return fmt.Errorf("reading config: %w", err)
	}

	return nil
}

func (a *app) newLogger() (*slog.Logger, error) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(a.v.GetString(keyLogLevel))); err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: level}

	switch format := a.v.GetString(keyLogFormat); format {
	case logFormatText:
		return slog.New(slog.NewTextHandler(a.errOut, options)), nil
	case logFormatJSON:
		return slog.New(slog.NewJSONHandler(a.errOut, options)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLogFormat, format)
	}
}
