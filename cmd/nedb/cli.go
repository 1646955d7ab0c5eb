package main

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Viper keys. Connection settings are nested so a config file's
// "connection:" block and the flags share one namespace.
const (
	keyConfig     = "config"
	keyIdentity   = "connection.identity"
	keyDBPath     = "connection.dbPath"
	keyInMemory   = "connection.inMemoryOnly"
	keyFormat     = "format"
	keyLogLevel   = "log-level"
	defaultFormat = "json"
)

// CLI wires the cobra command tree to one viper instance.
type CLI struct {
	rootCmd *cobra.Command
	v       *viper.Viper
	out     io.Writer
	errOut  io.Writer
	logger  zerolog.Logger
}

// NewCLI builds the command tree. Output goes to out, logs to errOut.
func NewCLI(out, errOut io.Writer) *CLI {
	cli := &CLI{
		v:      viper.New(),
		out:    out,
		errOut: errOut,
		logger: zerolog.Nop(),
	}
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// Run executes args as if given on the command line.
func (cli *CLI) Run(ctx context.Context, args []string) error {
	cli.rootCmd.SetArgs(args)
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "nedb",
		Short: "Query and edit NeDB data directories",
		Long: `nedb opens every model of a connection and runs one operation against it.

Configuration sources, highest precedence first:
  1. Command line flags
  2. Environment variables (NEDB_DB_PATH, NEDB_CONNECTION, NEDB_IN_MEMORY, NEDB_FORMAT, NEDB_LOG_LEVEL)
  3. Config file: --config, ./nedb.yaml or ~/.nedb/nedb.yaml

Config file:
  connection:
    identity: default
    dbPath: ./data
  models:
    - name: Pet
      attributes:
        name: {type: string, index: true}
        ownerId: {type: string, index: true}

Examples:
  nedb find Pet --where '{"age": {">": 2}}' --sort "age DESC" --limit 10
  nedb create Pet '{"name": "Rex", "age": 3}'
  nedb update Pet --where '{"name": "Rex"}' --values '{"age": 4}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.readConfig(); err != nil {
				return err
			}
			logger, err := newLogger(cli.v.GetString(keyLogLevel), cli.errOut)
			if err != nil {
				return err
			}
			cli.logger = logger
			return nil
		},
	}
	cli.rootCmd.SetOut(cli.out)
	cli.rootCmd.SetErr(cli.errOut)

	flags := cli.rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./nedb.yaml or ~/.nedb/nedb.yaml)")
	flags.StringP("db-path", "d", "", "Directory holding the model data files")
	flags.StringP("connection", "c", "default", "Connection identity")
	flags.Bool("in-memory", false, "Do not read or write data files")
	flags.StringP("format", "f", defaultFormat, "Output format (json|yaml)")
	flags.String("log-level", "warn", "Log level (trace|debug|info|warn|error)")

	bindings := map[string]string{
		keyConfig:   "config",
		keyDBPath:   "db-path",
		keyIdentity: "connection",
		keyInMemory: "in-memory",
		keyFormat:   "format",
		keyLogLevel: "log-level",
	}
	for key, flag := range bindings {
		_ = cli.v.BindPFlag(key, flags.Lookup(flag))
	}
	envs := map[string]string{
		keyConfig:   "NEDB_CONFIG",
		keyDBPath:   "NEDB_DB_PATH",
		keyIdentity: "NEDB_CONNECTION",
		keyInMemory: "NEDB_IN_MEMORY",
		keyFormat:   "NEDB_FORMAT",
		keyLogLevel: "NEDB_LOG_LEVEL",
	}
	for key, env := range envs {
		_ = cli.v.BindEnv(key, env)
	}
	cli.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
}

// readConfig loads the config file if one is named or found.
func (cli *CLI) readConfig() error {
	if path := cli.v.GetString(keyConfig); path != "" {
		cli.v.SetConfigFile(path)
	} else {
		cli.v.SetConfigName("nedb")
		cli.v.SetConfigType("yaml")
		cli.v.AddConfigPath(".")
		cli.v.AddConfigPath("$HOME/.nedb")
	}
	err := cli.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return NewConfigError("read configuration", err.Error(), CommonSuggestions.CheckConfig)
	}
	return nil
}

func (cli *CLI) addCommands() {
	cli.addFindCommand()
	cli.addCountCommand()
	cli.addCreateCommand()
	cli.addUpdateCommand()
	cli.addDestroyCommand()
	cli.addDescribeCommand()
	cli.addReindexCommand()
	cli.addExportCommand()
	cli.addDropCommand()
}
