package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yujiajie1988/hive/cmd/hive/commands"
	"github.com/yujiajie1988/hive/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		storeDir string
		debug    bool
		noColor  bool
	)

	env := &commands.Environment{}

	rootCmd := &cobra.Command{
		Use:   "hive",
		Short: "Manage long-lived tool credentials behind one resolution surface",
		Long: `hive stores credentials once and lets tools declare what they need
without ever touching the secret values directly. Credentials live in an
encrypted-at-rest store by default; tools only ever see resolved headers,
query parameters, or body fields produced from a usage template.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env.Logger = logging.New(debug, noColor)
			return env.Open(storeDir)
		},
	}

	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", defaultStoreDir(), "Directory the encrypted credential store lives under")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		commands.NewGetCommand(env),
		commands.NewSaveCommand(env),
		commands.NewDeleteCommand(env),
		commands.NewListCommand(env),
		commands.NewResolveCommand(env),
		commands.NewHealthCommand(env),
	)

	return rootCmd.Execute()
}

func defaultStoreDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.hive/credentials"
	}
	return ".hive/credentials"
}
