package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yujiajie1988/hive/internal/clierr"
)

func NewGetCommand(env *Environment) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "get <credential-id>",
		Short: "Print one key's value from a stored credential",
		Long: `Retrieve and print a single key's value, refreshing the credential
first if its provider reports it needs refreshing.

Examples:
  hive get github_oauth --key access_token
  hive get brave_search_api_key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			ctx := cmd.Context()

			var value string
			var err error
			if key == "" {
				value, err = env.Store.GetDefault(ctx, id)
			} else {
				value, err = env.Store.GetKey(ctx, id, key)
			}
			if err != nil {
				return clierr.Explain(id, err)
			}

			fmt.Print(value)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Key name to fetch; defaults to the credential's default key")
	return cmd
}
