package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yujiajie1988/hive/internal/clierr"
)

func NewResolveCommand(env *Environment) *cobra.Command {
	var failOnMissing bool

	cmd := &cobra.Command{
		Use:   "resolve <template>",
		Short: "Resolve a {{id.key}} template against the store",
		Long: `Resolve substitutes every {{id}} / {{id.key}} reference in the given
template string with the live credential value.

Example:
  hive resolve 'Authorization: Bearer {{github_oauth.access_token}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := env.Store.Resolve(cmd.Context(), args[0], failOnMissing)
			if err != nil {
				return clierr.Explain("", err)
			}
			fmt.Print(resolved)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnMissing, "fail-on-missing", true, "Fail instead of leaving a reference to an unknown credential untouched")
	return cmd
}
