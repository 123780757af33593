package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yujiajie1988/hive/internal/clierr"
	"github.com/yujiajie1988/hive/internal/healthcheck"
)

func NewHealthCommand(env *Environment) *cobra.Command {
	var checkName string

	cmd := &cobra.Command{
		Use:   "health <credential-id>",
		Short: "Make one live API call to confirm a credential actually works",
		Long: `health fetches the credential's default key value and runs it through
the named health checker (falling back to the credential's own
HealthCheckName if --check is not given). A credential with no registered
checker is assumed valid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			ctx := cmd.Context()

			obj, err := env.Store.Get(ctx, id)
			if err != nil {
				return clierr.Explain(id, err)
			}

			name := checkName
			if name == "" {
				name = obj.HealthCheckName
			}

			value, err := env.Store.GetDefault(ctx, id)
			if err != nil {
				return clierr.Explain(id, err)
			}

			result := healthcheck.Check(ctx, name, value)
			if result.Valid {
				fmt.Printf("%s: healthy (%s)\n", id, result.Message)
				return nil
			}
			fmt.Printf("%s: unhealthy (%s)\n", id, result.Message)
			return fmt.Errorf("credential %s failed its health check", id)
		},
	}

	cmd.Flags().StringVar(&checkName, "check", "", "Health checker name to run; defaults to the credential's own HealthCheckName")
	return cmd
}
