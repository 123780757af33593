package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yujiajie1988/hive/internal/clierr"
)

func NewListCommand(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every credential id known to the store's backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := env.Store.ListCredentials(cmd.Context())
			if err != nil {
				return clierr.Explain("", err)
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
	return cmd
}
