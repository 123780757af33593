package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yujiajie1988/hive/internal/clierr"
)

func NewDeleteCommand(env *Environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <credential-id>",
		Short: "Remove a credential from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			existed, err := env.Store.DeleteCredential(cmd.Context(), id)
			if err != nil {
				return clierr.Explain(id, err)
			}
			if !existed {
				fmt.Printf("%s did not exist\n", id)
				return nil
			}
			fmt.Printf("deleted %s\n", id)
			return nil
		},
	}
	return cmd
}
