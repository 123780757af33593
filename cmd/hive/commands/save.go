package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yujiajie1988/hive/internal/clierr"
	"github.com/yujiajie1988/hive/pkg/credential"
)

var validKinds = map[string]credential.Kind{
	"API_KEY":      credential.KindAPIKey,
	"OAUTH2":       credential.KindOAuth2,
	"BASIC_AUTH":   credential.KindBasicAuth,
	"BEARER_TOKEN": credential.KindBearerToken,
	"CUSTOM":       credential.KindCustom,
}

func NewSaveCommand(env *Environment) *cobra.Command {
	var (
		kind            string
		keyPairs        []string
		healthCheckName string
	)

	cmd := &cobra.Command{
		Use:   "save <credential-id>",
		Short: "Create or overwrite a credential's keys",
		Long: `Save writes one credential object, replacing it entirely if it
already exists. Keys are given as name=value pairs.

Examples:
  hive save brave_search_api_key --kind API_KEY --key api_key=BSA-xxx
  hive save github_oauth --kind OAUTH2 \
    --key access_token=gho_xxx --key refresh_token=ghr_xxx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			k, ok := validKinds[strings.ToUpper(kind)]
			if !ok {
				return fmt.Errorf("unknown credential kind %q", kind)
			}
			if len(keyPairs) == 0 {
				return fmt.Errorf("at least one --key name=value is required")
			}

			obj := credential.NewObject(id, k)
			obj.HealthCheckName = healthCheckName

			for _, pair := range keyPairs {
				name, value, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("invalid --key %q, expected name=value", pair)
				}
				obj.SetKey(credential.Key{Name: name, Value: credential.NewSecret(value)})
			}

			if err := env.Store.SaveCredential(cmd.Context(), obj); err != nil {
				return clierr.Explain(id, err)
			}

			fmt.Printf("saved %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "API_KEY", "Credential kind: API_KEY, OAUTH2, BASIC_AUTH, BEARER_TOKEN, CUSTOM")
	cmd.Flags().StringArrayVar(&keyPairs, "key", nil, "A name=value key; repeatable")
	cmd.Flags().StringVar(&healthCheckName, "health-check", "", "Named health checker to associate with this credential")

	return cmd
}
