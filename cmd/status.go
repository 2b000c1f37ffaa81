package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/gateway"
)

// statusCommand probes the backend health endpoint.
func statusCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check backend availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := gateway.New(settings)
			defer client.Close()

			if !client.Status(cmd.Context()) {
				return fmt.Errorf("backend at %s is not reachable", client.BaseURL())
			}
			fmt.Printf("Backend at %s is up\n", client.BaseURL())
			return nil
		},
	}
}
