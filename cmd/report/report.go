package report

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/defectscan/defectscan-go/internal/analysis"
	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/gateway"
	"github.com/defectscan/defectscan-go/internal/model"
)

// Command creates the report command for generating a PDF from selected
// defect ids.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "report [defect-id ...]",
		Short: "Generate a PDF report for selected defects",
		Long: "Ask the backend for a PDF report covering the given defect ids and save it to the " +
			"working directory. With no ids, every analyzed record of the active project is included. " +
			"Ids that only exist locally are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args
			if len(ids) == 0 {
				env := analysis.NewEnvironment(settings)
				defer env.Close()

				env.Store.Initialize(cmd.Context())
				for _, record := range env.Store.Records() {
					if record.Status == model.StatusDone {
						ids = append(ids, record.ID.String())
					}
				}
				if len(ids) == 0 {
					return fmt.Errorf("no analyzed defects in the active project")
				}
			}

			client := gateway.New(settings)
			defer client.Close()

			path, ok := client.GenerateFromIDs(cmd.Context(), ids)
			if !ok {
				return fmt.Errorf("report generation failed, no PDF was produced")
			}
			fmt.Printf("Report saved to %s\n", path)
			return nil
		},
	}
}
