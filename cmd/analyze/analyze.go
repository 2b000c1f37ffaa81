package analyze

import (
	"github.com/spf13/cobra"

	"github.com/defectscan/defectscan-go/internal/analysis"
	"github.com/defectscan/defectscan-go/internal/conf"
)

// Command creates the analyze command for running one analysis batch over
// image files.
func Command(settings *conf.Settings) *cobra.Command {
	var projectID int64

	cmd := &cobra.Command{
		Use:   "analyze [image.jpg ...]",
		Short: "Analyze photos for house defects",
		Long:  "Run an analysis batch over the given photos and fold the results into the active project.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.ImageAnalysis(cmd.Context(), settings, args, projectID)
		},
	}

	cmd.Flags().Int64VarP(&projectID, "project", "p", 0, "Project id to analyze into, defaults to the last active project")

	return cmd
}
