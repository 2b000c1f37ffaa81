package projects

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/defectscan/defectscan-go/internal/analysis"
	"github.com/defectscan/defectscan-go/internal/conf"
)

// Command creates the projects command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage inspection projects",
	}

	cmd.AddCommand(listCommand(settings), createCommand(settings), deleteCommand(settings))

	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := analysis.NewEnvironment(settings)
			defer env.Close()

			env.Store.Initialize(cmd.Context())

			projectList := env.Store.Projects()
			if len(projectList) == 0 {
				fmt.Println("No projects on the backend.")
				return nil
			}

			activeID := env.Store.ActiveProjectID()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tCREATED")
			for i := range projectList {
				p := &projectList[i]
				marker := ""
				if p.ID == activeID {
					marker = " *"
				}
				fmt.Fprintf(w, "%d%s\t%s\t%s\t%s\n",
					p.ID, marker, p.Name, p.Address, p.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func createCommand(settings *conf.Settings) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project and make it active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := analysis.NewEnvironment(settings)
			defer env.Close()

			env.Store.Initialize(cmd.Context())

			project := env.Store.AddProject(cmd.Context(), args[0], address)
			if project == nil {
				return fmt.Errorf("failed to create project %q on the backend", args[0])
			}
			fmt.Printf("Created project %d: %s\n", project.ID, project.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Street address of the inspected property")

	return cmd
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a project and its defect records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}

			env := analysis.NewEnvironment(settings)
			defer env.Close()

			env.Store.Initialize(cmd.Context())

			if !env.Store.DeleteProject(cmd.Context(), id) {
				return fmt.Errorf("failed to delete project %d", id)
			}
			fmt.Printf("Deleted project %d\n", id)
			return nil
		},
	}
}
