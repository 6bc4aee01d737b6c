package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/issues/internal/output"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects with issue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectsRun()
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}

func projectsRun() error {
	projects, err := newClient().ListProjects(context.Background())
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		ui.Info("No projects yet. Add an issue to create one.")
		return nil
	}

	table := ui.Table([]string{"Project", "Issues", "Open"})
	for _, p := range projects {
		_ = table.Append([]string{
			output.Cyan(p.Name),
			strconv.Itoa(p.IssueCount),
			output.CountColor(p.OpenCount, p.IssueCount),
		})
	}
	_ = table.Render()
	return nil
}
