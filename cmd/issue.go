package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issues/internal/client"
	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/output"
)

var (
	issueTitle      string
	issueText       string
	issueCreatedBy  string
	issueAssignedTo string
	issueStatusText string
	issueClosed     bool
	issueOpen       bool
	issueFilters    []string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues on a running server",
	Long: `Manage issues through the REST API of a running 'issues serve'.

The server address comes from server.url (default http://localhost:3000).`,
}

var issueAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Add an issue to a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(args[0])
	},
}

var issueListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List issues in a project",
	Long: `List issues in a project.

Filters are key=value pairs on any issue field and may be repeated:

  issues issue list web --filter open=true --filter assigned_to=joe`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <project> <id>",
	Short: "Update an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(args[0], args[1], cmd.Flags().Changed("open"))
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <project> <id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCloseRun(args[0], args[1])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:   "delete <project> <id>",
	Short: "Delete an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0], args[1])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueText, "text", "", "Issue text (required)")
	issueAddCmd.Flags().StringVar(&issueCreatedBy, "by", "", "Author (required)")
	issueAddCmd.Flags().StringVar(&issueAssignedTo, "assign", "", "Assignee")
	issueAddCmd.Flags().StringVar(&issueStatusText, "status-text", "", "Free-form status text")
	issueAddCmd.Flags().BoolVar(&issueClosed, "closed", false, "Create the issue already closed")
	_ = issueAddCmd.MarkFlagRequired("title")
	_ = issueAddCmd.MarkFlagRequired("text")
	_ = issueAddCmd.MarkFlagRequired("by")

	issueListCmd.Flags().StringArrayVarP(&issueFilters, "filter", "f", nil, "Filter as key=value (repeatable)")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueText, "text", "", "New text")
	issueUpdateCmd.Flags().StringVar(&issueCreatedBy, "by", "", "New author")
	issueUpdateCmd.Flags().StringVar(&issueAssignedTo, "assign", "", "New assignee")
	issueUpdateCmd.Flags().StringVar(&issueStatusText, "status-text", "", "New status text")
	issueUpdateCmd.Flags().BoolVar(&issueOpen, "open", true, "Set the open state (--open=false closes)")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func newClient() *client.Client {
	return client.New(viper.GetString("server.url"))
}

// textFlags collects the non-empty text field flags.
func textFlags() map[string]any {
	fields := map[string]any{}
	for key, val := range map[string]string{
		models.FieldTitle:      issueTitle,
		models.FieldText:       issueText,
		models.FieldCreatedBy:  issueCreatedBy,
		models.FieldAssignedTo: issueAssignedTo,
		models.FieldStatusText: issueStatusText,
	} {
		if val != "" {
			fields[key] = val
		}
	}
	return fields
}

// parseFilters turns key=value pairs into query filters.
func parseFilters(pairs []string) (map[string]string, error) {
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q (want key=value)", pair)
		}
		filters[key] = val
	}
	return filters, nil
}

func issueAddRun(project string) error {
	fields := textFlags()
	if issueClosed {
		fields[models.FieldOpen] = false
	}

	if dryRun {
		ui.DryRunMsg("Would add issue to %s: %s", project, issueTitle)
		return nil
	}

	issue, err := newClient().AddIssue(context.Background(), project, fields)
	if err != nil {
		return fmt.Errorf("add issue: %w", err)
	}

	ui.Success("Created issue %s: %s", output.Cyan(issue.ID), issue.Title)
	return nil
}

func issueListRun(project string) error {
	filters, err := parseFilters(issueFilters)
	if err != nil {
		return err
	}

	issues, err := newClient().ListIssues(context.Background(), project, filters)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Created By", "Assigned", "Status", "State", "Updated"})
	for _, issue := range issues {
		_ = table.Append([]string{
			issue.ID,
			issue.Title,
			issue.CreatedBy,
			issue.AssignedTo,
			issue.StatusText,
			output.OpenLabel(issue.Open),
			issue.UpdatedOn.String(),
		})
	}
	_ = table.Render()
	return nil
}

func issueUpdateRun(project, id string, openChanged bool) error {
	fields := textFlags()
	if openChanged {
		fields[models.FieldOpen] = issueOpen
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s in %s", id, project)
		return nil
	}

	if err := newClient().UpdateIssue(context.Background(), project, id, fields); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Updated issue %s", output.Cyan(id))
	return nil
}

func issueCloseRun(project, id string) error {
	if dryRun {
		ui.DryRunMsg("Would close issue %s in %s", id, project)
		return nil
	}

	fields := map[string]any{models.FieldOpen: false}
	if err := newClient().UpdateIssue(context.Background(), project, id, fields); err != nil {
		return fmt.Errorf("close issue: %w", err)
	}

	ui.Success("Closed issue %s", output.Cyan(id))
	return nil
}

func issueDeleteRun(project, id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete issue %s from %s", id, project)
		return nil
	}

	if err := newClient().DeleteIssue(context.Background(), project, id); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}

	ui.Success("Deleted issue %s", output.Cyan(id))
	return nil
}
