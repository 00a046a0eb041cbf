package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tagforge/internal/clix"
	"tagforge/internal/store"
)

var (
	historyOwner string
	historyRepo  string
)

// historyCmd represents the base command for stored report operations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View stored analysis reports",
	Long:  `Lists reports saved by analyze, the API server and the worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listHistoryCmd.RunE(cmd, args)
	},
}

var listHistoryCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analyses, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		page, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}

		reports, err := appInstance.Store.ListReports(cmd.Context(), store.ReportFilter{
			Owner:  historyOwner,
			Repo:   historyRepo,
			Limit:  page.Limit,
			Offset: page.Offset,
		})
		if err != nil {
			return fmt.Errorf("error listing reports: %w", err)
		}
		if len(reports) == 0 {
			fmt.Println("No reports found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Repository", "Status", "Tags", "Created At"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetAutoWrapText(false)

		for _, r := range reports {
			status := color.GreenString("ok")
			if !r.Success {
				status = color.RedString("failed")
			}
			table.Append([]string{
				r.ID.String(),
				r.Owner + "/" + r.Repo,
				status,
				strings.Join(r.FinalTags, ", "),
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

var showHistoryCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print a stored report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid report ID %q: %w", args[0], err)
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		stored, err := appInstance.Store.GetReport(cmd.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("report %s not found", id)
			}
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, stored.Report, "", "  "); err != nil {
			return fmt.Errorf("stored report %s is not valid JSON: %w", id, err)
		}
		out.WriteByte('\n')
		_, err = out.WriteTo(os.Stdout)
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, listHistoryCmd} {
		c.Flags().IntP("limit", "n", 20, "Maximum number of reports to show")
		c.Flags().Int("offset", 0, "Number of reports to skip")
		c.Flags().StringVar(&historyOwner, "owner", "", "Only show reports for this owner")
		c.Flags().StringVar(&historyRepo, "repo", "", "Only show reports for this repository name")
	}

	historyCmd.AddCommand(listHistoryCmd)
	historyCmd.AddCommand(showHistoryCmd)
	rootCmd.AddCommand(historyCmd)
}
