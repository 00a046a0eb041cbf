package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tagforge/internal/clix"
	"tagforge/internal/costtracker"
	"tagforge/internal/pipeline"
)

var (
	analyzeJSON   bool
	analyzeNoSave bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <owner>/<repo>",
	Short: "Run the tag pipeline for a repository",
	Long: `Runs every stage for one repository and prints the final tags, the tags
that were eliminated along the way and the estimated LLM cost. The report is
stored unless --no-save is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := clix.ParseRepo(args)
		if err != nil {
			return err
		}
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		report := appInstance.Orchestrator.Run(cmd.Context(), owner, repo)

		if !analyzeNoSave {
			stored, err := report.Stored()
			if err == nil {
				err = appInstance.Store.SaveReport(cmd.Context(), &stored)
			}
			if err != nil {
				log.Warnf("Failed to save report: %v", err)
			}
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			return report.Err()
		}

		printReport(report)
		printCost(cmd, appInstance.CostTracker)
		return report.Err()
	},
}

func printReport(r pipeline.AnalysisReport) {
	bold := color.New(color.Bold)
	bold.Printf("%s/%s", r.Owner, r.Repo)
	fmt.Printf("  (report %s, %dms)\n", r.ID, r.DurationMS)

	if !r.Success {
		fmt.Printf("%s at %s: %s\n", color.RedString("FAILED"), r.FailedAtStep, r.Error)
		return
	}
	fmt.Printf("%s  steps: %s\n", color.GreenString("OK"), strings.Join(r.StepsCompleted, ", "))
	for _, n := range r.Notes {
		fmt.Printf("  %s %s\n", color.YellowString("note:"), n)
	}

	fmt.Println()
	bold.Println("Final tags")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Tag", "Score"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	scores := finalScores(r)
	for i, tag := range r.FinalTags {
		score := "-"
		if s, ok := scores[tag]; ok {
			score = fmt.Sprintf("%.1f", s)
		}
		table.Append([]string{fmt.Sprint(i + 1), tag, score})
	}
	table.Render()

	elims := eliminations(r)
	if len(elims) == 0 {
		return
	}
	fmt.Println()
	bold.Println("Eliminated")
	table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Stage", "Tag", "Reason"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(elims)
	table.Render()
}

// finalScores maps tags to their score from the last critic round.
func finalScores(r pipeline.AnalysisReport) map[string]float64 {
	out := map[string]float64{}
	if r.TagCritic == nil || r.TagCritic.Result == nil {
		return out
	}
	for _, e := range r.TagCritic.Result.LastEvaluations {
		out[e.Tag] = e.Score
	}
	return out
}

func eliminations(r pipeline.AnalysisReport) [][]string {
	var rows [][]string
	if r.TagRule != nil {
		for _, e := range r.TagRule.Eliminated {
			rows = append(rows, []string{pipeline.StageTagRule, e.Tag, e.Reason})
		}
	}
	for _, e := range r.Overflow {
		rows = append(rows, []string{"overflow", e.Tag, e.Reason})
	}
	return rows
}

func printCost(cmd *cobra.Command, tracker costtracker.CostTracker) {
	total, err := tracker.TotalCost(cmd.Context())
	if err != nil || total == 0 {
		return
	}
	breakdown, _ := tracker.Breakdown(cmd.Context())
	parts := make([]string, 0, len(breakdown))
	for _, b := range breakdown {
		parts = append(parts, fmt.Sprintf("%s $%.6f (%d calls)", b.Operation, b.AmountUSD, b.Events))
	}
	fmt.Printf("\nEstimated cost: $%.6f  [%s]\n", total, strings.Join(parts, ", "))
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full report as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeNoSave, "no-save", false, "do not store the report")
	rootCmd.AddCommand(analyzeCmd)
}
