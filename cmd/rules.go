package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tagforge/internal/clix"
	"tagforge/internal/rules"
)

var rulesTags string

var rulesCmd = &cobra.Command{
	Use:   "rules [tag...]",
	Short: "Check tags against the lexical rules",
	Long: `Runs the rule filter used by the pipeline on the given tags, taken from the
arguments and from --tags, and shows which tags pass and why the rest fail.`,
	Annotations: map[string]string{skipAppAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		tags := append(append([]string{}, args...), clix.SplitList(rulesTags)...)
		if len(tags) == 0 {
			return fmt.Errorf("no tags given")
		}

		res := cfg.Pipeline.Rules.Filter(tags)
		printRuleResult(res)
		return nil
	},
}

func printRuleResult(res rules.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Tag", "Result"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, t := range res.ValidTags {
		table.Append([]string{t, color.GreenString("valid")})
	}
	for _, e := range res.Eliminated {
		table.Append([]string{e.Tag, color.RedString(e.Reason)})
	}
	table.Render()
	fmt.Printf("%d of %d tags valid\n", len(res.ValidTags), res.TotalInput)
}

func init() {
	rulesCmd.Flags().StringVar(&rulesTags, "tags", "", "comma-separated tags")
	rootCmd.AddCommand(rulesCmd)
}
