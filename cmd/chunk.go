package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tagforge/internal/chunking"
	"tagforge/internal/collector"
)

var (
	chunkSize    int
	chunkOverlap int
	chunkPlain   bool
)

var chunkCmd = &cobra.Command{
	Use:         "chunk <file>",
	Short:       "Show how a README is split into overlapping chunks",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipAppAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		if collector.LooksBinary(raw) {
			return fmt.Errorf("%s looks like a binary file", args[0])
		}
		text := collector.CleanBytes(raw, args[0])
		if chunkPlain {
			text = collector.PlainText(text)
		}

		size, overlap := cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap
		if cmd.Flags().Changed("size") {
			size = chunkSize
		}
		if cmd.Flags().Changed("overlap") {
			overlap = chunkOverlap
		}
		chunks, err := chunking.Chunk(text, size, overlap)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"#", "Chars", "Starts with"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, c := range chunks {
			table.Append([]string{
				fmt.Sprint(c.Ordinal),
				fmt.Sprint(len([]rune(c.Text))),
				collector.Preview(strings.Join(strings.Fields(c.Text), " "), 60),
			})
		}
		table.Render()
		fmt.Printf("%d chunks (size %d, overlap %d)\n", len(chunks), size, overlap)
		return nil
	},
}

func init() {
	chunkCmd.Flags().IntVar(&chunkSize, "size", chunking.DefaultChunkSize, "chunk size in characters")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", chunking.DefaultOverlap, "overlap between chunks in characters")
	chunkCmd.Flags().BoolVar(&chunkPlain, "plain", false, "strip markup before chunking")
	rootCmd.AddCommand(chunkCmd)
}
