package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/fusion-engine/fusion/cli/pkg/output"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

var (
	decodeKind  string
	decodeLimit int
)

var decodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "Print the records of a stream file",
	Long: `Decode a newline-delimited record file written by the plugin.

Examples:
  # First 20 records as a table
  fusionctl decode accounts.jsonl --limit 20

  # Transactions only, as YAML
  fusionctl decode transactions.jsonl --kind transaction -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVar(&decodeKind, "kind", "", "only print records of this kind (account, transaction)")
	decodeCmd.Flags().IntVar(&decodeLimit, "limit", 0, "stop after this many records (0 = all)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	var kind event.Kind
	if decodeKind != "" {
		k, err := event.ParseKind(decodeKind)
		if err != nil {
			return err
		}
		kind = k
	}

	events, err := readEvents(args[0], kind, decodeLimit)
	if err != nil {
		return err
	}

	p := printer(cmd)
	if outputFormat != output.FormatTable {
		records := make([]map[string]interface{}, 0, len(events))
		for _, ev := range events {
			rec, err := genericRecord(ev)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		_, err := p.Structured(outputFormat, records)
		return err
	}

	table := output.NewTable([]string{"KIND", "SLOT", "KEY", "DETAIL"})
	for _, ev := range events {
		table.AddRow([]string{
			string(ev.Kind()),
			strconv.FormatUint(ev.AtSlot(), 10),
			ev.Key(),
			detail(ev),
		})
	}
	table.Render(p.Out)
	p.Info("%d records", len(events))
	return nil
}

func detail(ev event.Event) string {
	var parts []string
	switch v := ev.(type) {
	case *event.AccountEvent:
		parts = append(parts,
			"lamports="+strconv.FormatUint(v.Lamports, 10),
			"owner="+v.Owner.String(),
			fmt.Sprintf("data=%dB", len(v.Data)))
		if v.Executable {
			parts = append(parts, "executable")
		}
		if v.IsStartup {
			parts = append(parts, "startup")
		}
		if v.OriginSignature != nil {
			parts = append(parts, "origin="+v.OriginSignature.String())
		}
	case *event.TransactionEvent:
		if v.Index != nil {
			parts = append(parts, "index="+strconv.FormatUint(*v.Index, 10))
		}
		if v.IsVote {
			parts = append(parts, "vote")
		}
		parts = append(parts, fmt.Sprintf("tx=%dB", len(v.Transaction)))
	}
	return strings.Join(parts, " ")
}
