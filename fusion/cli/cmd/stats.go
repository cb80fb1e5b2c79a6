package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/fusion-engine/fusion/cli/pkg/output"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

// streamStats summarizes the records of one kind.
type streamStats struct {
	Kind    event.Kind `json:"kind" yaml:"kind"`
	Records uint64     `json:"records" yaml:"records"`
	MinSlot uint64     `json:"min_slot" yaml:"min_slot"`
	MaxSlot uint64     `json:"max_slot" yaml:"max_slot"`
	Startup uint64     `json:"startup,omitempty" yaml:"startup,omitempty"`
	Votes   uint64     `json:"votes,omitempty" yaml:"votes,omitempty"`
}

func (s *streamStats) add(ev event.Event) {
	slot := ev.AtSlot()
	if s.Records == 0 || slot < s.MinSlot {
		s.MinSlot = slot
	}
	if slot > s.MaxSlot {
		s.MaxSlot = slot
	}
	s.Records++

	switch v := ev.(type) {
	case *event.AccountEvent:
		if v.IsStartup {
			s.Startup++
		}
	case *event.TransactionEvent:
		if v.IsVote {
			s.Votes++
		}
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats <file>...",
	Short: "Summarize one or more stream files",
	Long: `Count records per kind and report the slot range they cover.

Example:
  fusionctl stats accounts.jsonl transactions.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func collectStats(paths []string) ([]streamStats, error) {
	byKind := make(map[event.Kind]*streamStats, len(event.Kinds))
	for _, kind := range event.Kinds {
		byKind[kind] = &streamStats{Kind: kind}
	}

	for _, path := range paths {
		events, err := readEvents(path, "", 0)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			byKind[ev.Kind()].add(ev)
		}
	}

	out := make([]streamStats, 0, len(event.Kinds))
	for _, kind := range event.Kinds {
		out = append(out, *byKind[kind])
	}
	return out, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := collectStats(args)
	if err != nil {
		return err
	}

	p := printer(cmd)
	if handled, err := p.Structured(outputFormat, stats); handled {
		return err
	}

	table := output.NewTable([]string{"KIND", "RECORDS", "SLOTS", "STARTUP", "VOTES"})
	for _, s := range stats {
		slots := "-"
		if s.Records > 0 {
			slots = strconv.FormatUint(s.MinSlot, 10) + ".." + strconv.FormatUint(s.MaxSlot, 10)
		}
		table.AddRow([]string{
			string(s.Kind),
			strconv.FormatUint(s.Records, 10),
			slots,
			strconv.FormatUint(s.Startup, 10),
			strconv.FormatUint(s.Votes, 10),
		})
	}
	table.Render(p.Out)
	return nil
}
