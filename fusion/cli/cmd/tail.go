package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/fusion-engine/common/messaging"
	natsclient "github.com/telhawk-systems/fusion-engine/common/messaging/nats"
	"github.com/telhawk-systems/fusion-engine/fusion/cli/pkg/output"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

var (
	tailURL     string
	tailStream  string
	tailSubject string
	tailAll     bool
	tailLimit   int
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the events the plugin publishes to JetStream",
	Long: `Attach an ephemeral consumer to the plugin's JetStream stream and print
each event as it arrives. Stops on Ctrl-C or after --limit events.

Examples:
  fusionctl tail --subject geyser.transactions
  fusionctl tail --all --limit 100 -o json`,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().StringVar(&tailURL, "url", "nats://localhost:4222", "NATS server URL")
	tailCmd.Flags().StringVar(&tailStream, "stream", natsclient.GeyserEventsStream.Name, "JetStream stream name")
	tailCmd.Flags().StringVar(&tailSubject, "subject", messaging.SubjectGeyserAll, "subject filter")
	tailCmd.Flags().BoolVar(&tailAll, "all", false, "replay the stream from the beginning")
	tailCmd.Flags().IntVar(&tailLimit, "limit", 0, "stop after this many events (0 = follow)")
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = tailURL
	natsCfg.Name = "fusionctl"
	js, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return err
	}
	defer js.Close()

	policy := jetstream.DeliverNewPolicy
	if tailAll {
		policy = jetstream.DeliverAllPolicy
	}

	p := printer(cmd)
	var seen atomic.Int64
	stopConsume, err := js.ConsumeMessages(ctx, tailStream, natsclient.ConsumerConfig{
		FilterSubject: tailSubject,
		DeliverPolicy: policy,
	}, func(_ context.Context, msg *messaging.Message) error {
		if tailLimit > 0 && seen.Load() >= int64(tailLimit) {
			return nil
		}
		line, err := formatTailLine(msg)
		if err != nil {
			p.Warn("%s: %v", msg.Subject, err)
			return nil
		}
		fmt.Fprintln(p.Out, line)
		if n := seen.Add(1); tailLimit > 0 && n >= int64(tailLimit) {
			cancel()
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer stopConsume()

	p.Info("following %s on %s", tailSubject, tailStream)
	<-ctx.Done()
	return nil
}

// formatTailLine renders one published event as a summary line, or as
// the raw record for json and yaml.
func formatTailLine(msg *messaging.Message) (string, error) {
	ev, err := event.Unmarshal(msg.Data)
	if err != nil {
		return "", err
	}
	if outputFormat == output.FormatTable {
		return fmt.Sprintf("%s  %-11s  slot=%d  %s  %s",
			msg.Timestamp.Format("15:04:05.000"),
			ev.Kind(), ev.AtSlot(), ev.Key(), detail(ev)), nil
	}
	return string(msg.Data), nil
}
