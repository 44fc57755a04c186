package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/export"
	"github.com/universal-adapter/hubctl/internal/session"
)

var (
	chatFormat   string
	chatOutput   string
	chatNoStream bool
)

// chatCmd is an interactive loop: every line starts a new session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session with the hub agent",
	Long: `Read prompts line by line and run one discovery session per line.

Type "exit" or "quit" (or send EOF) to leave. With --output, the transcripts
of the sessions are exported on exit, one file per conversation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var exporter export.Exporter
		if chatOutput != "" {
			var err error
			exporter, err = export.NewExporter(chatFormat)
			if err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		c := session.New(session.FromClient(newClient()), sessionOptions())
		var p *livePrinter
		if !chatNoStream {
			p = newLivePrinter(out)
			c.OnUpdate(p.update)
		}

		var records []*internal.Session
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			_, _ = fmt.Fprint(out, titleStyle.Render("› "))
			if !scanner.Scan() {
				_, _ = fmt.Fprintln(out)
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			snap, err := runSession(ctx, c, line, out, p)
			if err != nil {
				internal.PrintError(out, err.Error())
				if ctx.Err() != nil {
					break
				}
				continue
			}
			records = append(records, session.BuildRecord(snap))
			if ctx.Err() != nil {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if exporter != nil {
			return writeRecords(cmd.ErrOrStderr(), exporter, records, chatOutput)
		}
		return nil
	},
}

// writeRecords exports each distinct record to dir
func writeRecords(w io.Writer, exporter export.Exporter, records []*internal.Session, dir string) error {
	unique := internal.NewDeduplicator().Deduplicate(records)
	if dropped := len(records) - len(unique); dropped > 0 {
		internal.LogInfo("Skipped %d duplicate session(s)", dropped)
	}
	for _, rec := range unique {
		if _, err := export.WriteFile(exporter, rec, dir); err != nil {
			return err
		}
	}
	internal.PrintSuccess(w, fmt.Sprintf("Exported %d session(s) to %s", len(unique), dir))
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatFormat, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	chatCmd.Flags().StringVarP(&chatOutput, "output", "o", "", "Directory to export transcripts to on exit")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Only print the final result of each session")
}
