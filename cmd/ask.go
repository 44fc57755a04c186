package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/export"
	"github.com/universal-adapter/hubctl/internal/session"
)

var (
	askFormat   string
	askOutput   string
	askNoStream bool
)

// askCmd runs one request cycle against the hub
var askCmd = &cobra.Command{
	Use:   "ask <prompt...>",
	Short: "Ask the hub agent and follow its discovery stream",
	Long: `Send one prompt to the hub agent.

The discovery stream is printed live while the agent searches the marketplace,
reuses a tool or forges a new one. When the agent answers, the answer, the
references it consulted and the source of any forged tool are printed.

With --format the session transcript is exported; it goes to stdout unless
--output names a directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		var exporter export.Exporter
		if askFormat != "" {
			var err error
			exporter, err = export.NewExporter(askFormat)
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		live := out
		if exporter != nil && askOutput == "" {
			// stdout carries the export
			live = cmd.ErrOrStderr()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c := session.New(session.FromClient(newClient()), sessionOptions())
		var p *livePrinter
		if !askNoStream {
			p = newLivePrinter(live)
			c.OnUpdate(p.update)
		}
		snap, err := runSession(ctx, c, prompt, live, p)
		if err != nil {
			return err
		}

		if exporter != nil {
			rec := session.BuildRecord(snap)
			if askOutput == "" {
				if err := exporter.Export(rec, out); err != nil {
					return fmt.Errorf("failed to export session: %w", err)
				}
			} else {
				path, err := export.WriteFile(exporter, rec, askOutput)
				if err != nil {
					return err
				}
				internal.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Session exported to %s", path))
			}
		}

		if snap.Error != "" {
			return fmt.Errorf("session failed: %s", snap.Error)
		}
		return nil
	},
}

// runSession starts prompt on c, waits for the session to settle and
// prints its summary. p, when set, must already be registered with c.
func runSession(ctx context.Context, c *session.Correlator, prompt string, w io.Writer, p *livePrinter) (session.Session, error) {
	if _, err := c.Start(ctx, prompt); err != nil {
		return session.Session{}, err
	}

	snap, err := c.Wait(ctx)
	if err != nil {
		c.Cancel()
		snap = c.Snapshot()
		if !errors.Is(err, context.Canceled) {
			return snap, err
		}
	}

	if p != nil {
		p.finish(snap, func() { printSummary(w, snap) })
	} else {
		printSummary(w, snap)
	}
	return snap, nil
}

// livePrinter prints discovery events as they arrive. It is driven by
// Correlator.OnUpdate; updates for a finished session are ignored.
type livePrinter struct {
	w io.Writer

	mu       sync.Mutex
	gen      uint64
	finished uint64
	printed  int
	phase    session.Phase
}

func newLivePrinter(w io.Writer) *livePrinter {
	return &livePrinter{w: w}
}

func (p *livePrinter) update(s session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Generation == p.finished {
		return
	}
	p.printLocked(s)
}

// finish prints whatever s holds that has not been printed yet, then runs
// summary while no update can interleave with it
func (p *livePrinter) finish(s session.Session, summary func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printLocked(s)
	p.finished = s.Generation
	summary()
}

func (p *livePrinter) printLocked(s session.Session) {
	if s.Generation != p.gen {
		p.gen = s.Generation
		p.printed = 0
		p.phase = ""
	}

	if s.Phase != p.phase && s.Phase != session.PhaseIdle {
		p.phase = s.Phase
		_, _ = fmt.Fprintln(p.w, headerStyle.Render("▸ "+s.Phase.String()))
	}

	if p.printed < s.Dropped {
		p.printed = s.Dropped
	}
	for i := p.printed - s.Dropped; i < len(s.Events); i++ {
		p.printEvent(s.Events[i])
	}
	if n := s.Dropped + len(s.Events); n > p.printed {
		p.printed = n
	}
}

func (p *livePrinter) printEvent(ev session.Event) {
	if ev.Kind() == session.KindConnected {
		return
	}
	msg := session.NormalizeEvent(ev)
	if strings.TrimSpace(msg.Content) == "" {
		return
	}

	label := msg.Actor
	if src := ev.Info().Source; src != "" && msg.Actor == "system" {
		label = src
	}
	_, _ = fmt.Fprintf(p.w, "  %s %s\n", actorStyle(msg.Actor).Render(label+":"), truncate(firstLine(msg.Content), 160))
}

// printSummary prints the outcome of a settled session
func printSummary(w io.Writer, s session.Session) {
	_, _ = fmt.Fprintln(w)

	if answer := session.Answer(s); answer != "" {
		_, _ = fmt.Fprintln(w, strings.TrimRight(renderMarkdown(w, answer), "\n"))
		_, _ = fmt.Fprintln(w)
	}

	calls := session.ToolCallCount(s)
	switch {
	case session.Reused(s):
		_, _ = fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("♻ Reused an existing tool (%d tool call(s))", calls)))
	case session.ForgeMode(s):
		_, _ = fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("⚒ Forged a new tool (%d tool call(s))", calls)))
	}

	if ft := s.ForgedTool; ft != nil {
		_, _ = fmt.Fprintln(w, titleStyle.Render("Forged tool: "+ft.Name))
		switch {
		case ft.Code != "":
			printCode(w, ft.Code, ft.Language)
		case ft.CodeUnavailable:
			_, _ = fmt.Fprintln(w, metaStyle.Render("Source code unavailable"))
		}
		_, _ = fmt.Fprintln(w)
	}

	if refs := session.References(s); len(refs) > 0 {
		_, _ = fmt.Fprintln(w, titleStyle.Render("References"))
		for _, ref := range refs {
			if ref.Label != "" {
				_, _ = fmt.Fprintf(w, "  • %s %s\n", ref.Label, linkStyle.Render(ref.URL))
			} else {
				_, _ = fmt.Fprintf(w, "  • %s\n", linkStyle.Render(ref.URL))
			}
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(s.Suggestions) > 0 {
		names := make([]string, 0, len(s.Suggestions))
		for _, t := range s.Suggestions {
			names = append(names, t.Name)
		}
		_, _ = fmt.Fprintln(w, metaStyle.Render("Related tools: "+strings.Join(names, ", ")))
	}

	if s.ConversationID != "" {
		_, _ = fmt.Fprintln(w, idStyle.Render("conversation "+s.ConversationID))
	}
	if s.Error != "" {
		internal.PrintError(w, s.Error)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askFormat, "format", "f", "", "Export the transcript (jsonl, md, yaml, json)")
	askCmd.Flags().StringVarP(&askOutput, "output", "o", "", "Directory to write the export to")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "Only print the final result")
}
