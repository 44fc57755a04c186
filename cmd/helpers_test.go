package cmd

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/testutil"
)

func TestMain(m *testing.M) {
	// Plain output regardless of where the test binary's stdout goes.
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

// resetFlags restores every flag of c and its children to its default,
// since rootCmd is shared by all tests
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs rootCmd with args against an isolated config and returns
// what it wrote to stdout and stderr
func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	testutil.IsolateConfig(t)
	internal.SetLogOutput(io.Discard)
	t.Cleanup(func() { internal.SetVerbose(false) })
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))

	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}
