package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/google/subcommands"
)

type strategiesCmd struct {
	out io.Writer
}

func (*strategiesCmd) Name() string     { return "strategies" }
func (*strategiesCmd) Synopsis() string { return "list strategies and lookback windows" }
func (*strategiesCmd) Usage() string {
	return `strategies

  Prints each strategy with its risk aversion coefficient, and the
  supported lookback windows.
`
}

func (*strategiesCmd) SetFlags(*flag.FlagSet) {}

func (c *strategiesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Strategy\tRisk aversion")
	for _, s := range domain.Strategies {
		lambda, err := optimization.RiskAversion(s)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%g\n", s, lambda)
	}
	w.Flush()

	fmt.Fprint(c.out, "\nWindows:")
	for _, win := range domain.Windows {
		fmt.Fprintf(c.out, " %s", win)
	}
	fmt.Fprintln(c.out)
	return subcommands.ExitSuccess
}
