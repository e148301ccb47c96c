package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/utils"
	"github.com/google/subcommands"
)

type allocateCmd struct {
	amount   float64
	tickers  string
	strategy string
	period   string
	asJSON   bool
	out      io.Writer
}

func (*allocateCmd) Name() string     { return "allocate" }
func (*allocateCmd) Synopsis() string { return "compute the optimal investment plan for a basket" }
func (*allocateCmd) Usage() string {
	return `allocate -amount <amount> -tickers <A,B,...> [-strategy balanced] [-period 1y] [-json]

  Splits the amount across up to six tickers using the stored price history
  of the chosen window (1mo, 6mo, 1y) and strategy (conservative, balanced,
  aggressive).
`
}

func (c *allocateCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.amount, "amount", 0, "amount to invest")
	f.StringVar(&c.tickers, "tickers", "", "comma separated tickers")
	f.StringVar(&c.strategy, "strategy", string(domain.StrategyBalanced), "conservative, balanced or aggressive")
	f.StringVar(&c.period, "period", string(domain.Window1Year), "lookback window: 1mo, 6mo or 1y")
	f.BoolVar(&c.asJSON, "json", false, "print the full response as JSON")
}

func (c *allocateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req := domain.AllocationRequest{
		Amount:   c.amount,
		Tickers:  utils.ParseTickers(c.tickers),
		Strategy: domain.Strategy(c.strategy),
		Period:   domain.Window(c.period),
	}
	if err := req.Normalize().Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return subcommands.ExitUsageError
	}

	container, err := openContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening price store: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	resp, err := container.AllocationService.Allocate(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", domain.KindOf(err), err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding response: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	printPlan(c.out, resp)
	return subcommands.ExitSuccess
}

func printPlan(out io.Writer, resp *domain.AllocationResponse) {
	tickers := make([]string, 0, len(resp.InvestmentPlan))
	for t := range resp.InvestmentPlan {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Ticker\tWeight\tAmount\tAnnual return\tProfit")
	for _, t := range tickers {
		fmt.Fprintf(w, "%s\t%.2f%%\t%.2f\t%.2f%%\t%.2f\n",
			t,
			resp.Weights[t]*100,
			resp.InvestmentPlan[t],
			resp.IndividualReturns[t]*100,
			resp.IndividualProfits[t],
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\nExpected annual return: %.2f%%\n", resp.ExpectedReturn*100)
	fmt.Fprintf(out, "Solver: %d iterations, kkt residual %.2e\n", resp.Solver.Iterations, resp.Solver.KKTResidual)
}
