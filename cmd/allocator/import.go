package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/utils"
	"github.com/google/subcommands"
)

type importCmd struct {
	ticker string
	file   string
	out    io.Writer
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import daily prices for a ticker from CSV" }
func (*importCmd) Usage() string {
	return `import -ticker <ticker> -file <prices.csv>

  Stores daily prices for a ticker. The CSV has rows of
  date,close[,adjusted_close] with dates as YYYY-MM-DD; an optional header
  row is skipped. Existing dates are replaced. Use -file - to read stdin.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "ticker", "", "ticker the prices belong to")
	f.StringVar(&c.file, "file", "", "CSV file to import, or - for stdin")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ticker := utils.NormalizeTicker(c.ticker)
	if ticker == "" || c.file == "" {
		fmt.Fprintln(os.Stderr, "both -ticker and -file are required")
		return subcommands.ExitUsageError
	}

	var r io.Reader = os.Stdin
	if c.file != "-" {
		file, err := os.Open(c.file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening %q: %v\n", c.file, err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		r = file
	}

	prices, err := historical.ParsePriceCSV(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %q: %v\n", c.file, err)
		return subcommands.ExitFailure
	}

	container, err := openContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening price store: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	if err := container.HistoryStore.SyncHistoricalPrices(ticker, prices); err != nil {
		fmt.Fprintf(os.Stderr, "Error importing prices: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(c.out, "imported %d prices for %s\n", len(prices), ticker)
	return subcommands.ExitSuccess
}
