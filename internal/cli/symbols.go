package cli

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	"github.com/drblury/livebridge/internal/runtime/metadata"
	"github.com/drblury/livebridge/internal/runtime/symbology"
)

// SymbolsOptions holds flags for the symbols command.
type SymbolsOptions struct {
	*RootOptions
	Date string
	PIT  bool
}

// Resolution is one instrument id lookup.
type Resolution struct {
	InstrumentID uint32 `json:"instrument_id"`
	Symbol       string `json:"symbol,omitempty"`
	Found        bool   `json:"found"`
}

// NewSymbolsCommand resolves instrument ids against a metadata snapshot.
func NewSymbolsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SymbolsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "symbols <metadata.json> [instrument_id...]",
		Short: "Resolve instrument ids through the symbol maps of a metadata snapshot",
		Long: `Loads a metadata JSON snapshot, as delivered to metadata callbacks, and
resolves instrument ids to symbols for one day. Without ids every mapping of
that day is listed. The day defaults to the snapshot's start date.`,
		Example: `  livebridge symbols md.json 15144 --date 2024-03-01
  livebridge symbols md.json --pit`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSymbols(opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "day to resolve (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.PIT, "pit", false, "resolve through a point-in-time map instead of the timeseries map")

	return cmd
}

func runSymbols(opts *SymbolsOptions, cmd *cobra.Command, path string, idArgs []string) error {
	out := opts.formatter(cmd)

	raw, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read metadata", err)
	}
	md, err := metadata.Parse(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "parse metadata", err)
	}

	date := metadata.DateOf(dbn.Time(md.Start))
	if opts.Date != "" {
		if date, err = metadata.ParseDate(opts.Date); err != nil {
			return WrapExitError(ExitCommandError, "invalid --date", err)
		}
	}

	ids := make([]uint32, 0, len(idArgs))
	for _, arg := range idArgs {
		id, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid instrument id %q", arg), err)
		}
		ids = append(ids, uint32(id))
	}

	pit, err := symbology.NewPitMapForDate(md, date)
	if err != nil {
		return WrapExitError(ExitCommandError, "build symbol map", err)
	}
	find := pit.Find
	if !opts.PIT && len(ids) > 0 {
		ts, err := symbology.NewTsMap(md)
		if err != nil {
			return WrapExitError(ExitCommandError, "build symbol map", err)
		}
		find = func(id uint32) (string, bool) { return ts.Find(date, id) }
	}

	if len(ids) == 0 {
		pit.Each(func(id uint32, _ string) { ids = append(ids, id) })
		slices.Sort(ids)
	}
	out.VerboseLog("resolving %d ids for %s", len(ids), date)

	results := make([]Resolution, 0, len(ids))
	missing := 0
	var text strings.Builder
	for _, id := range ids {
		symbol, ok := find(id)
		results = append(results, Resolution{InstrumentID: id, Symbol: symbol, Found: ok})
		if !ok {
			missing++
			symbol = "-"
		}
		fmt.Fprintf(&text, "%d\t%s\n", id, symbol)
	}

	if err := out.Success(strings.TrimSuffix(text.String(), "\n"), results); err != nil {
		return err
	}
	if missing > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d ids not found on %s", missing, len(ids), date))
	}
	return nil
}
