// opreport prints trading history from the local data store: finished maker
// sessions and individual fills, optionally restricted to one account.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"opinion-trader/internal/cfg"
	"opinion-trader/internal/storage"
)

func main() {
	var (
		dataPath = flag.String("data", "", "data directory (defaults to DATA_PATH)")
		account  = flag.String("account", "", "account remark, empty means all")
		since    = flag.Duration("since", 7*24*time.Hour, "how far back to report")
		fills    = flag.Bool("fills", false, "list individual fills instead of sessions")
	)
	flag.Parse()

	if *dataPath == "" {
		s, err := cfg.LoadSettings()
		if err != nil {
			log.Fatal().Err(err).Msg("settings load failed")
		}
		*dataPath = s.DataPath
	}
	if *dataPath == "" {
		log.Fatal().Msg("no data path, set -data or DATA_PATH")
	}

	store, err := storage.Open(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("storage open failed")
	}
	defer store.Close()

	start := time.Now().Add(-*since)
	end := time.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	// An empty remark asks the store for every account's records.
	if *fills {
		reportFills(w, store, *account, start, end)
	} else {
		reportSessions(w, store, *account, start, end)
	}
}

func reportSessions(w *tabwriter.Writer, store *storage.Store, remark string, start, end time.Time) {
	sessions, err := store.GetSessions(remark, start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("session query failed")
	}
	fmt.Fprintln(w, "ACCOUNT\tMARKET\tSTART\tDURATION\tBUY$\tSELL$\tPNL\tDRAWDOWN\tSTOP REASON")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.2f\t%.2f\t%.4f\t%.4f\t%s\n",
			s.Remark, s.MarketID,
			s.Start.Format("2006-01-02 15:04"),
			s.End.Sub(s.Start).Round(time.Second),
			s.BuyCost, s.SellRevenue, s.RealizedPnL, s.MaxDrawdown, s.StopReason)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "(no sessions in range)")
	}
}

func reportFills(w *tabwriter.Writer, store *storage.Store, remark string, start, end time.Time) {
	fills, err := store.GetFills(remark, start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("fill query failed")
	}
	fmt.Fprintln(w, "ACCOUNT\tTIME\tSIDE\tPRICE\tSHARES\tAMOUNT")
	for _, f := range fills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\t%d\t%.2f\n",
			f.Remark, f.Ts.Format("2006-01-02 15:04:05"), f.Side, f.Price, f.Shares, f.Amount)
	}
	if len(fills) == 0 {
		fmt.Fprintln(w, "(no fills in range)")
	}
}
