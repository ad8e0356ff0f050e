package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	persistlog "pyre.dev/internal/persistence/log"
	"pyre.dev/internal/sim/engine"
)

func main() {
	var (
		dir   = flag.String("dir", "./data/journal", "journal directory containing journal-*.jsonl.zst")
		run   = flag.String("run", "", "only this run id")
		world = flag.String("world", "", "only entries for this world")
		dump  = flag.Bool("dump", false, "print every matching entry as JSON")
	)
	flag.Parse()

	files, err := persistlog.Files(*dir, persistlog.JournalPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files in", *dir)
		os.Exit(2)
	}

	type runStats struct {
		first, last uint64
		lastTime    float64
		kinds       map[string]int
		swaps       []string
	}
	runs := map[string]*runStats{}
	var order []string
	enc := json.NewEncoder(os.Stdout)

	err = persistlog.ReadJournal(*dir, func(e engine.Entry) error {
		if *run != "" && e.RunID != *run {
			return nil
		}
		if *world != "" && e.World != *world && e.From != *world && e.To != *world {
			return nil
		}
		if *dump {
			return enc.Encode(e)
		}
		rs := runs[e.RunID]
		if rs == nil {
			rs = &runStats{first: e.Tick, kinds: map[string]int{}}
			runs[e.RunID] = rs
			order = append(order, e.RunID)
		}
		rs.last = e.Tick
		rs.lastTime = e.SimTime
		rs.kinds[e.Kind]++
		if e.Kind == engine.EntrySwitch {
			rs.swaps = append(rs.swaps, fmt.Sprintf("t=%.2f %s -> %s", e.SimTime, e.From, e.To))
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read journal:", err)
		os.Exit(1)
	}
	if *dump {
		return
	}

	fmt.Printf("files=%d runs=%d\n", len(files), len(order))
	for _, id := range order {
		rs := runs[id]
		kinds := make([]string, 0, len(rs.kinds))
		for k := range rs.kinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Printf("run %s ticks %d..%d (t=%.2fs)\n", id, rs.first, rs.last, rs.lastTime)
		for _, k := range kinds {
			fmt.Printf("  %-10s %d\n", k, rs.kinds[k])
		}
		for _, s := range rs.swaps {
			fmt.Printf("  swap %s\n", s)
		}
	}
}
