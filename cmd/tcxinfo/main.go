// Command tcxinfo decodes a TCX file and prints the activity as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/meltforce/tcxstat/internal/ingest/tcx"
)

func main() {
	onlyGPS := flag.Bool("only-gps", true, "drop trackpoints without a position")
	nullHandling := flag.String("null-handling", "none", "missing sample handling: none or linear")
	withPoints := flag.Bool("trackpoints", false, "include trackpoints in the output")
	verbose := flag.Bool("v", false, "log fields that fail to parse")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: tcxinfo [flags] <file.tcx[.gz|.zst]>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts, err := tcx.Options(*onlyGPS, *nullHandling)
	if err != nil {
		log.Error("invalid flags", "error", err)
		os.Exit(2)
	}
	opts = append(opts, tcx.WithLogger(log))

	act, err := tcx.ReadFile(flag.Arg(0), opts...)
	if err != nil {
		log.Error("decode failed", "error", err)
		os.Exit(1)
	}
	if !*withPoints {
		act.Trackpoints = nil
		for i := range act.Laps {
			act.Laps[i].Trackpoints = nil
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(act); err != nil {
		log.Error("encode failed", "error", err)
		os.Exit(1)
	}
}
