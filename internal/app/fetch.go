package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/transync/internal/cli"
	"horse.fit/transync/internal/translation"
)

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	all := fs.Bool("all", false, "Poll every active job")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var jobID int64
	switch {
	case *all && fs.NArg() != 0:
		fmt.Fprintln(os.Stderr, "fetch --all does not accept a job id")
		return 2
	case !*all && fs.NArg() != 1:
		fmt.Fprintln(os.Stderr, "fetch requires one argument: job id (or --all)")
		return 2
	case !*all:
		id, err := parseJobIDArg(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		jobID = id
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, runtime, err := connectEngine(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer runtime.Close()

	if *all {
		stats, err := runtime.manager.FetchActive(ctx)
		if outputFormat == outputFormatJSON {
			if encodeErr := printJSON(stats); encodeErr != nil {
				fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encodeErr)
				return 1
			}
		} else {
			fmt.Printf("fetched jobs=%d failed=%d waiting=%d %s\n", stats.Jobs, stats.Failed, stats.Waiting, formatFetchTotals(stats.Totals))
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fetch finished with errors: %v\n", err)
			return 1
		}
		return 0
	}

	stats, err := runtime.manager.Fetch(ctx, jobID)
	if err != nil {
		fmt.Fprintln(os.Stderr, describeEngineError(err, jobID))
		return 1
	}
	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	if stats.Waiting {
		fmt.Printf("fetched job_id=%d waiting for the order to be processed\n", jobID)
		return 0
	}
	fmt.Printf("fetched job_id=%d %s\n", jobID, formatFetchTotals(stats))
	return 0
}

func formatFetchTotals(stats translation.FetchStats) string {
	return fmt.Sprintf(
		"orders=%d new_jobs=%d records=%d filled=%d created=%d translated=%d",
		stats.Orders,
		stats.NewJobs,
		stats.Records,
		stats.Filled,
		stats.Created,
		stats.Translated,
	)
}
