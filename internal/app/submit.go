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

func runSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "submit requires one argument: job id")
		return 2
	}
	jobID, err := parseJobIDArg(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
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

	result, err := runtime.manager.Submit(ctx, jobID)
	if err != nil {
		fmt.Fprintln(os.Stderr, describeEngineError(err, jobID))
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Println(formatSubmitStats(jobID, result.Stats))
	return 0
}

func formatSubmitStats(jobID int64, stats translation.SubmitStats) string {
	line := fmt.Sprintf(
		"submitted job_id=%d sent=%d duplicates=%d skipped=%d mapped=%d placeholders=%d translated=%d held=%d",
		jobID,
		stats.Sent,
		stats.Duplicates,
		stats.Skipped,
		stats.Mapped,
		stats.Placeholders,
		stats.Translated,
		stats.Held,
	)
	if stats.OrderID != "" {
		line += " order_id=" + stats.OrderID
	}
	return line
}

func runQuote(args []string) int {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "quote requires one argument: job id")
		return 2
	}
	jobID, err := parseJobIDArg(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel, runtime, err := connectEngine(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer runtime.Close()

	quote, err := runtime.manager.Quote(ctx, jobID)
	if err != nil {
		fmt.Fprintln(os.Stderr, describeEngineError(err, jobID))
		return 1
	}
	if err := printJSON(quote); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
