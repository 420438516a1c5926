package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/transync/internal/cli"
)

func runLanguages(args []string) int {
	fs := flag.NewFlagSet("languages", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	source := fs.String("source", "", "Local source language to filter language pairs by")
	pairs := fs.Bool("pairs", false, "List language pairs instead of languages")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "languages does not accept positional arguments")
		return 2
	}
	if *source != "" && !*pairs {
		fmt.Fprintln(os.Stderr, "--source requires --pairs")
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

	if *pairs {
		list, err := runtime.manager.LanguagePairs(ctx, *source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list language pairs: %v\n", err)
			return 1
		}
		if outputFormat == outputFormatJSON {
			if err := printJSON(list); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
				return 1
			}
			return 0
		}
		rows := make([][]string, 0, len(list))
		for _, pair := range list {
			rows = append(rows, []string{
				pair.LcSrc,
				pair.LcTgt,
				pair.Tier,
				strconv.FormatFloat(float64(pair.UnitPrice), 'f', -1, 64),
				pair.Currency,
			})
		}
		if err := writeTable([]string{"source", "target", "tier", "unit_price", "currency"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render language pairs table: %v\n", err)
			return 1
		}
		return 0
	}

	list, err := runtime.manager.Languages(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list languages: %v\n", err)
		return 1
	}
	if outputFormat == outputFormatJSON {
		if err := printJSON(list); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	rows := make([][]string, 0, len(list))
	for _, language := range list {
		rows = append(rows, []string{language.Code, language.Language, language.LocalizedName, language.UnitType})
	}
	if err := writeTable([]string{"code", "language", "localized_name", "unit"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render languages table: %v\n", err)
		return 1
	}
	return 0
}
