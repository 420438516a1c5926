package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/transync/internal/cli"
	"horse.fit/transync/internal/db"
)

func runJobs(args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	state := fs.String("state", "", "Filter by state: unprocessed, active or rejected")
	limit := fs.Int("limit", 50, "Maximum number of jobs")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "jobs does not accept positional arguments")
		return 2
	}

	stateFilter := strings.TrimSpace(strings.ToLower(*state))
	switch stateFilter {
	case "", db.JobStateUnprocessed, db.JobStateActive, db.JobStateRejected:
	default:
		fmt.Fprintln(os.Stderr, "--state must be unprocessed, active or rejected")
		return 2
	}
	if *limit <= 0 || *limit > 1000 {
		fmt.Fprintln(os.Stderr, "--limit must be between 1 and 1000")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	jobs, err := pool.ListJobs(ctx, stateFilter, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list jobs: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(jobs); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(job.JobID, 10),
			job.State,
			job.SourceLang + ">" + job.TargetLang,
			job.Tier,
			fmt.Sprintf("%d/%d", job.TranslatedCount, job.DataItemCount),
			truncateForTable(job.Label, 48),
		})
	}
	if err := writeTable([]string{"job_id", "state", "langs", "tier", "translated", "label"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render jobs table: %v\n", err)
		return 1
	}
	return 0
}

func runMappings(args []string) int {
	fs := flag.NewFlagSet("mappings", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "mappings requires one argument: job id")
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

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	mappings, err := pool.ListRemoteMappingsByJob(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list remote mappings: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(mappings); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(mappings))
	for _, mapping := range mappings {
		remoteJob := mapping.RemoteJobID
		if mapping.IsPlaceholder() {
			remoteJob = "(waiting)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(mapping.JobItemID, 10) + "][" + mapping.DataItemPath,
			mapping.RemoteOrderID,
			remoteJob,
			strconv.FormatInt(mapping.WordCount, 10),
			strings.Join(mapping.RemoteData.Duplicates, " "),
		})
	}
	if err := writeTable([]string{"key", "order_id", "remote_job_id", "words", "duplicates"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render mappings table: %v\n", err)
		return 1
	}
	return 0
}

func runMessages(args []string) int {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	level := fs.String("level", "", "Only show messages of this level: status, debug, warning or error")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "messages requires one argument: job id")
		return 2
	}
	jobID, err := parseJobIDArg(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	levelFilter := strings.TrimSpace(strings.ToLower(*level))

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	messages, err := pool.ListJobMessages(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list job messages: %v\n", err)
		return 1
	}

	rows := make([][]string, 0, len(messages))
	for _, message := range messages {
		if levelFilter != "" && message.Level != levelFilter {
			continue
		}
		rows = append(rows, []string{
			formatUTCTimestamp(message.CreatedAt),
			message.Level,
			message.Message,
		})
	}
	if err := writeTable([]string{"created_at", "level", "message"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render messages table: %v\n", err)
		return 1
	}
	return 0
}
