package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/transync/internal/cli"
	"horse.fit/transync/internal/jobfile"
)

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	validateOnly := fs.Bool("validate-only", false, "Validate the document without creating a job")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "import requires one argument: a job JSON file, or - for stdin")
		return 2
	}

	path := strings.TrimSpace(fs.Arg(0))
	raw, err := readDocument(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		return 1
	}

	doc, err := jobfile.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid job document %s: %v\n", path, err)
		return 1
	}
	job := doc.Job()

	dataItems := 0
	for _, item := range job.Items {
		dataItems += len(item.DataItems)
	}
	if *validateOnly {
		fmt.Printf("valid: items=%d data_items=%d source=%s target=%s tier=%s\n", len(job.Items), dataItems, job.SourceLang, job.TargetLang, job.Tier)
		return 0
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	if err := pool.CreateJob(ctx, job); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create job: %v\n", err)
		return 1
	}

	fmt.Printf("imported job_id=%d job_uuid=%s items=%d data_items=%d\n", job.JobID, job.JobUUID, len(job.Items), dataItems)
	return 0
}

func readDocument(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
