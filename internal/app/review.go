package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/transync/internal/cli"
	"horse.fit/transync/internal/gengo"
	"horse.fit/transync/internal/translation"
)

// runReview handles "review approve|revise <job_id> <job_item_id>][<path>".
func runReview(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "review requires a subcommand: approve or revise")
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "approve", "revise":
	case "help", "--help", "-h":
		fmt.Fprintln(os.Stderr, "Usage: transync review approve|revise [flags] <job_id> <item_key>")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown review subcommand: %s\n", args[0])
		return 2
	}

	fs := flag.NewFlagSet("review "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Minute, "Command timeout")
	rating := fs.Int("rating", 0, "Approval rating from 1 to 5 (approve only)")
	forTranslator := fs.String("for-translator", "", "Feedback for the translator (approve only)")
	forGengo := fs.String("for-gengo", "", "Feedback for Gengo (approve only)")
	comment := fs.String("comment", "", "Revision request comment (revise only)")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "review %s requires two arguments: job id and item key\n", action)
		return 2
	}
	jobID, err := parseJobIDArg(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	key, err := translation.ParseItemKey(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid item key: %v\n", err)
		return 2
	}
	if *rating < 0 || *rating > 5 {
		fmt.Fprintln(os.Stderr, "--rating must be between 1 and 5")
		return 2
	}
	if action == "revise" && strings.TrimSpace(*comment) == "" {
		fmt.Fprintln(os.Stderr, "review revise requires --comment")
		return 2
	}

	ctx, cancel, runtime, err := connectEngine(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer runtime.Close()

	if action == "approve" {
		err = runtime.manager.Approve(ctx, jobID, key, gengo.ApproveOptions{
			Rating:        *rating,
			ForTranslator: strings.TrimSpace(*forTranslator),
			ForGengo:      strings.TrimSpace(*forGengo),
		})
	} else {
		err = runtime.manager.Revise(ctx, jobID, key, *comment)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, describeEngineError(err, jobID))
		return 1
	}

	fmt.Printf("%s job_id=%d key=%s\n", pastTense(action), jobID, key.String())
	return 0
}

func pastTense(action string) string {
	if action == "approve" {
		return "approved"
	}
	return "revision requested"
}
