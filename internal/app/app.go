package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "import":
		return runImport(args[1:])
	case "jobs":
		return runJobs(args[1:])
	case "submit":
		return runSubmit(args[1:])
	case "quote":
		return runQuote(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "mappings":
		return runMappings(args[1:])
	case "messages":
		return runMessages(args[1:])
	case "languages":
		return runLanguages(args[1:])
	case "review":
		return runReview(args[1:])
	case "serve":
		return runServe(args[1:])
	case "mock-serve":
		return runMockServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "transync CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  transync <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health      Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  import      Create a job from a JSON job document")
	fmt.Fprintln(os.Stderr, "  jobs        List jobs")
	fmt.Fprintln(os.Stderr, "  submit      Submit a job to Gengo and reconcile the response")
	fmt.Fprintln(os.Stderr, "  quote       Ask Gengo for a price quote of a job")
	fmt.Fprintln(os.Stderr, "  fetch       Poll Gengo for one job (or --all active jobs)")
	fmt.Fprintln(os.Stderr, "  mappings    Show remote mappings of a job")
	fmt.Fprintln(os.Stderr, "  messages    Show the message log of a job")
	fmt.Fprintln(os.Stderr, "  languages   List languages or language pairs Gengo supports")
	fmt.Fprintln(os.Stderr, "  review      Approve or request revision of a remote job")
	fmt.Fprintln(os.Stderr, "  serve       Start the API server and optional poll loop")
	fmt.Fprintln(os.Stderr, "  mock-serve  Start an in-memory Gengo API emulation")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"transync <command> -h\" for command-specific flags.")
}
