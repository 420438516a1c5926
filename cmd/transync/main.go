package main

import (
	"os"

	"horse.fit/transync/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
