package main

import (
	"os"

	"faculty-quiz-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
