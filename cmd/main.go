package main

import (
	"os"

	"github.com/soundprediction/go-biohub/cmd/biohub"
)

func main() {
	if err := biohub.Execute(); err != nil {
		os.Exit(1)
	}
}
