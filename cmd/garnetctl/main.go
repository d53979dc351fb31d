package main

import (
	"os"

	"github.com/garnet-sec/garnet/cmd/garnetctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
