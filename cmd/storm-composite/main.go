package main

import (
	"fmt"
	"os"

	"github.com/eleven-am/storm-composite/internal/cli"
	"github.com/eleven-am/storm-composite/pkg/storm"
)

// Set at build time with -ldflags "-X main.gitCommit=... -X main.buildDate=..."
var (
	gitCommit string
	buildDate string
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func Execute() error {
	storm.SetBuildInfo(gitCommit, buildDate, "")

	cmd := cli.NewRootCommand()
	return cmd.Execute()
}
