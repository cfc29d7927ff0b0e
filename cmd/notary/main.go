package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mavleo96/notary-doublespend/internal/cli"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cmd := cli.NewRootCommand(log.StandardLogger())
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
