package main

import (
	"github.com/robotalks/romreader/pkg/cli/sh"

	_ "github.com/robotalks/romreader/pkg/cli/cmds/reader"
)

//go-build: CGO_ENABLED=0

func init() {
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
