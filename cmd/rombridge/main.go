package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/robotalks/romreader/pkg/bridge"
	fx "github.com/robotalks/romreader/pkg/framework"
)

func init() {
	bridge.SetupFlags()
}

func main() {
	flag.Parse()

	svc := bridge.Default().NewService()
	fx.NewRunner().HandleSignals().RunOrFail(fx.NamedRun("rombridge", fx.RunFunc(svc.RunWithRetry)))
}
