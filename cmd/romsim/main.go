package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	fx "github.com/robotalks/romreader/pkg/framework"
	"github.com/robotalks/romreader/pkg/sim"
)

func init() {
	sim.SetupFlags()
}

func main() {
	flag.Parse()

	server, err := sim.Default().NewServer()
	if err != nil {
		log.Fatalln(err)
	}
	fx.NewRunner().HandleSignals().RunOrFail(fx.NamedRun("romsim", server))
}
