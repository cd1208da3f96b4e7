// Package main is the entry point for the rabbitlog application.
// rabbitlog parses RabbitMQ server logs, annotates each entry with its
// subsystem and labels, and answers RQL queries over the stored entries.
package main

import (
	"log"
	"os"
	"runtime/pprof"

	"github.com/Alain-L/rabbitlog/cmd"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	// CPU profiling
	if cpuProfile := os.Getenv("CPUPROFILE"); cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	// Memory profiling
	if memProfile := os.Getenv("MEMPROFILE"); memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			pprof.WriteHeapProfile(f)
			f.Close()
		}()
	}

	cmd.Execute(version, commit, date)
}
