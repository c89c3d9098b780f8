// Command engine runs the job ingestion and enrichment service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mirzemehdi/ArchGee-All/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the configuration file")
	flag.Parse()

	if err := bootstrap.Start(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "engine failed: %v\n", err)
		os.Exit(1)
	}
}
