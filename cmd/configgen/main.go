package main

import (
	"flag"
	"log"

	"github.com/Robertof/oxixenon/internal/config"
)

func main() {
	mode := flag.String("mode", "server", "config mode: server|client")
	output := flag.String("output", config.DefaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", config.DefaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input, config.Overrides{})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", cfg.Mode, *input)
		return
	}

	if err := config.WriteTemplate(*output, *mode, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *mode, *output)
}
