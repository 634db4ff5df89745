package main

import (
	"flag"
	"log"
	"os"

	"multipart.dev/internal/datagen"
	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/multipart"
)

func main() {
	var (
		configDir = flag.String("configs", "./configs", "config directory")
		outDir    = flag.String("out", "./generated", "output root; files go to <out>/assets/<ns>/blockstates")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[datagen] ", log.LstdFlags)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	reg := multipart.NewRegistry()
	if err := cats.Register(reg); err != nil {
		logger.Fatalf("register structures: %v", err)
	}

	paths, err := datagen.WriteAll(*outDir, cats, reg)
	if err != nil {
		logger.Fatalf("write blockstates: %v", err)
	}
	for _, p := range paths {
		logger.Printf("wrote %s", p)
	}
	logger.Printf("%d blockstate files (structures digest %s)", len(paths), cats.Structures.Digest)
}
