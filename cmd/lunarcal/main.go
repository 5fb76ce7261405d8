package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/lunarcal/internal/log"
	"github.com/chrissnell/lunarcal/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: lunarcal [flags] <command> [command flags] [args]

Commands:
  to-lunar    convert an instant to a lunar date
  from-lunar  convert a lunar date (YEAR,MONTH,DAY) to an instant
  nisan1      print the instant each given lunar year begins
  leap        report the leap cycle status of each given year
  year        list the month boundaries of a lunar year
  phase       print the moon phase at an instant
  add         apply a year/month/day offset to a lunar date
  batch       convert RFC 3339 instants read one per line from stdin
  serve       run the REST server

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	cfgFile := flag.String("config", "", "Path to YAML configuration file; built-in defaults are used when empty")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("lunarcal %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration
	cfgData, err := loadConfig(*cfgFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Debugw("configuration loaded",
		"file", *cfgFile,
		"ephemeris", cfgData.Ephemeris.Backend,
		"cache", cfgData.Cache.Backend,
		"timezone", cfgData.Timezone)

	c := &cli{
		cfg:    cfgData,
		logger: log.GetSugaredLogger(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	if err := c.run(context.Background(), flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Errorf("lunarcal %s: %v", flag.Arg(0), err)
		log.Sync()
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (*config.ConfigData, error) {
	if cfgFile == "" {
		return config.ParseYAML(nil)
	}

	filename, _ := filepath.Abs(cfgFile)
	provider := config.NewYAMLProvider(filename)
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
