// Package main provides the menu emissions pipeline entry point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/devskill-org/menu-co2e/logger"
	"github.com/devskill-org/menu-co2e/pipeline"
	"go.uber.org/zap"
)

func main() {
	// Command line flags
	var (
		configFile = flag.String("config", "", "Configuration file path (defaults are used when empty)")
		download   = flag.Bool("download", false, "Download dishes and days from the menu API and cache them")
		list       = flag.Bool("list", false, "Print every cached dish title and the served days")
		plot       = flag.Bool("plot", false, "Plot survey results against mean CO2e per day")
		serve      = flag.Bool("serve", false, "Run the dashboard over the cached dataset")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help || !(*download || *list || *plot || *serve) {
		showHelp()
		return
	}

	config, err := pipeline.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	log, err := logger.New(config.LogLevel, config.LogFormat)
	if err != nil {
		fmt.Println("Error creating logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Debugf("Configuration: %s", config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log, *download, *list, *plot, *serve); err != nil {
		log.Errorf("Error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

// run executes the selected modes in acquisition, listing, plotting, serving order
func run(ctx context.Context, config *pipeline.Config, log *zap.SugaredLogger, download, list, plot, serve bool) error {
	p, err := pipeline.New(ctx, config, log)
	if err != nil {
		return err
	}
	defer p.Close()

	if download {
		if _, err := p.RunDownload(ctx); err != nil {
			return err
		}
	}

	if list {
		if err := p.RunList(ctx, os.Stdout); err != nil {
			return err
		}
	}

	if plot {
		if _, err := p.RunPlot(ctx); err != nil {
			return err
		}
	}

	if serve {
		log.Infof("Dashboard started. Press Ctrl+C to stop...")
		if err := p.Serve(ctx); err != nil {
			return err
		}
		log.Infof("Dashboard stopped successfully")
	}

	return nil
}

func showHelp() {
	fmt.Println("menu-co2e - Menu emissions and survey analysis")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Downloads the school menu (served days and dishes with their CO2e per portion)")
	fmt.Println("  from the menu API, caches it as dishes.json and days.json, and plots the")
	fmt.Println("  cornflakes and lingon survey results against the mean CO2e of each past day.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  menu-co2e [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Printf("  Every config key can be overridden with %s_<KEY>, e.g. %s_FETCH_CONCURRENCY=4\n", pipeline.EnvPrefix, pipeline.EnvPrefix)
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Refresh the local cache")
	fmt.Println("  menu-co2e -download")
	fmt.Println()
	fmt.Println("  # Print the cached dishes and days")
	fmt.Println("  menu-co2e -list")
	fmt.Println()
	fmt.Println("  # Write plot.png from the cache")
	fmt.Println("  menu-co2e -plot")
	fmt.Println()
	fmt.Println("  # Refresh, then plot, with a custom configuration")
	fmt.Println("  menu-co2e -config=config.json -download -plot")
	fmt.Println()
	fmt.Println("  # Serve the dashboard")
	fmt.Println("  menu-co2e -serve")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  menu-co2e -help")
}
