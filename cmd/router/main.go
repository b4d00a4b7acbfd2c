// Command router is one AS border router in the simulated inter-domain
// routing fabric: it maintains neighbor relationships, processes route
// announcements/withdrawals, and forwards or drops data packets according
// to BGP-style policy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rhicks/simbgp/pkg/config"
	"github.com/rhicks/simbgp/pkg/neighbor"
	"github.com/rhicks/simbgp/pkg/router"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("router", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML file of operational tuning (logLevel, pollInterval, readBufferSize)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	positional := fs.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: router <asn> <port-ip-relation>...")
		return 2
	}

	asn, err := strconv.Atoi(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid asn %q: %v\n", positional[0], err)
		return 2
	}

	specs, err := parseSpecs(positional[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := config.NewLogger("info")
	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config %q: %v\n", *configPath, err)
		return 2
	}
	config.SetLevel(logger, cfg.LogLevel)

	registry := neighbor.NewRegistry()
	defer registry.Close()

	for _, s := range specs {
		if _, err := registry.Add(s.address, s.port, s.relation); err != nil {
			fmt.Fprintf(os.Stderr, "binding neighbor %s: %v\n", s.address, err)
			return 1
		}
	}

	r := router.New(asn, registry, logger, cfg)
	// Reloading logLevel at runtime doesn't require restarting the poll loop.
	if *configPath != "" {
		if _, err := config.Load(*configPath, func(updated config.Operational) {
			config.SetLevel(logger, updated.LogLevel)
			r.SetOperational(updated)
		}); err != nil {
			logger.WithError(err).Warn("config watch setup failed, continuing with initial config")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.SendHandshakes()
	r.Run(ctx)

	return 0
}

type neighborSpec struct {
	port     int
	address  string
	relation neighbor.Relation
}

// parseSpecs parses the CLI's "<port>-<ip>-<relation>" triples.
func parseSpecs(raw []string) ([]neighborSpec, error) {
	specs := make([]neighborSpec, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, "-", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid neighbor spec %q: want port-ip-relation", s)
		}
		port, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid neighbor spec %q: bad port: %v", s, err)
		}
		relation, err := neighbor.ParseRelation(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid neighbor spec %q: %w", s, err)
		}
		specs = append(specs, neighborSpec{port: port, address: parts[1], relation: relation})
	}
	return specs, nil
}
