// Command nodesim runs the node on a workstation with simulated sensors, a
// simulated link and a directory-backed store. Point upload.host at a local
// ingestion endpoint through -config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"timebase-node/internal/platform"
	"timebase-node/services/config"
	"timebase-node/services/node"
	"timebase-node/types"
)

func main() {
	var (
		cfgPath   = pflag.StringP("config", "c", "", "YAML profile to use instead of the embedded sim profile")
		stateDir  = pflag.String("state", platform.StateDir, "directory for the durable store")
		failEvery = pflag.Int("fail-every", 0, "fail every nth sensor read (0 disables)")
		linkDown  = pflag.Bool("link-down", false, "never associate the simulated link")
		ntp       = pflag.Bool("ntp", false, "query the configured NTP server on connect")
		debug     = pflag.BoolP("debug", "d", false, "debug logging")
		setWLAN   = pflag.String("set-wlan", "", "store new station credentials as name:passphrase and exit")
	)
	pflag.Parse()

	if err := run(*cfgPath, *stateDir, *failEvery, *linkDown, *ntp, *debug, *setWLAN); err != nil {
		fmt.Fprintln(os.Stderr, "nodesim:", err)
		os.Exit(1)
	}
}

func run(cfgPath, stateDir string, failEvery int, linkDown, ntp, debug bool, setWLAN string) error {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		raw, rerr := os.ReadFile(cfgPath)
		if rerr != nil {
			return rerr
		}
		cfg, err = config.Parse(raw)
	} else {
		cfg, err = config.Load(platform.Device)
	}
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(platform.Console(cfg.Console.Baud), &slog.HandlerOptions{Level: level}))

	platform.StateDir = stateDir
	platform.SensorFailEvery = failEvery
	platform.LinkDown = linkDown
	platform.SyncNTP = ntp

	hw, err := platform.Open(cfg, log)
	if err != nil {
		return err
	}
	n := node.New(hw, cfg, log)

	if setWLAN != "" {
		c, ok := parseCredentials(setWLAN)
		if !ok {
			return fmt.Errorf("-set-wlan wants name:passphrase, got %q", setWLAN)
		}
		return n.Credentials.Set(c) // reboots
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Info("simulator up", "state", stateDir, "host", cfg.Upload.Host)
	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func parseCredentials(s string) (types.Credentials, bool) {
	name, secret, ok := strings.Cut(s, ":")
	return types.Credentials{Name: name, Secret: secret}, ok && name != ""
}
