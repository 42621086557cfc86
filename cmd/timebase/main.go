// Command timebase is the sensor node firmware.
//
//	tinygo flash -target challenger-rp2040 ./cmd/timebase
package main

import (
	"context"
	"log/slog"
	"time"

	"timebase-node/internal/platform"
	"timebase-node/services/config"
	"timebase-node/services/node"
)

func main() {
	time.Sleep(2 * time.Second) // let the console attach

	cfg, err := config.Load(platform.Device)
	if err != nil {
		println("[main] config:", err.Error())
		platform.Reboot("bad config")
		return
	}

	log := slog.New(slog.NewTextHandler(platform.Console(cfg.Console.Baud), &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("boot", "device", platform.Device, "stream", cfg.Upload.Stream)

	hw, err := platform.Open(cfg, log)
	if err != nil {
		log.Error("platform", "err", err)
		platform.Reboot("platform init")
		return
	}

	n := node.New(hw, cfg, log)
	_ = n.Run(context.Background())
}
