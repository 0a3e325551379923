// Copyright 2026 Chaintail Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cardanoware/chaintail/source"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "chaintail",
		Short:        "Follow a Cardano node's chain over the node-to-client protocol",
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.Flags().
		String("address", "", "node socket path or TCP host:port")
	rootCmd.Flags().
		Uint32("magic", 0, "network magic (0 selects mainnet)")
	rootCmd.Flags().
		Uint("min-depth", 0, "confirmations required before emitting a block")
	_ = viper.BindPFlag("address", rootCmd.Flags().Lookup("address"))
	_ = viper.BindPFlag("magic", rootCmd.Flags().Lookup("magic"))
	_ = viper.BindPFlag("minDepth", rootCmd.Flags().Lookup("min-depth"))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (source.Config, error) {
	var cfg source.Config
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}
	viper.SetEnvPrefix("chaintail")
	viper.AutomaticEnv()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Address == "" {
		return cfg, fmt.Errorf("no node address configured")
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	cfg.Logger = logger
	src, err := source.Bootstrap(cfg)
	if err != nil {
		return err
	}
	// Shut down cleanly on SIGINT/SIGTERM
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info(
			fmt.Sprintf("received signal %s, shutting down", sig),
			"component", "main",
		)
		_ = src.Stop()
	}()
	for {
		select {
		case event := <-src.Events():
			logEvent(logger, event)
		case <-src.Done():
			// Drain any events emitted before termination
			for {
				select {
				case event := <-src.Events():
					logEvent(logger, event)
				default:
					stats := src.Stats()
					logger.Info(
						"source finished",
						"component", "main",
						"blocksReceived", stats.BlocksReceived,
						"eventsEmitted", stats.EventsEmitted,
						"rollbacks", stats.Rollbacks,
					)
					return src.Err()
				}
			}
		}
	}
}

func logEvent(logger *slog.Logger, event source.ChainEvent) {
	switch event.Type {
	case source.ChainEventTypeRollForward:
		logger.Info(
			"roll forward",
			"component", "main",
			"slot", event.Point.Slot,
			"hash", hex.EncodeToString(event.Point.Hash),
			"blockType", event.BlockType,
			"blockSize", len(event.BlockCbor),
		)
	case source.ChainEventTypeRollBackward:
		logger.Info(
			"roll backward",
			"component", "main",
			"slot", event.Point.Slot,
			"hash", hex.EncodeToString(event.Point.Hash),
		)
	}
}
