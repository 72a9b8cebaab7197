/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/messagely/apiserver/config"
	"github.com/messagely/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// notifyCmd consumes message events and logs a notice for each.
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Consume message events and notify recipients",
	Long: `Subscribes to the message events channel configured by MQ_BACKEND and
MQ_CHANNEL and logs a delivery notice for every sent or read message.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.MustOpen(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		defer func() {
			_ = broker.Close()
		}()

		logger.Info(ctx, "waiting for message events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		err = broker.Subscribe(ctx, cfg.MQ.Channel, mq.NotifyHandler(logger))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
