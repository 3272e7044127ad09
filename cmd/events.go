/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wellnest/apiserver/config"
	"github.com/wellnest/apiserver/internal/logging"
	"github.com/wellnest/apiserver/internal/mq"
	"github.com/wellnest/apiserver/types"
)

// eventsCmd groups commands that work with the session event channel.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect session activity events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print session events as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if bus == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer bus.Close()

		log.Info(ctx, "tailing session events", "channel", cfg.MQ.Channel)
		err = bus.Subscribe(ctx, cfg.MQ.Channel, func(ctx context.Context, msg mq.Message) error {
			var event types.SessionEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Undecodable payloads are dropped rather than redelivered.
				log.Warn(ctx, "skipping malformed event", "message_id", msg.ID, "error", err)
				return nil
			}
			log.Info(ctx, "session event",
				"type", event.Type,
				"session_id", event.SessionID,
				"user_id", event.UserID,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
