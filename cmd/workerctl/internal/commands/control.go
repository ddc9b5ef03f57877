package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"hydrogen.im/hydrogen-worker/app/domain/protocol"
	"hydrogen.im/hydrogen-worker/cmd/workerctl/internal/session"
)

func NewSkipWaitingCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "skip-waiting",
		Short: "Activate the waiting version now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(ctx context.Context, s *session.Session) error {
				if err := s.Post(protocol.TypeSkipWaiting); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "skip-waiting sent")
				return nil
			})
		},
	}
}

func NewHaltCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "halt",
		Short: "Stop all network requests after every window has acknowledged",
		Long: `Asks every connected window to stop its own requests, waits for each
to acknowledge, then halts network access for the worker until the next
version is activated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(ctx context.Context, s *session.Session) error {
				if _, err := s.Request(ctx, protocol.TypeHaltRequests, nil); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "requests halted")
				return nil
			})
		},
	}
}

func NewCloseSessionCommand(opts *Options) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:     "close-session",
		Short:   "Tell every window to close a session",
		Args:    cobra.NoArgs,
		Example: "  workerctl close-session --session 1646528482480255",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionID == "" {
				return errors.New("--session is required")
			}
			return opts.withSession(func(ctx context.Context, s *session.Session) error {
				payload := protocol.SessionPayload{SessionID: sessionID}
				if _, err := s.Request(ctx, protocol.TypeCloseSession, payload); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %s closed\n", sessionID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to close")
	return cmd
}
