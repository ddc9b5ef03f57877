package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"hydrogen.im/hydrogen-worker/app/domain/protocol"
	"hydrogen.im/hydrogen-worker/cmd/workerctl/internal/session"
)

func NewVersionCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show the version and build hash the worker is serving",
		Args:    cobra.NoArgs,
		Example: "  workerctl version --addr http://localhost:8080",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(func(ctx context.Context, s *session.Session) error {
				raw, err := s.Request(ctx, protocol.TypeVersion, nil)
				if err != nil {
					return err
				}
				var info protocol.VersionInfo
				if err := json.Unmarshal(raw, &info); err != nil {
					return fmt.Errorf("decode version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %s\nbuild:   %s\n", info.Version, info.BuildHash)
				return nil
			})
		},
	}
}
