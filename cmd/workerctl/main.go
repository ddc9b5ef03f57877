package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"hydrogen.im/hydrogen-worker/cmd/workerctl/internal/commands"
	"hydrogen.im/hydrogen-worker/config"
)

func NewWorkerctlCommand() *cobra.Command {
	opts := &commands.Options{}

	cmd := &cobra.Command{
		Use:          "workerctl",
		Short:        "Control a running hydrogen-worker",
		Version:      config.Version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "http://localhost:8080", "worker base address")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall command timeout")
	cmd.PersistentFlags().StringVar(&opts.AdminSecret, "admin-secret", os.Getenv("ADMIN_JWT_SECRET"), "secret used to sign admin API tokens")

	cmd.AddCommand(
		commands.NewVersionCommand(opts),
		commands.NewStatusCommand(opts),
		commands.NewSkipWaitingCommand(opts),
		commands.NewHaltCommand(opts),
		commands.NewCloseSessionCommand(opts),
	)
	return cmd
}

func main() {
	if err := NewWorkerctlCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
