package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"hydrogen.im/hydrogen-worker/app/domain/lifecycle"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"resty.dev/v3"
)

// AdminToken signs a short-lived HS256 token accepted by the admin API.
func AdminToken(secret string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "workerctl",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func fetchStatus(ctx context.Context, opts *Options) (*lifecycle.Status, error) {
	client := resty.New()
	defer client.Close()

	req := client.R().SetContext(ctx)
	if opts.AdminSecret != "" {
		token, err := AdminToken(opts.AdminSecret, time.Now())
		if err != nil {
			return nil, err
		}
		req.SetAuthToken(token)
	}

	var body responses.GeneralResponse[lifecycle.Status]
	resp, err := req.SetResult(&body).Get(strings.TrimRight(opts.Addr, "/") + "/v1/admin/lifecycle")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status request failed: %s", resp.Status())
	}
	return &body.Result, nil
}

func printGeneration(w io.Writer, label string, g *lifecycle.GenerationStatus) {
	if g == nil {
		fmt.Fprintf(w, "%-8s none\n", label+":")
		return
	}
	fmt.Fprintf(w, "%-8s %s (%s) %s\n", label+":", g.Version, g.BuildHash, g.State)
}

func NewStatusCommand(opts *Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show active and waiting versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
			defer cancel()
			status, err := fetchStatus(ctx, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			printGeneration(out, "active", status.Active)
			printGeneration(out, "waiting", status.Waiting)
			fmt.Fprintf(out, "halted:  %t\nclients: %d\n", status.RequestsHalted, status.Clients)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}
