package cmds

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/teammate/pkg/devserver"
)

func NewDevServerCommand() *cobra.Command {
	var addr string
	var fragmentDelay time.Duration

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run a local echo chat service speaking the session protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			s := devserver.NewServer(devserver.WithFragmentDelay(fragmentDelay))
			return s.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:6789", "Listen address")
	cmd.Flags().DurationVar(&fragmentDelay, "fragment-delay", 80*time.Millisecond, "Pause between streamed reply fragments")

	return cmd
}
