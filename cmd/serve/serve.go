package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/demoserver"
)

// Command creates the serve command running the embedded demo backend.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the embedded demo backend",
		Long:  "Serve the backend API with a simulated inference engine and a local SQLite database, for offline use and development.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := demoserver.New(settings)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				fmt.Printf("Received %s, shutting down\n", sig)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&settings.DemoServer.Listen, "listen", settings.DemoServer.Listen, "Listen address")
	cmd.Flags().StringVar(&settings.DemoServer.DataPath, "data", settings.DemoServer.DataPath, "Directory for the demo database and uploads")

	return cmd
}
