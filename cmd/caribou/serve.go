package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leontalbot/caribou/internal/server"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Initialize the engine against the configured database and serve the content API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := boot(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		srv := server.New(rt.engine, rt.log.Named("http"))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			rt.log.Info("shutting down")
			_ = srv.Shutdown()
		}()

		port := rt.cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		return srv.Listen(fmt.Sprintf(":%d", port))
	},
}
