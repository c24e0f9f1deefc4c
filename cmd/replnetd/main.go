// Command replnetd runs the networked REPL server against the
// reference echolang runtime.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/replnet/replnet/runtime/echolang"
	"github.com/replnet/replnet/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var (
		port     int
		ackPort  int
		maxConns int
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "replnetd",
		Short: "Networked REPL server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}
			options := []server.Option{server.WithLogger(log)}
			if maxConns > 0 {
				options = append(options, server.WithMaxConnections(maxConns))
			}
			srv, err := server.Start(context.Background(), echolang.New(), port, ackPort, options...)
			if err != nil {
				return err
			}
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			log.Info("shutting down")
			return srv.Stop()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (0 picks an ephemeral port)")
	cmd.Flags().IntVar(&ackPort, "ack-port", 0, "deliver the bound port to a server on this port")
	cmd.Flags().IntVar(&maxConns, "max-conns", 0, "cap on concurrent connections (0 = unlimited)")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every message on the wire")
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}
