package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/ar-anchor-mcp/internal/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Long: `Runs the MCP server. Requests are read from stdin one per line and
responses written to stdout; logs go to stderr.

Configure it in your MCP client as the command "anchor-mcp serve".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := setup(flags, "")
			if err != nil {
				return err
			}
			defer c.Close()
			logger.WithFields(logrus.Fields{
				"version": Version,
				"built":   BuildTime,
				"commit":  GitCommit,
			}).Info("Anchor MCP server starting")

			server.Version = Version
			srv := server.New(c)
			defer srv.Close()
			return srv.Run()
		},
	}
}
