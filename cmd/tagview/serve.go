package main

import (
	"github.com/spf13/cobra"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags]",
	Short: "Start the inspection server (Connect, gRPC and gRPC-Web)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: [server] addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = sess.Manifest.Server.Addr
	}

	srv := server.New(sess.Loader, asset.DefaultTypes())
	defer srv.Stop()
	return srv.ListenAndServe(addr)
}
