// Package main provides a CLI client for the replication server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rishav/replcore/internal/transport"
)

func main() {
	var serverAddr string

	root := &cobra.Command{
		Use:   "replica-cli",
		Short: "Issue REPLICASYNC/REPLICAOF/REPLICAINFO requests against a replication server",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:7712", "replication server address")

	root.AddCommand(
		infoCommand(&serverAddr),
		replicaofCommand(&serverAddr),
		syncCommand(&serverAddr),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func infoCommand(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print REPLICAINFO: mode, last sdb hash, last eid",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := transport.Dial(*serverAddr)
			if err != nil {
				return err
			}
			defer c.Close()

			mode, hash, eid, err := c.Replicainfo()
			if err != nil {
				return err
			}
			fmt.Printf("mode:          %s\n", mode)
			fmt.Printf("last sdb hash: %s\n", hash)
			fmt.Printf("last eid:      %s\n", eid)
			return nil
		},
	}
}

func replicaofCommand(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "replicaof <host> <port>",
		Short: "Issue REPLICAOF, transitioning the server to replica mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := transport.Dial(*serverAddr)
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.Replicaof(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

func syncCommand(serverAddr *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Issue REPLICASYNC and print streamed replication frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := transport.Dial(*serverAddr)
			if err != nil {
				return err
			}
			defer c.Close()

			fr, err := c.Replicasync()
			if err != nil {
				return err
			}

			for i := 0; limit <= 0 || i < limit; i++ {
				eid, cmdID, payload, err := fr.Next()
				if err != nil {
					return err
				}
				fmt.Printf("eid=%d cmd_id=%d size=%d payload=%q\n", eid, cmdID, len(payload), payload)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many frames (0 = unbounded)")
	return cmd
}
