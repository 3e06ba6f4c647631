package main

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodegossip/gossipmesh"
)

var (
	broadcastPeer    string
	broadcastPort    int
	broadcastRemote  uint64
	broadcastVerb    string
	broadcastPayload string
	broadcastTTL     time.Duration
)

func init() {
	broadcastCmd.Flags().StringVar(&broadcastPeer, "peer", "", "address of an existing node to join through")
	broadcastCmd.Flags().IntVar(&broadcastPort, "peer-port", gossipmesh.DefaultGossipPort, "port of the peer named by --peer")
	broadcastCmd.Flags().Uint64Var(&broadcastRemote, "peer-uid", 0, "uid of the peer named by --peer")
	broadcastCmd.Flags().StringVar(&broadcastVerb, "verb", gossipmesh.CountAliveVerb, "verb to broadcast")
	broadcastCmd.Flags().StringVar(&broadcastPayload, "payload", "", "payload bytes, taken as a UTF-8 string")
	broadcastCmd.Flags().DurationVar(&broadcastTTL, "ttl", 30*time.Second, "message time-to-live")
	rootCmd.AddCommand(broadcastCmd)
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Start a node, optionally join a peer, and inject a fire-and-forget broadcast",
	Run: func(cmd *cobra.Command, args []string) {
		mesh, err := gossipmesh.Create(gossipmesh.Config{})
		if err != nil {
			log.Fatalf("failed to create mesh: %v", err)
		}
		defer mesh.Shutdown()

		node := mesh.LocalNodes()[0]
		if broadcastPeer != "" {
			if err := mesh.ConnectPeer(node.UID(), broadcastPeer, broadcastPort, broadcastRemote); err != nil {
				log.Fatalf("failed to connect to peer: %v", err)
			}
		}

		node.Broadcast(broadcastVerb, []byte(broadcastPayload), broadcastTTL)
		log.Printf("broadcast %q sent from uid %d", broadcastVerb, node.UID())
	},
}
