package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodegossip/gossipmesh"
)

var (
	solicitPeer    string
	solicitPort    int
	solicitRemote  uint64
	solicitVerb    string
	solicitPayload string
	solicitTTL     time.Duration
	solicitDirect  bool
)

func init() {
	solicitCmd.Flags().StringVar(&solicitPeer, "peer", "", "address of an existing node to join through")
	solicitCmd.Flags().IntVar(&solicitPort, "peer-port", gossipmesh.DefaultGossipPort, "port of the peer named by --peer")
	solicitCmd.Flags().Uint64Var(&solicitRemote, "peer-uid", 0, "uid of the peer named by --peer")
	solicitCmd.Flags().StringVar(&solicitVerb, "verb", gossipmesh.CountAliveVerb, "verb to solicit")
	solicitCmd.Flags().StringVar(&solicitPayload, "payload", "", "payload bytes, taken as a UTF-8 string")
	solicitCmd.Flags().DurationVar(&solicitTTL, "ttl", 5*time.Second, "solicitation deadline")
	solicitCmd.Flags().BoolVar(&solicitDirect, "direct", false, "route replies straight back instead of up the forwarding tree")
	rootCmd.AddCommand(solicitCmd)
}

var solicitCmd = &cobra.Command{
	Use:   "solicit",
	Short: "Start a node, optionally join a peer, and print the aggregate reply to a query",
	Run: func(cmd *cobra.Command, args []string) {
		mesh, err := gossipmesh.Create(gossipmesh.Config{})
		if err != nil {
			log.Fatalf("failed to create mesh: %v", err)
		}
		defer mesh.Shutdown()

		node := mesh.LocalNodes()[0]
		if solicitPeer != "" {
			if err := mesh.ConnectPeer(node.UID(), solicitPeer, solicitPort, solicitRemote); err != nil {
				log.Fatalf("failed to connect to peer: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), solicitTTL+time.Second)
		defer cancel()

		solicit := node.SolicitWait
		if solicitDirect {
			solicit = node.SolicitDirect
		}

		agg, err := solicit(ctx, solicitVerb, []byte(solicitPayload), solicitTTL)
		if err != nil {
			log.Fatalf("solicit failed: %v", err)
		}

		log.Printf("aggregate payload=%q partial=%v", agg.Payload, agg.Partial)
	},
}
