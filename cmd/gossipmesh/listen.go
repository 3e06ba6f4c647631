package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nodegossip/gossipmesh"
)

var listenPort int

func init() {
	listenCmd.Flags().IntVar(&listenPort, "port", gossipmesh.DefaultGossipPort, "port to listen on")
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Start a single-node Mesh and block until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		mesh, err := gossipmesh.Create(gossipmesh.Config{GossipPort: listenPort})
		if err != nil {
			log.Fatalf("failed to create mesh: %v", err)
		}
		defer mesh.Shutdown()

		log.Printf("listening on %v (eripa %s)", mesh.ListenAddrs(), mesh.Eripa())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
	},
}
