package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/nodegossip/gossipmesh"
)

var (
	graphNodes  int
	graphDegree int
	graphSeed   int64
)

func init() {
	graphCmd.Flags().IntVar(&graphNodes, "nodes", 8, "number of local simulated nodes")
	graphCmd.Flags().IntVar(&graphDegree, "degree", gossipmesh.DefaultMaxDegree, "maximum neighbor degree")
	graphCmd.Flags().Int64Var(&graphSeed, "seed", 1, "deterministic seed for chord selection")
	rootCmd.AddCommand(graphCmd)
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build an in-process simulated topology and print each node's neighbors",
	Run: func(cmd *cobra.Command, args []string) {
		mesh, err := gossipmesh.Create(gossipmesh.Config{
			Eripa:     "127.0.0.1",
			Ephemeral: true,
			NumNodes:  graphNodes,
		}, gossipmesh.WithUIDRegime(gossipmesh.RegimeTiny))
		if err != nil {
			log.Fatalf("failed to create mesh: %v", err)
		}
		defer mesh.Shutdown()

		mesh.BuildGraph(graphDegree, graphSeed)

		for _, n := range mesh.LocalNodes() {
			fmt.Printf("%d: %v\n", n.UID(), n.Neighbors())
		}
	},
}
