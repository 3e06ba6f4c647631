package internal

import "math/rand"

// BuildRingWithChords produces a connected neighbor graph over uids with
// every vertex degree at most maxDegree, per §4.7: a ring guarantees
// connectivity at degree 2, then up to maxDegree-2 random chords per node
// are added from a seeded shuffle of the remaining candidates, skipping
// any pair already linked or that would push either endpoint over
// maxDegree. It returns an adjacency map uid -> sorted-free set of
// neighbor uids; determinism given the same uids slice and seed lets
// tests assert exact topologies.
func BuildRingWithChords(uids []uint64, maxDegree int, seed int64) map[uint64]map[uint64]bool {
	adj := make(map[uint64]map[uint64]bool, len(uids))
	for _, u := range uids {
		adj[u] = make(map[uint64]bool)
	}
	if len(uids) < 2 || maxDegree < 2 {
		return adj
	}

	link := func(a, b uint64) {
		adj[a][b] = true
		adj[b][a] = true
	}

	for i, u := range uids {
		v := uids[(i+1)%len(uids)]
		if u != v {
			link(u, v)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	for _, u := range uids {
		candidates := make([]uint64, 0, len(uids))
		for _, v := range uids {
			if v != u && !adj[u][v] {
				candidates = append(candidates, v)
			}
		}
		shuffleUint64(rng, candidates)

		for _, v := range candidates {
			if len(adj[u]) >= maxDegree {
				break
			}
			if len(adj[v]) >= maxDegree {
				continue
			}
			link(u, v)
		}
	}

	return adj
}
