// Package correlate derives shared-infrastructure relations between
// identities. It inverts the address relation first (address ->
// identities) and emits pairwise edges per address, so cost scales with
// address fan-out instead of the square of the identity count.
package correlate

import (
	"sort"

	"trailscope/internal/aggregate"
	"trailscope/pkg/models"
)

type pairKey struct {
	a string
	b string
}

// Build derives deduplicated undirected edges between identities that
// share at least one source address. IdentityA always sorts before
// IdentityB and each pair appears exactly once; no zero-weight edge is
// emitted. The result is ordered by shared address count descending,
// then by identity pair. No causality or attribution is inferred.
func Build(addresses map[string]*aggregate.AddressAccum) []models.CorrelationEdge {
	shared := make(map[pairKey][]string, 64)

	for address, accum := range addresses {
		if accum == nil || len(accum.Identities) < 2 {
			continue
		}
		identities := make([]string, 0, len(accum.Identities))
		for identity := range accum.Identities {
			identities = append(identities, identity)
		}
		sort.Strings(identities)

		for i := 0; i < len(identities); i++ {
			for j := i + 1; j < len(identities); j++ {
				key := pairKey{a: identities[i], b: identities[j]}
				shared[key] = append(shared[key], address)
			}
		}
	}

	out := make([]models.CorrelationEdge, 0, len(shared))
	for key, addrs := range shared {
		sort.Strings(addrs)
		out = append(out, models.CorrelationEdge{
			IdentityA:          key.a,
			IdentityB:          key.b,
			SharedAddressCount: len(addrs),
			SharedAddresses:    addrs,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SharedAddressCount != out[j].SharedAddressCount {
			return out[i].SharedAddressCount > out[j].SharedAddressCount
		}
		if out[i].IdentityA != out[j].IdentityA {
			return out[i].IdentityA < out[j].IdentityA
		}
		return out[i].IdentityB < out[j].IdentityB
	})
	return out
}

// Degree counts correlated identities per identity from an edge set.
func Degree(edges []models.CorrelationEdge) map[string]int {
	degree := make(map[string]int, len(edges)*2)
	for _, edge := range edges {
		degree[edge.IdentityA]++
		degree[edge.IdentityB]++
	}
	return degree
}
