package data

import (
	"math/rand"
	"slices"

	"github.com/pkg/errors"
)

// PartitionIID splits n sample indices uniformly at random into clients
// disjoint shards of n/clients samples each. Leftover samples are unused.
func PartitionIID(n, clients int, rng *rand.Rand) ([][]int, error) {
	if clients <= 0 {
		return nil, errors.Errorf("number of clients must be positive, got %d", clients)
	}
	perClient := n / clients
	if perClient == 0 {
		return nil, errors.Errorf("%d samples cannot be split among %d clients", n, clients)
	}
	perm := rng.Perm(n)
	parts := make([][]int, clients)
	for c := range parts {
		parts[c] = slices.Clone(perm[c*perClient : (c+1)*perClient])
	}
	return parts, nil
}

// PartitionNonIID sorts samples by label, cuts them into
// clients*shardsPerClient contiguous shards and deals shardsPerClient
// random shards to each client, so every client sees only a few classes.
func PartitionNonIID(labels []int32, clients, shardsPerClient int, rng *rand.Rand) ([][]int, error) {
	if clients <= 0 || shardsPerClient <= 0 {
		return nil, errors.Errorf("invalid non-IID split: %d clients, %d shards per client", clients, shardsPerClient)
	}
	numShards := clients * shardsPerClient
	shardSize := len(labels) / numShards
	if shardSize == 0 {
		return nil, errors.Errorf("%d samples cannot form %d shards", len(labels), numShards)
	}

	byLabel := make([]int, len(labels))
	for i := range byLabel {
		byLabel[i] = i
	}
	slices.SortStableFunc(byLabel, func(a, b int) int {
		return int(labels[a]) - int(labels[b])
	})

	shards := rng.Perm(numShards)
	parts := make([][]int, clients)
	for c := range parts {
		for _, s := range shards[c*shardsPerClient : (c+1)*shardsPerClient] {
			parts[c] = append(parts[c], byLabel[s*shardSize:(s+1)*shardSize]...)
		}
	}
	return parts, nil
}
