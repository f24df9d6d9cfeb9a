package fedlearn

import "github.com/pkg/errors"

// ErrNoBatches is returned when a Train call would process no mini-batch
// (an empty shard or zero local epochs), leaving the mean loss undefined.
var ErrNoBatches = errors.New("local training produced no batches")
