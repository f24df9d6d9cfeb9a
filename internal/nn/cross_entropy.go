package nn

import (
	"github.com/oh-jka/PDCED/internal/autodiff/ops"
	"github.com/oh-jka/PDCED/internal/tensor"
)

// CrossEntropyBackend is an interface for backends that record
// cross-entropy for differentiation.
type CrossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// CrossEntropyLoss computes the mean cross-entropy loss for multi-class
// classification from raw logits.
//
//	criterion := nn.NewCrossEntropyLoss(backend)
//	logits := model.Forward(input)             // [batch_size, num_classes]
//	loss := criterion.Forward(logits, targets) // targets: [batch_size] class indices
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{
		backend: backend,
	}
}

// Forward computes the loss, a tensor of shape [1].
//
// On an autodiff backend the operation is recorded on the tape.
func (c *CrossEntropyLoss[B]) Forward(logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	if adBackend, ok := any(c.backend).(CrossEntropyBackend); ok {
		return tensor.New[float32, B](adBackend.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
	}
	return tensor.New[float32, B](ops.CrossEntropyForward(logits.Raw(), targets.Raw(), c.backend.Device()), c.backend)
}

// Parameters returns nil (loss functions have no trainable parameters).
func (c *CrossEntropyLoss[B]) Parameters() []*Parameter[B] {
	return nil
}
