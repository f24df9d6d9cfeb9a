package ops

import (
	"fmt"
	"math"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// CrossEntropyOp represents the cross-entropy loss operation.
//
// Forward:
//
//	Loss = mean(-log_softmax(logits)[targets])
//
// Where log_softmax uses the log-sum-exp trick for numerical stability:
//
//	log_softmax(z) = z - (max(z) + log(Σ exp(z - max(z))))
//
// Backward:
//
//	∂L/∂logits = (softmax(logits) - y_one_hot) / batch_size
//
// Assumptions:
//   - Logits shape: [batch_size, num_classes] (float32)
//   - Targets shape: [batch_size] (int32 class indices)
//   - Output: loss of shape [1] (mean over batch)
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a new cross-entropy operation.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{
		logits:  logits,
		targets: targets,
		output:  output,
	}
}

// CrossEntropyForward computes the mean cross-entropy of logits against targets.
//
// Panics on malformed shapes or out-of-range class indices.
func CrossEntropyForward(logits, targets *tensor.RawTensor, device tensor.Device) *tensor.RawTensor {
	batchSize, numClasses := crossEntropyDims(logits, targets)

	logitsData := logits.AsFloat32()
	targetsData := targets.AsInt32()

	var total float64
	for b := 0; b < batchSize; b++ {
		row := logitsData[b*numClasses : (b+1)*numClasses]
		target := int(targetsData[b])
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("cross entropy: target %d out of range [0, %d)", target, numClasses))
		}
		total -= float64(row[target]) - logSumExp(row)
	}

	result, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, device)
	if err != nil {
		panic(err)
	}
	result.AsFloat32()[0] = float32(total / float64(batchSize))
	return result
}

// Backward computes the gradient with respect to logits.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	batchSize, numClasses := crossEntropyDims(op.logits, op.targets)

	logitsGrad, err := tensor.NewRaw(op.logits.Shape(), tensor.Float32, op.logits.Device())
	if err != nil {
		panic(err)
	}

	logitsData := op.logits.AsFloat32()
	targetsData := op.targets.AsInt32()
	gradData := logitsGrad.AsFloat32()
	scale := float64(outputGrad.AsFloat32()[0]) / float64(batchSize)

	for b := 0; b < batchSize; b++ {
		row := logitsData[b*numClasses : (b+1)*numClasses]
		lse := logSumExp(row)
		target := int(targetsData[b])
		for i, z := range row {
			p := math.Exp(float64(z) - lse)
			if i == target {
				p--
			}
			gradData[b*numClasses+i] = float32(p * scale)
		}
	}

	return []*tensor.RawTensor{logitsGrad}
}

// Inputs returns the input tensors. Targets are not differentiated.
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits}
}

// Output returns the output tensor.
func (op *CrossEntropyOp) Output() *tensor.RawTensor {
	return op.output
}

func crossEntropyDims(logits, targets *tensor.RawTensor) (batchSize, numClasses int) {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross entropy: logits must be 2D [batch_size, num_classes], got %v", shape))
	}
	if targets.NumElements() != shape[0] {
		panic(fmt.Sprintf("cross entropy: %d targets for batch of %d", targets.NumElements(), shape[0]))
	}
	return shape[0], shape[1]
}

// logSumExp computes log(Σ exp(z)) with max-shifting.
func logSumExp(z []float32) float64 {
	maxZ := float64(z[0])
	for _, v := range z[1:] {
		maxZ = math.Max(maxZ, float64(v))
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(float64(v) - maxZ)
	}
	return maxZ + math.Log(sum)
}
