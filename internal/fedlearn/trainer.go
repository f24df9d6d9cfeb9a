// Package fedlearn implements the client side of a federated-learning round:
// local SGD on a client's data shard, returning either the accumulated
// gradients or a (regularized) parameter snapshot.
//
// Both trainers are synchronous and single-threaded. They mutate the model
// they are given in place; callers must serialize use of a model.
package fedlearn

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/oh-jka/PDCED/internal/autodiff"
	"github.com/oh-jka/PDCED/internal/config"
	"github.com/oh-jka/PDCED/internal/data"
	"github.com/oh-jka/PDCED/internal/device"
	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/optim"
	"github.com/oh-jka/PDCED/internal/tensor"
)

// Backend is what local training needs from a compute backend: a gradient
// tape and a way to record externally evaluated penalty terms.
// *autodiff.AutodiffBackend satisfies it.
type Backend interface {
	autodiff.BackwardCapable
	Penalty(inputs, grads []*tensor.RawTensor, value float32) *tensor.RawTensor
}

// extraLoss adds a term to the batch loss before back-propagation.
type extraLoss[B Backend] func(loss *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

// localTrainer holds what both trainer variants share: the client's shard
// loader, the criterion and the read-only arguments.
type localTrainer[B Backend] struct {
	args      config.Args
	loader    *data.DataLoader
	criterion *nn.CrossEntropyLoss[B]
	pretrain  bool
	backend   B
	device    tensor.Device
}

func newLocalTrainer[B Backend](args config.Args, dataset data.Dataset, idxs []int, pretrain bool, backend B) (*localTrainer[B], error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	dev, err := device.Parse(args.Device)
	if err != nil {
		return nil, err
	}
	if err := device.Check(dev); err != nil {
		return nil, err
	}

	shard, err := data.NewSubset(dataset, idxs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select client shard")
	}
	//nolint:gosec // math/rand is fine for shuffling
	rng := rand.New(rand.NewSource(args.Seed))
	loader, err := data.NewDataLoader(shard, args.LocalBS, true, rng)
	if err != nil {
		return nil, err
	}

	return &localTrainer[B]{
		args:      args,
		loader:    loader,
		criterion: nn.NewCrossEntropyLoss(backend),
		pretrain:  pretrain,
		backend:   backend,
		device:    dev,
	}, nil
}

// epochs returns the number of local epochs of one Train call.
func (t *localTrainer[B]) epochs() int {
	return t.args.Epochs(t.pretrain)
}

// NumBatches returns the number of mini-batches per local epoch.
func (t *localTrainer[B]) NumBatches() int {
	return t.loader.NumBatches()
}

// checkModel verifies the model lives where training runs.
func (t *localTrainer[B]) checkModel(model nn.Model[B]) error {
	for _, np := range model.NamedParameters() {
		if d := np.Param.Tensor().Device(); d != t.device {
			return errors.Errorf("parameter %q is on %s, training runs on %s", np.Name, d, t.device)
		}
	}
	return nil
}

// run executes the local epochs. For each shuffled mini-batch it zeroes the
// gradients, evaluates the criterion (plus extra, if set), back-propagates,
// steps the optimizer and assigns the gradients to the parameters, then
// calls afterStep. It returns the mean over epochs of the mean batch loss.
func (t *localTrainer[B]) run(model nn.Model[B], opt optim.Optimizer, extra extraLoss[B], afterStep func()) (float64, error) {
	epochs := t.epochs()
	if epochs == 0 || t.loader.NumBatches() == 0 {
		return 0, errors.Wrapf(ErrNoBatches, "%d epochs over %d batches", epochs, t.loader.NumBatches())
	}
	if err := t.checkModel(model); err != nil {
		return 0, err
	}

	params := model.Parameters()
	tape := t.backend.GetTape()
	tape.Clear()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	epochLoss := make([]float64, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		batches := t.loader.Epoch()
		batchLoss := make([]float64, 0, len(batches))
		for _, batch := range batches {
			inputs, labels, err := t.toDevice(batch)
			if err != nil {
				return 0, err
			}

			tape.StartRecording()
			opt.ZeroGrad()
			loss := t.criterion.Forward(model.Forward(inputs), labels)
			if extra != nil {
				loss = extra(loss)
			}
			grads := autodiff.Backward(loss, t.backend)
			tape.StopRecording()

			opt.Step(grads)
			nn.AssignGrads(params, grads)
			tape.Clear()

			if afterStep != nil {
				afterStep()
			}
			l := float64(loss.Item())
			if math.IsNaN(l) || math.IsInf(l, 0) {
				klog.Warningf("local epoch %d/%d: non-finite batch loss %v (lr too large?)", epoch+1, epochs, l)
			}
			batchLoss = append(batchLoss, l)
		}
		epochLoss = append(epochLoss, stat.Mean(batchLoss, nil))
		klog.V(1).Infof("local epoch %d/%d: %d batches, loss %.6f", epoch+1, epochs, len(batchLoss), epochLoss[epoch])
	}
	return stat.Mean(epochLoss, nil), nil
}

// toDevice builds the batch tensors and places them on the training device.
func (t *localTrainer[B]) toDevice(batch data.Batch) (*tensor.Tensor[float32, B], *tensor.Tensor[int32, B], error) {
	inputs, err := tensor.FromSlice(batch.Inputs, batch.Shape, t.backend)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build input batch")
	}
	labels, err := tensor.FromSlice(batch.Labels, tensor.Shape{batch.Size()}, t.backend)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build label batch")
	}

	inputsRaw, err := device.ToDevice(inputs.Raw(), t.device)
	if err != nil {
		return nil, nil, err
	}
	labelsRaw, err := device.ToDevice(labels.Raw(), t.device)
	if err != nil {
		return nil, nil, err
	}
	return tensor.New[float32](inputsRaw, t.backend), tensor.New[int32](labelsRaw, t.backend), nil
}
