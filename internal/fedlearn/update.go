package fedlearn

import (
	"k8s.io/klog/v2"

	"github.com/oh-jka/PDCED/internal/config"
	"github.com/oh-jka/PDCED/internal/data"
	"github.com/oh-jka/PDCED/internal/device"
	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/optim"
)

// LocalUpdate trains a model on one client's shard with SGD (momentum from
// config.Args) and reports the gradients accumulated over the whole run.
type LocalUpdate[B Backend] struct {
	*localTrainer[B]
}

// NewLocalUpdate creates the trainer for the samples of dataset selected by
// idxs. Mini-batches of args.LocalBS are reshuffled every epoch; pretrain
// selects args.LocalEpPretrain instead of args.LocalEp epochs.
func NewLocalUpdate[B Backend](args config.Args, dataset data.Dataset, idxs []int, pretrain bool, backend B) (*LocalUpdate[B], error) {
	t, err := newLocalTrainer(args, dataset, idxs, pretrain, backend)
	if err != nil {
		return nil, err
	}
	return &LocalUpdate[B]{localTrainer: t}, nil
}

// Train runs the local epochs on model with learning rate lr.
//
// After every optimizer step the fresh gradient of each parameter is added
// to a per-parameter sum that starts at the first batch and is never reset
// across epochs. The sums are returned on the host, in Parameters() order,
// with the mean loss. The model is left in its SGD-updated state.
//
// Returns an error wrapping ErrNoBatches if nothing was trained.
func (u *LocalUpdate[B]) Train(model nn.Model[B], lr float32) (*GradResult, error) {
	params := model.Parameters()
	opt := optim.NewSGD(params, optim.SGDConfig{LR: lr, Momentum: u.args.Momentum}, u.backend)

	acc := &gradAccumulator[B]{}
	loss, err := u.run(model, opt, nil, func() { acc.add(params) })
	if err != nil {
		return nil, err
	}

	result := &GradResult{Grads: device.ToHost(acc.sums), Loss: loss}
	if klog.V(2).Enabled() {
		klog.Infof("local update: %d epochs, %d params, loss %.6f, |grad sum| %.6f",
			u.epochs(), len(params), result.Loss, result.Norm())
	}
	return result, nil
}

// TrainWeights runs the same local epochs as Train without accumulating
// gradients, and returns a snapshot of the updated parameters instead.
func (u *LocalUpdate[B]) TrainWeights(model nn.Model[B], lr float32) (*WeightResult, error) {
	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: lr, Momentum: u.args.Momentum}, u.backend)

	loss, err := u.run(model, opt, nil, nil)
	if err != nil {
		return nil, err
	}

	result := snapshot(model, loss)
	if klog.V(2).Enabled() {
		klog.Infof("local update (weights): %d epochs, loss %.6f", u.epochs(), result.Loss)
	}
	return result, nil
}

// snapshot copies every parameter of model into a WeightResult.
func snapshot[B Backend](model nn.Model[B], loss float64) *WeightResult {
	named := model.NamedParameters()
	keys := make([]string, len(named))
	for i, np := range named {
		keys[i] = np.Name
	}
	return &WeightResult{Weights: nn.Snapshot(model), Keys: keys, Loss: loss}
}
