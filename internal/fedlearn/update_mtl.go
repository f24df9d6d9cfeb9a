package fedlearn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/oh-jka/PDCED/internal/config"
	"github.com/oh-jka/PDCED/internal/data"
	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/optim"
	"github.com/oh-jka/PDCED/internal/tensor"
)

// MTLMomentum is the SGD momentum of LocalUpdateMTL. It does not follow
// config.Args.Momentum.
const MTLMomentum float32 = 0.1

// LocalUpdateMTL trains a model on one client's shard with a multi-task
// penalty that couples the client's shared parameters to every other
// client's through a relationship matrix omega.
type LocalUpdateMTL[B Backend] struct {
	*localTrainer[B]
}

// NewLocalUpdateMTL creates the trainer for the samples of dataset selected
// by idxs. See NewLocalUpdate.
func NewLocalUpdateMTL[B Backend](args config.Args, dataset data.Dataset, idxs []int, pretrain bool, backend B) (*LocalUpdateMTL[B], error) {
	t, err := newLocalTrainer(args, dataset, idxs, pretrain, backend)
	if err != nil {
		return nil, err
	}
	return &LocalUpdateMTL[B]{localTrainer: t}, nil
}

// Train runs the local epochs on model with learning rate lr and returns a
// snapshot of the updated parameters with the mean loss.
//
// wGlob is the rows×clients matrix of every client's shared parameters and
// idx is this client's column. For each batch a working copy W of wGlob has
// column idx replaced by the current values of the parameters named in keys,
// flattened and concatenated in keys order, and MTLPenalty(W, omega) is
// added to the cross-entropy before back-propagation. wGlob is not modified.
func (u *LocalUpdateMTL[B]) Train(model nn.Model[B], lr float32, omega, wGlob *mat.Dense, idx int, keys []string) (*WeightResult, error) {
	shared, err := sharedParameters(model, keys)
	if err != nil {
		return nil, err
	}
	if err := checkMTLInputs(shared, omega, wGlob, idx); err != nil {
		return nil, err
	}

	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: lr, Momentum: MTLMomentum}, u.backend)
	penalty := func(loss *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
		w := workingMatrix(wGlob, idx, shared)
		value := MTLPenalty(w, omega)
		grads := splitColumn(MTLPenaltyGrad(w, omega, idx), shared)

		inputs := make([]*tensor.RawTensor, len(shared))
		for i, p := range shared {
			inputs[i] = p.Tensor().Raw()
		}
		reg := u.backend.Penalty(inputs, grads, float32(value))
		return loss.Add(tensor.New[float32](reg, u.backend))
	}

	loss, err := u.run(model, opt, penalty, nil)
	if err != nil {
		return nil, err
	}

	result := snapshot(model, loss)
	if klog.V(2).Enabled() {
		klog.Infof("local update (mtl): client %d, %d epochs, %d shared tensors, loss %.6f",
			idx, u.epochs(), len(shared), result.Loss)
	}
	return result, nil
}

// sharedParameters resolves keys to model parameters, in keys order.
func sharedParameters[B Backend](model nn.Model[B], keys []string) ([]*nn.Parameter[B], error) {
	if len(keys) == 0 {
		return nil, errors.New("no shared parameter keys")
	}
	byName := make(map[string]*nn.Parameter[B])
	for _, np := range model.NamedParameters() {
		byName[np.Name] = np.Param
	}
	shared := make([]*nn.Parameter[B], len(keys))
	for i, k := range keys {
		p, ok := byName[k]
		if !ok {
			return nil, errors.Errorf("unknown parameter key %q", k)
		}
		shared[i] = p
	}
	return shared, nil
}

func checkMTLInputs[B Backend](shared []*nn.Parameter[B], omega, wGlob *mat.Dense, idx int) error {
	if wGlob == nil || omega == nil {
		return errors.New("omega and the global weight matrix are required")
	}
	rows, clients := wGlob.Dims()
	if idx < 0 || idx >= clients {
		return errors.Errorf("client index %d out of range for %d clients", idx, clients)
	}
	if r, c := omega.Dims(); r != clients || c != clients {
		return errors.Errorf("omega is %dx%d, want %dx%d", r, c, clients, clients)
	}
	if n := nn.NumParameters(shared); n != rows {
		return errors.Errorf("shared parameters hold %d values, global weight matrix has %d rows", n, rows)
	}
	return nil
}

// workingMatrix copies wGlob and writes the current shared parameter values
// into column idx.
func workingMatrix[B Backend](wGlob *mat.Dense, idx int, shared []*nn.Parameter[B]) *mat.Dense {
	w := mat.DenseCopyOf(wGlob)
	row := 0
	for _, p := range shared {
		for _, v := range p.Tensor().Data() {
			w.Set(row, idx, float64(v))
			row++
		}
	}
	return w
}

// splitColumn cuts a column gradient into float32 tensors shaped like the
// shared parameters.
func splitColumn[B Backend](col []float64, shared []*nn.Parameter[B]) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(shared))
	offset := 0
	for i, p := range shared {
		g, err := tensor.NewRaw(p.Tensor().Shape(), tensor.Float32, p.Tensor().Device())
		if err != nil {
			panic(err)
		}
		data := g.AsFloat32()
		for j := range data {
			data[j] = float32(col[offset+j])
		}
		offset += len(data)
		grads[i] = g
	}
	return grads
}
