package optim

import (
	"fmt"

	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Velocities start at zero, so the first step with momentum equals a plain
// SGD step.
//
// Updates are applied directly to parameter storage and never reach the
// gradient tape.
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter[B]][]float32
	backend    B
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate; zero leaves parameters unchanged
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer over params.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[B]][]float32),
		backend:    backend,
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient (not in computational graph) are skipped.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		if !grad.Shape().Equal(param.Tensor().Shape()) {
			panic(fmt.Sprintf("sgd: gradient shape %v does not match parameter %q shape %v",
				grad.Shape(), param.Name(), param.Tensor().Shape()))
		}

		if s.momentum == 0 {
			s.updateParameter(param, grad.AsFloat32())
		} else {
			s.updateParameterWithMomentum(param, grad.AsFloat32())
		}
	}
}

// updateParameter performs simple SGD update without momentum.
func (s *SGD[B]) updateParameter(param *nn.Parameter[B], grad []float32) {
	data := param.Tensor().Data()
	for i, g := range grad {
		data[i] -= s.lr * g
	}
}

// updateParameterWithMomentum performs SGD update with momentum.
func (s *SGD[B]) updateParameterWithMomentum(param *nn.Parameter[B], grad []float32) {
	velocity, exists := s.velocities[param]
	if !exists {
		velocity = make([]float32, len(grad))
		s.velocities[param] = velocity
	}

	data := param.Tensor().Data()
	for i, g := range grad {
		velocity[i] = s.momentum*velocity[i] + g
		data[i] -= s.lr * velocity[i]
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	nn.ZeroGrad(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// GetMomentum returns the momentum factor.
func (s *SGD[B]) GetMomentum() float32 {
	return s.momentum
}
