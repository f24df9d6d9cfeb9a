// Package config holds the hyperparameters of a client's local training run.
package config

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidArgs is returned by Validate (wrapped) for out-of-range values.
var ErrInvalidArgs = errors.New("invalid training arguments")

// Args is the read-only hyperparameter record shared by the local trainers.
//
// The learning rate is not part of Args: the federated round decides it and
// passes it to every Train call.
type Args struct {
	// LocalBS is the mini-batch size.
	LocalBS int `yaml:"local_bs"`
	// LocalEp is the number of local epochs per round.
	LocalEp int `yaml:"local_ep"`
	// LocalEpPretrain is the number of local epochs in pretraining mode.
	LocalEpPretrain int `yaml:"local_ep_pretrain"`
	// Momentum is the SGD momentum of the gradient-accumulation trainer.
	Momentum float32 `yaml:"momentum"`
	// Device names where training runs. Only "cpu" is available.
	Device string `yaml:"device"`
	// Seed drives shuffling and initialization. Equal seeds give equal runs.
	Seed int64 `yaml:"seed"`
}

// Default returns the defaults of the federated-learning harness.
func Default() Args {
	return Args{
		LocalBS:         10,
		LocalEp:         1,
		LocalEpPretrain: 0,
		Momentum:        0.5,
		Device:          "cpu",
		Seed:            1,
	}
}

// Load reads Args from a YAML file. Keys missing from the file keep their
// Default values; unknown keys are an error. The result is validated.
func Load(path string) (Args, error) {
	args := Default()
	content, err := os.ReadFile(path)
	if err != nil {
		return args, errors.Wrapf(err, "failed to read config %q", path)
	}
	if err := args.UnmarshalYAMLBytes(content); err != nil {
		return args, errors.Wrapf(err, "failed to parse config %q", path)
	}
	if err := args.Validate(); err != nil {
		return args, errors.Wrapf(err, "config %q", path)
	}
	return args, nil
}

// UnmarshalYAMLBytes overlays the YAML document in content on args.
func (a *Args) UnmarshalYAMLBytes(content []byte) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	return dec.Decode(a)
}

// Validate checks that every field is usable by the trainers.
func (a Args) Validate() error {
	switch {
	case a.LocalBS <= 0:
		return errors.Wrapf(ErrInvalidArgs, "local_bs must be positive, got %d", a.LocalBS)
	case a.LocalEp < 0:
		return errors.Wrapf(ErrInvalidArgs, "local_ep must not be negative, got %d", a.LocalEp)
	case a.LocalEpPretrain < 0:
		return errors.Wrapf(ErrInvalidArgs, "local_ep_pretrain must not be negative, got %d", a.LocalEpPretrain)
	case a.Momentum < 0 || a.Momentum >= 1:
		return errors.Wrapf(ErrInvalidArgs, "momentum must be in [0, 1), got %g", a.Momentum)
	case a.Device == "":
		return errors.Wrap(ErrInvalidArgs, "device must be set")
	}
	return nil
}

// Epochs returns the number of local epochs for a run.
func (a Args) Epochs(pretrain bool) int {
	if pretrain {
		return a.LocalEpPretrain
	}
	return a.LocalEp
}

// String renders the args as YAML.
func (a Args) String() string {
	out, err := yaml.Marshal(a)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
