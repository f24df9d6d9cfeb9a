// pdced simulates the client side of one federated-learning round: a global
// model is copied to every client, each client trains it on its own shard of
// a synthetic or MNIST classification dataset, and the per-client updates are
// reported (and optionally exported as SafeTensors files). There is no
// aggregation step.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/oh-jka/PDCED/internal/autodiff"
	"github.com/oh-jka/PDCED/internal/backend/cpu"
	"github.com/oh-jka/PDCED/internal/config"
	"github.com/oh-jka/PDCED/internal/data"
	"github.com/oh-jka/PDCED/internal/device"
	"github.com/oh-jka/PDCED/internal/fedlearn"
	"github.com/oh-jka/PDCED/internal/nn"
	"github.com/oh-jka/PDCED/internal/parallel"
	"github.com/oh-jka/PDCED/internal/serialization"
	"github.com/oh-jka/PDCED/internal/tensor"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

var (
	flagConfig = flag.String("config", "", "YAML file with local training arguments. Defaults are used if empty.")

	// Dataset and partitioning.
	flagClients  = flag.Int("clients", 10, "Number of simulated clients.")
	flagSamples  = flag.Int("samples", 2000, "Number of synthetic samples.")
	flagFeatures = flag.Int("features", 20, "Number of input features per sample.")
	flagClasses  = flag.Int("classes", 4, "Number of classes.")
	flagMNIST    = flag.String("mnist", "", "Directory with MNIST train-images-idx3-ubyte and train-labels-idx1-ubyte. Replaces the synthetic dataset.")
	flagNonIID   = flag.Bool("noniid", false, "Give each client only a few label-sorted shards instead of a uniform split.")
	flagShards   = flag.Int("shards", 2, "Shards per client with -noniid.")

	// Model and training.
	flagHidden   = flag.String("hidden", "64", "Comma-separated hidden layer sizes. Empty for softmax regression.")
	flagGlobal   = flag.String("global", "", "SafeTensors file (F32 or F16) with the global model weights. Random initialization if empty.")
	flagLR       = flag.Float64("lr", 0.01, "Learning rate of the round.")
	flagMTL      = flag.Bool("mtl", false, "Train with the multi-task penalty and report weights instead of gradients.")
	flagPretrain = flag.Bool("pretrain", false, "Train for local_ep_pretrain epochs instead of local_ep. local_ep_pretrain defaults to 0, so set it with -local_ep_pretrain or -config.")

	// Overrides of the config file.
	flagLocalBS    = flag.Int("local_bs", 0, "Overrides local_bs if > 0.")
	flagLocalEp    = flag.Int("local_ep", -1, "Overrides local_ep if >= 0.")
	flagPretrainEp = flag.Int("local_ep_pretrain", -1, "Overrides local_ep_pretrain if >= 0.")
	flagMomentum   = flag.Float64("momentum", -1, "Overrides momentum if >= 0.")
	flagSeed       = flag.Int64("seed", 0, "Overrides seed if != 0.")

	flagWorkers = flag.Int("workers", runtime.NumCPU(), "Clients trained concurrently.")

	flagOut = flag.String("out", "", "Directory to write one SafeTensors file per client update. Nothing is written if empty.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := loadArgs()
	if err := run(args); err != nil {
		klog.Fatalf("%+v", err)
	}
}

// loadArgs reads the config file, if any, and applies flag overrides.
func loadArgs() config.Args {
	args := config.Default()
	if *flagConfig != "" {
		args = must.M1(config.Load(*flagConfig))
	}
	if *flagLocalBS > 0 {
		args.LocalBS = *flagLocalBS
	}
	if *flagLocalEp >= 0 {
		args.LocalEp = *flagLocalEp
	}
	if *flagPretrainEp >= 0 {
		args.LocalEpPretrain = *flagPretrainEp
	}
	if *flagMomentum >= 0 {
		args.Momentum = float32(*flagMomentum)
	}
	if *flagSeed != 0 {
		args.Seed = *flagSeed
	}
	must.M(args.Validate())
	must.M(checkEpochs(args, *flagPretrain))
	return args
}

// checkEpochs rejects a run that would train for zero local epochs.
func checkEpochs(args config.Args, pretrain bool) error {
	if args.Epochs(pretrain) > 0 {
		return nil
	}
	if pretrain {
		return errors.New("-pretrain needs local_ep_pretrain > 0 (set -local_ep_pretrain or the config file)")
	}
	return errors.New("local_ep is 0, nothing to train")
}

// clientReport is one line of the round summary.
type clientReport struct {
	samples int
	loss    float64
	norm    float64
}

func run(args config.Args) error {
	roundID := uuid.NewString()
	klog.V(1).Infof("round %s on %s", roundID, device.Describe())
	klog.V(1).Infof("arguments:\n%s", args)

	//nolint:gosec // math/rand is fine for simulation
	rng := rand.New(rand.NewSource(args.Seed))
	dataset, features, classes, err := loadDataset(rng)
	if err != nil {
		return err
	}

	var parts [][]int
	if *flagNonIID {
		parts, err = data.PartitionNonIID(data.Labels(dataset), *flagClients, *flagShards, rng)
	} else {
		parts, err = data.PartitionIID(dataset.Len(), *flagClients, rng)
	}
	if err != nil {
		return errors.Wrap(err, "failed to partition dataset")
	}

	hidden, err := parseHidden(*flagHidden)
	if err != nil {
		return err
	}
	global := nn.NewMLP(features, hidden, classes, autodiff.New(cpu.New()), rng)
	if *flagGlobal != "" {
		if err := loadGlobal(global, *flagGlobal); err != nil {
			return err
		}
	}
	r := &round{
		id:       roundID,
		args:     args,
		data:     dataset,
		features: features,
		hidden:   hidden,
		classes:  classes,
		global:   nn.Snapshot[backendT](global),
	}
	fmt.Printf("Round %s: %d clients, model with %s parameters, %s samples\n",
		roundID, *flagClients, humanize.Comma(int64(nn.NumParameters(global.Parameters()))),
		humanize.Comma(int64(dataset.Len())))

	if *flagOut != "" {
		if err := os.MkdirAll(*flagOut, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create output directory %q", *flagOut)
		}
	}
	if *flagMTL {
		r.mtl = newMTLState(global, *flagClients)
	}

	bar := progressbar.NewOptions(len(parts),
		progressbar.OptionSetDescription("local updates"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
	reports := make([]clientReport, len(parts))
	err = parallel.ForEach(len(parts), parallel.Config{Workers: *flagWorkers}, func(client int) error {
		report, err := r.train(client, parts[client])
		if err != nil {
			return errors.Wrapf(err, "client %d", client)
		}
		reports[client] = report
		_ = bar.Add(1)
		return nil
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()

	fmt.Printf("%-8s %8s %12s %12s\n", "client", "samples", "loss", "|update|")
	for client, r := range reports {
		fmt.Printf("%-8d %8d %12.6f %12.6f\n", client, r.samples, r.loss, r.norm)
	}
	return nil
}

// round holds what every client of the round reads.
type round struct {
	id       string
	args     config.Args
	data     data.Dataset
	features int
	hidden   []int
	classes  int
	global   map[string]*tensor.RawTensor
	mtl      *mtlState
}

// train runs one client's local update on a private copy of the global
// model. Every client gets its own backend, so clients can train
// concurrently.
func (r *round) train(client int, idxs []int) (clientReport, error) {
	backend := autodiff.New(cpu.New())
	//nolint:gosec // initial weights are overwritten by the global model
	model := nn.NewMLP(r.features, r.hidden, r.classes, backend, rand.New(rand.NewSource(int64(client))))
	if err := model.LoadStateDict(r.global); err != nil {
		return clientReport{}, errors.Wrap(err, "failed to copy global model")
	}

	report := clientReport{samples: len(idxs)}
	var tensors map[string]*tensor.RawTensor
	var kind string
	if r.mtl != nil {
		trainer, err := fedlearn.NewLocalUpdateMTL(r.args, r.data, idxs, *flagPretrain, backend)
		if err != nil {
			return report, err
		}
		res, err := trainer.Train(model, float32(*flagLR), r.mtl.omega, r.mtl.w, client, r.mtl.keys)
		if err != nil {
			return report, err
		}
		report.loss, report.norm = res.Loss, res.Norm()
		tensors, kind = res.Weights, "weights"
	} else {
		trainer, err := fedlearn.NewLocalUpdate(r.args, r.data, idxs, *flagPretrain, backend)
		if err != nil {
			return report, err
		}
		res, err := trainer.Train(model, float32(*flagLR))
		if err != nil {
			return report, err
		}
		report.loss, report.norm = res.Loss, res.Norm()
		tensors, kind = namedGrads(model, res), "grads"
	}

	if *flagOut == "" {
		return report, nil
	}
	path := filepath.Join(*flagOut, fmt.Sprintf("client-%03d.safetensors", client))
	return report, serialization.WriteSafeTensors(path, tensors, map[string]string{
		"round":  r.id,
		"client": strconv.Itoa(client),
		"kind":   kind,
		"loss":   strconv.FormatFloat(report.loss, 'g', -1, 64),
	})
}

// loadGlobal overwrites the weights of model with those stored in a
// SafeTensors file, keyed by qualified parameter name.
func loadGlobal(model *nn.Sequential[backendT], path string) error {
	tensors, meta, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read global model %q", path)
	}
	if err := model.LoadStateDict(tensors); err != nil {
		return errors.Wrapf(err, "global model %q does not match the model", path)
	}
	klog.V(1).Infof("global model: %d tensors from %s %v", len(tensors), path, meta)
	return nil
}

// loadDataset returns the MNIST training set if -mnist is set, synthetic
// blobs otherwise, with its flattened feature and class counts.
func loadDataset(rng *rand.Rand) (data.Dataset, int, int, error) {
	if *flagMNIST == "" {
		ds, err := data.Blobs(data.BlobsConfig{
			Samples:  *flagSamples,
			Features: *flagFeatures,
			Classes:  *flagClasses,
		}, rng)
		return ds, *flagFeatures, *flagClasses, err
	}

	ds, err := data.LoadIDX(
		filepath.Join(*flagMNIST, "train-images-idx3-ubyte"),
		filepath.Join(*flagMNIST, "train-labels-idx1-ubyte"))
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "failed to load MNIST")
	}
	if ds.Len() == 0 {
		return nil, 0, 0, errors.Errorf("no samples in %q", *flagMNIST)
	}
	classes := int(slices.Max(data.Labels(ds))) + 1
	return ds, ds.SampleShape().NumElements(), classes, nil
}

// namedGrads keys accumulated gradients by parameter name.
func namedGrads(model *nn.Sequential[backendT], res *fedlearn.GradResult) map[string]*tensor.RawTensor {
	named := model.NamedParameters()
	out := make(map[string]*tensor.RawTensor, len(named))
	for i, np := range named {
		out[np.Name] = res.Grads[i]
	}
	return out
}

// mtlState is the shared multi-task input of a round: every parameter of the
// model is shared, each client column starts at the global model, and omega
// is the identity (clients unrelated).
type mtlState struct {
	keys  []string
	w     *mat.Dense
	omega *mat.Dense
}

func newMTLState(global *nn.Sequential[backendT], clients int) *mtlState {
	named := global.NamedParameters()
	keys := make([]string, len(named))
	var flat []float64
	for i, np := range named {
		keys[i] = np.Name
		for _, v := range np.Param.Tensor().Data() {
			flat = append(flat, float64(v))
		}
	}

	w := mat.NewDense(len(flat), clients, nil)
	for c := 0; c < clients; c++ {
		w.SetCol(c, flat)
	}
	omega := mat.NewDense(clients, clients, nil)
	for c := 0; c < clients; c++ {
		omega.Set(c, c, 1)
	}
	return &mtlState{keys: keys, w: w, omega: omega}
}

func parseHidden(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var hidden []int
	for _, part := range strings.Split(s, ",") {
		h, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || h <= 0 {
			return nil, errors.Errorf("invalid hidden layer size %q", part)
		}
		hidden = append(hidden, h)
	}
	return hidden, nil
}
