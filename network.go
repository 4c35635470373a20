package fpalgo

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/stevegt/fpalgo/shape"
	"github.com/stevegt/fpalgo/workers"
	. "github.com/stevegt/goadapt"
)

// Network is a multi-layer perceptron with squashing hidden layers and
// a normalized output layer, trained by per-example gradient descent
// on cross-entropy loss.  The mutex makes a Network the single writer
// of its Params.
type Network struct {
	Name        string
	InputNames  []string
	OutputNames []string
	Params      *Params
	// Workers is the pool size used by Loss and LearnParallel; 0
	// means one worker per CPU.
	Workers int
	cost    float64 // most recent training cost
	log     *Log
	lock    sync.Mutex
}

// NewNetwork creates a new network with the given configuration.  The
// layerSizes arg is a slice of integers, where each integer is the
// number of nodes in a layer; the last layer is the output layer.
// Weights and biases are randomized from rng, or from the global
// source if rng is nil.
func NewNetwork(name string, rng *rand.Rand, inputCount int, layerSizes ...int) (net *Network) {
	net = &Network{
		Name:   name,
		Params: NewParams(rng, inputCount, layerSizes...),
	}
	return
}

// NewNetworkFromShape creates a randomized network from a shape
// expression such as "(xor x0 x1 (squash 4) (normalize y0 y1))".
func NewNetworkFromShape(txt string, rng *rand.Rand) (net *Network, err error) {
	defer Return(&err)
	s, err := shape.Parse(txt)
	Ck(err)
	net = NewNetwork(s.Name, rng, len(s.InputNames), s.LayerSizes()...)
	net.InputNames = append([]string{}, s.InputNames...)
	if len(s.OutputNames) > 0 {
		net.OutputNames = append([]string{}, s.OutputNames...)
	}
	return
}

// SetLog sets the log that Train reports progress to.  A nil log
// turns reporting off.
func (n *Network) SetLog(l *Log) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.log = l
}

// GetName returns the name of the network.
func (n *Network) GetName() string {
	return n.Name
}

// GetCost returns the cost of the most recent call to Train() or Learn().
func (n *Network) GetCost() float64 {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.cost
}

// SetInputNames sets the names of the inputs. The names are used in
// the arguments to LearnNamed() and PredictNamed().
func (n *Network) SetInputNames(names ...string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	Assert(len(names) == n.Params.InputCount())
	Assert(n.InputNames == nil)
	n.InputNames = names
}

// SetOutputNames sets the names of the outputs. The names are used in
// the arguments to LearnNamed() and PredictNamed().
func (n *Network) SetOutputNames(names ...string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	Assert(len(names) == n.Params.OutputCount())
	Assert(n.OutputNames == nil)
	n.OutputNames = names
}

// GetNames returns the names of the inputs and outputs.
func (n *Network) GetNames() (inputNames, outputNames []string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.InputNames, n.OutputNames
}

// Predict executes the forward function of a network and returns its
// output distribution.
func (n *Network) Predict(inputs Vector) (outputs Vector, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	outputs, _, err = Forward(inputs, n.Params)
	return
}

// PredictNamed returns named outputs for the given named inputs.  It
// ignores named inputs which are not in the network, and sets to zero
// named inputs which are in the network but not in the given map.
func (n *Network) PredictNamed(inputMap map[string]float64) (outputMap map[string]float64, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if len(n.InputNames) == 0 || len(n.OutputNames) == 0 {
		return nil, fmt.Errorf("network %s has no input or output names", n.Name)
	}
	inputs := namedVector(n.InputNames, inputMap)
	outputs, _, err := Forward(inputs, n.Params)
	if err != nil {
		return
	}
	outputMap = make(map[string]float64)
	for i, name := range n.OutputNames {
		outputMap[name] = outputs[i]
	}
	return
}

// namedVector lays out m in the order of names, with zero for
// missing names.
func namedVector(names []string, m map[string]float64) (v Vector) {
	v = make(Vector, len(names))
	for i, name := range names {
		v[i] = m[name]
	}
	return
}

// LearnNamed trains the network for one step with the given named
// input and target maps.  It ignores names which are not in the
// network, and uses zero for inputs and targets which are in the
// network but not in the given maps.  On the first call the names are
// taken from the maps, sorted, if they have not been set.
func (n *Network) LearnNamed(inputMap, targetMap map[string]float64, rate float64) (cost float64, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.InputNames == nil && n.OutputNames == nil {
		if len(inputMap) != n.Params.InputCount() || len(targetMap) != n.Params.OutputCount() {
			return 0, fmt.Errorf("%w: names: want %d inputs and %d targets, got %d and %d",
				ErrShapeMismatch, n.Params.InputCount(), n.Params.OutputCount(), len(inputMap), len(targetMap))
		}
		n.InputNames = sortedKeys(inputMap)
		n.OutputNames = sortedKeys(targetMap)
	}
	inputs := namedVector(n.InputNames, inputMap)
	targets := namedVector(n.OutputNames, targetMap)
	return n.learn(inputs, targets, rate)
}

func sortedKeys(m map[string]float64) (keys []string) {
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}

// Learn runs one training step: forward, loss, backward, update.  It
// returns the cross-entropy cost measured before the update.
func (n *Network) Learn(inputs, targets Vector, rate float64) (cost float64, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.learn(inputs, targets, rate)
}

func (n *Network) learn(inputs, targets Vector, rate float64) (cost float64, err error) {
	outputs, cache, err := Forward(inputs, n.Params)
	if err != nil {
		return
	}
	cost, err = CrossEntropy(outputs, targets)
	if err != nil {
		return
	}
	grads, err := Backward(targets, outputs, cache, n.Params)
	if err != nil {
		return
	}
	err = Update(n.Params, grads, rate)
	if err != nil {
		return
	}
	n.cost = cost
	return
}

// Train the network given a training set.  Each iteration runs one
// Learn step per case; training stops when the mean cost of an
// iteration drops below maxCost.
func (n *Network) Train(trainingSet *TrainingSet, learningRate float64, iterations int, maxCost float64) (cost float64, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if len(trainingSet.Cases) == 0 {
		return 0, fmt.Errorf("empty training set")
	}

	for i := 0; i < iterations; i++ {
		cost = 0.0
		for _, tc := range trainingSet.Cases {
			c, err := n.learn(tc.Inputs, tc.Targets, learningRate)
			if err != nil {
				return cost, fmt.Errorf("iteration %d: %w", i, err)
			}
			cost += c
		}
		cost /= float64(len(trainingSet.Cases))
		n.cost = cost
		if i%100 == 0 {
			n.log.I("%s: iteration %d cost %.6f", n.Name, i, cost)
		}
		if cost < maxCost {
			n.log.I("%s: converged at iteration %d cost %.6f", n.Name, i, cost)
			return cost, nil
		}
	}
	return cost, fmt.Errorf("max iterations reached")
}

// Loss returns the mean cross-entropy of the network over the
// training set without changing it.  Cases are evaluated
// concurrently, each with its own forward pass.
func (n *Network) Loss(trainingSet *TrainingSet) (loss float64, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if len(trainingSet.Cases) == 0 {
		return 0, fmt.Errorf("empty training set")
	}
	losses := make([]float64, len(trainingSet.Cases))
	errs := make([]error, len(trainingSet.Cases))
	pool := workers.NewPool(n.Workers)
	defer pool.Close()
	for i, tc := range trainingSet.Cases {
		i, tc := i, tc
		pool.Submit(func() {
			outputs, _, err := Forward(tc.Inputs, n.Params)
			if err != nil {
				errs[i] = err
				return
			}
			losses[i], errs[i] = CrossEntropy(outputs, tc.Targets)
		})
	}
	pool.Wait()
	for i := range losses {
		if errs[i] != nil {
			return 0, fmt.Errorf("case %d: %w", i, errs[i])
		}
		loss += losses[i]
	}
	loss /= float64(len(losses))
	return
}

// LearnParallel runs forward and backward for every case
// concurrently against the same params, averages the gradients and
// applies them in a single Update.  It returns the mean cost
// measured before the update.
func (n *Network) LearnParallel(trainingSet *TrainingSet, rate float64) (cost float64, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	count := len(trainingSet.Cases)
	if count == 0 {
		return 0, fmt.Errorf("empty training set")
	}
	costs := make([]float64, count)
	grads := make([]*Gradients, count)
	errs := make([]error, count)
	pool := workers.NewPool(n.Workers)
	defer pool.Close()
	for i, tc := range trainingSet.Cases {
		i, tc := i, tc
		pool.Submit(func() {
			outputs, cache, err := Forward(tc.Inputs, n.Params)
			if err == nil {
				costs[i], err = CrossEntropy(outputs, tc.Targets)
			}
			if err == nil {
				grads[i], err = Backward(tc.Targets, outputs, cache, n.Params)
			}
			errs[i] = err
		})
	}
	pool.Wait()

	total := NewGradients(n.Params)
	for i := 0; i < count; i++ {
		if errs[i] != nil {
			return 0, fmt.Errorf("case %d: %w", i, errs[i])
		}
		err = total.Add(grads[i])
		Assert(err == nil, err)
		cost += costs[i]
	}
	total.Scale(1 / float64(count))
	cost /= float64(count)
	err = Update(n.Params, total, rate)
	if err != nil {
		return
	}
	n.cost = cost
	return
}

// Validate validates a network against a training set, ensuring that
// the cross-entropy of every case is within maxCost.
func (n *Network) Validate(ts *TrainingSet, maxCost float64) (err error) {
	for _, tc := range ts.Cases {
		outputs, err := n.Predict(tc.Inputs)
		if err != nil {
			return err
		}
		cost, err := CrossEntropy(outputs, tc.Targets)
		if err != nil {
			return err
		}
		if cost > maxCost {
			return fmt.Errorf("cost too high for inputs: %v, expected: %v, got: %v", tc.Inputs, tc.Targets, outputs)
		}
	}
	return
}

// Zero initializes the weights and biases to zero.
func (n *Network) Zero() {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.Params.Zero()
}

// Randomize sets the weights and biases to random values in [-1, 1).
func (n *Network) Randomize(rng *rand.Rand) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.Params.Randomize(rng)
}

// Clone returns a deep copy of the network, giving it a new name.
func (n *Network) Clone(newName string) (clone *Network) {
	n.lock.Lock()
	defer n.lock.Unlock()
	clone = &Network{
		Name:        newName,
		InputNames:  append([]string(nil), n.InputNames...),
		OutputNames: append([]string(nil), n.OutputNames...),
		Params:      n.Params.Clone(),
		Workers:     n.Workers,
		cost:        n.cost,
	}
	return
}

// TrainingSet represents a set of training cases.
type TrainingSet struct {
	Cases []*TrainingCase
}

// NewTrainingSet creates a new training set.
func NewTrainingSet() (ts *TrainingSet) {
	ts = &TrainingSet{}
	return
}

// Add adds a training case to the set.
func (ts *TrainingSet) Add(inputs, targets Vector) {
	ts.Cases = append(ts.Cases, NewTrainingCase(inputs, targets))
}

// Append appends the given training set to the current training set,
// returning a new training set.
func (ts *TrainingSet) Append(other *TrainingSet) (newSet *TrainingSet) {
	newSet = NewTrainingSet()
	newSet.Cases = append(newSet.Cases, ts.Cases...)
	newSet.Cases = append(newSet.Cases, other.Cases...)
	return
}

// TrainingCase represents a single training case.  Targets is a
// one-hot vector or, more generally, a probability distribution.
type TrainingCase struct {
	Inputs  Vector
	Targets Vector
}

// NewTrainingCase creates a new training case.
func NewTrainingCase(inputs, targets Vector) (c *TrainingCase) {
	c = &TrainingCase{}
	c.Inputs = inputs
	c.Targets = targets
	return
}

// MkTrainingSet creates a new training set by running the given inputs
// through the network.  The targets in the input training set are
// ignored; the network's output distributions become the new targets.
func (n *Network) MkTrainingSet(trainingSet *TrainingSet) (newSet *TrainingSet, err error) {
	newSet = NewTrainingSet()
	for _, tc := range trainingSet.Cases {
		outputs, err := n.Predict(tc.Inputs)
		if err != nil {
			return nil, err
		}
		newSet.Add(tc.Inputs, outputs)
	}
	return
}

// Mimic trains the network to match the outputs of oldNet given
// trainingSet inputs.  Ignores the target values in trainingSet; instead
// asks oldNet to predict output values for trainingSet inputs, then
// uses those output values as targets for training the network.
func (n *Network) Mimic(oldNet *Network, trainingSet *TrainingSet, learningRate float64, iterations int, maxCost float64) (cost float64, err error) {
	newSet, err := oldNet.MkTrainingSet(trainingSet)
	if err != nil {
		return
	}
	cost, err = n.Train(newSet, learningRate, iterations, maxCost)
	return
}
