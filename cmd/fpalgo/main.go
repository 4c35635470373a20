package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/stevegt/fpalgo"
	"github.com/stevegt/fpalgo/draw"
	. "github.com/stevegt/goadapt"
)

const refShape = "(xor x0 x1 (squash 8) (squash 8) (squash 8) (squash 8) (squash 8) (squash 8) (normalize no yes))"

func main() {
	shapeTxt := flag.String("shape", refShape, "network shape")
	rate := flag.Float64("rate", 0.05, "learning rate")
	epochs := flag.Int("epochs", 10000, "maximum training epochs")
	maxCost := flag.Float64("maxcost", 0.05, "stop when mean cost drops below this")
	seed := flag.Int64("seed", 0, "random seed; 0 uses the clock")
	parallel := flag.Bool("parallel", false, "train with averaged full-batch steps on the worker pool")
	dotFn := flag.String("dot", "", "write a graphviz diagram of the trained network to this file")
	verbose := flag.Bool("v", false, "log training progress")
	flag.Parse()

	err := run(*shapeTxt, *rate, *epochs, *maxCost, *seed, *parallel, *dotFn, *verbose)
	if err != nil {
		Pf("fpalgo: %v\n", err)
		os.Exit(1)
	}
}

func run(shapeTxt string, rate float64, epochs int, maxCost float64, seed int64, parallel bool, dotFn string, verbose bool) (err error) {
	defer Return(&err)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	net, err := fpalgo.NewNetworkFromShape(shapeTxt, rng)
	Ck(err)
	if net.Params.InputCount() != 2 || net.Params.OutputCount() != 2 {
		return fmt.Errorf("xor needs 2 inputs and 2 outputs, shape has %d and %d",
			net.Params.InputCount(), net.Params.OutputCount())
	}

	var log *fpalgo.Log
	if verbose {
		log = fpalgo.NewLog(nil)
		net.SetLog(log)
	}

	ts := fpalgo.NewTrainingSet()
	ts.Add(fpalgo.Vector{0, 0}, fpalgo.Vector{1, 0})
	ts.Add(fpalgo.Vector{0, 1}, fpalgo.Vector{0, 1})
	ts.Add(fpalgo.Vector{1, 0}, fpalgo.Vector{0, 1})
	ts.Add(fpalgo.Vector{1, 1}, fpalgo.Vector{1, 0})

	start, err := net.Loss(ts)
	Ck(err)
	Pf("seed %d, initial cost %.6f\n", seed, start)

	var cost float64
	if parallel {
		cost, err = trainParallel(net, log, ts, rate, epochs, maxCost)
	} else {
		cost, err = net.Train(ts, rate, epochs, maxCost)
	}
	log.Close()
	if err != nil {
		Pf("%s: %v\n", net.GetName(), err)
	}
	Pf("final cost %.6f\n", cost)

	for _, tc := range ts.Cases {
		out, err := net.Predict(tc.Inputs)
		Ck(err)
		Pf("%v -> %.4f (want %v)\n", tc.Inputs, out, tc.Targets)
	}

	if dotFn != "" {
		opts := draw.Options{
			Title:       net.GetName(),
			InputNames:  net.InputNames,
			OutputNames: net.OutputNames,
			Weights:     true,
			Loss:        true,
		}
		err = os.WriteFile(dotFn, []byte(draw.Dot(net.Params, opts)), 0644)
		Ck(err)
		Pf("wrote %s\n", dotFn)
	}
	return nil
}

// trainParallel runs LearnParallel epochs until the mean cost drops
// below maxCost.
func trainParallel(net *fpalgo.Network, log *fpalgo.Log, ts *fpalgo.TrainingSet, rate float64, epochs int, maxCost float64) (cost float64, err error) {
	for i := 0; i < epochs; i++ {
		cost, err = net.LearnParallel(ts, rate)
		if err != nil {
			return
		}
		if i%100 == 0 {
			log.I("%s: epoch %d cost %.6f", net.GetName(), i, cost)
		}
		if cost < maxCost {
			log.I("%s: converged at epoch %d cost %.6f", net.GetName(), i, cost)
			return
		}
	}
	return cost, fmt.Errorf("max iterations reached")
}
