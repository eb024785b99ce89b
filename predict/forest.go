package predict

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"

	"car-advisor/models"
)

// ForestParams controls random-forest training.
type ForestParams struct {
	Trees          int    `json:"trees"`
	MaxDepth       int    `json:"max_depth"`        // 0 means unbounded
	MinSamplesLeaf int    `json:"min_samples_leaf"` // at least 1
	MaxFeatures    int    `json:"max_features"`     // features tried per split; 0 means all
	Seed           uint64 `json:"seed"`

	// Workers bounds parallel tree fitting; 0 means one per tree.
	Workers int `json:"-"`
}

// DefaultForestParams mirrors a stock random-forest regressor.
func DefaultForestParams() ForestParams {
	return ForestParams{Trees: 100, MinSamplesLeaf: 1, Seed: 42}
}

// node is one split or leaf of a flattened regression tree. Leaves have
// Feature == -1.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t *tree) predict(x models.FeatureVector) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of CART regression trees.
type Forest struct {
	Params ForestParams `json:"params"`
	Trees  []tree       `json:"trees"`
}

var errNoSamples = errors.New("forest: no training samples")

// FitForest trains a forest on X and y. Every tree draws a bootstrap sample
// from its own seeded generator, so results do not depend on scheduling.
func FitForest(ctx context.Context, X []models.FeatureVector, y []float64, p ForestParams) (*Forest, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, errNoSamples
	}
	if p.Trees <= 0 {
		p.Trees = 1
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > models.FeatureCount {
		p.MaxFeatures = models.FeatureCount
	}

	f := &Forest{Params: p, Trees: make([]tree, p.Trees)}
	g, ctx := errgroup.WithContext(ctx)
	if p.Workers > 0 {
		g.SetLimit(p.Workers)
	}
	for t := range f.Trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(p.Seed, uint64(t)))
			sample := make([]int, len(X))
			for i := range sample {
				sample[i] = rng.IntN(len(X))
			}
			b := &builder{X: X, y: y, p: p, rng: rng}
			b.grow(sample, 0)
			f.Trees[t] = tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// Predict averages the trees' estimates.
func (f *Forest) Predict(x models.FeatureVector) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees))
}

type builder struct {
	X     []models.FeatureVector
	y     []float64
	p     ForestParams
	rng   *rand.Rand
	nodes []node
}

// grow appends the subtree for idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, node{Feature: -1, Value: b.mean(idx)})

	if len(idx) < 2*b.p.MinSamplesLeaf || (b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) {
		return self
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

// bestSplit finds the split with the largest reduction in squared error
// over a random subset of features.
func (b *builder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	n := float64(len(idx))
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/n
	if parentSSE <= 1e-9 {
		return 0, 0, false
	}

	features := b.rng.Perm(models.FeatureCount)[:b.p.MaxFeatures]
	sorted := make([]int, len(idx))
	bestSSE := parentSSE
	minLeaf := b.p.MinSamplesLeaf

	for _, f := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var leftSum, leftSq float64
		for k := 0; k < len(sorted)-1; k++ {
			yi := b.y[sorted[k]]
			leftSum += yi
			leftSq += yi * yi

			nl := k + 1
			if nl < minLeaf || len(sorted)-nl < minLeaf {
				continue
			}
			cur, next := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nr := float64(len(sorted) - nl)
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/nr)
			if sse < bestSSE {
				bestSSE, feature, threshold, ok = sse, f, (cur+next)/2, true
			}
		}
	}
	return feature, threshold, ok
}

func (b *builder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}
