// Package tree implements CART decision trees and the ensembles built on them.
package tree

import (
	"math"
	"math/rand"
	"sort"
)

const leafNode = -1

// Node is one tree node. Leaves have Feature == -1 and carry Value: the mean
// target for regression or the class distribution for classification.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64
	Samples   int
}

// Tree is a flattened binary tree; Nodes[0] is the root.
type Tree struct {
	Nodes     []Node
	NFeatures int
}

// Apply returns the index of the leaf row falls into.
func (t *Tree) Apply(row []float64) int {
	i := 0
	for t.Nodes[i].Feature != leafNode {
		n := t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

func (t *Tree) Value(row []float64) []float64 {
	return t.Nodes[t.Apply(row)].Value
}

type growConfig struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	nClasses        int
	rng             *rand.Rand
}

func (c growConfig) classification() bool { return c.nClasses > 0 }

type builder struct {
	cfg         growConfig
	x           [][]float64
	y           []float64
	tree        *Tree
	importances []float64
}

// grow fits a tree on rows idx of x. For classification y holds class indexes.
// It returns the tree and unnormalised impurity decreases per feature.
func grow(x [][]float64, y []float64, idx []int, cfg growConfig) (*Tree, []float64) {
	nFeatures := len(x[0])
	if cfg.maxFeatures <= 0 || cfg.maxFeatures > nFeatures {
		cfg.maxFeatures = nFeatures
	}
	if cfg.minSamplesSplit < 2 {
		cfg.minSamplesSplit = 2
	}
	if cfg.minSamplesLeaf < 1 {
		cfg.minSamplesLeaf = 1
	}
	b := &builder{
		cfg:         cfg,
		x:           x,
		y:           y,
		tree:        &Tree{NFeatures: nFeatures},
		importances: make([]float64, nFeatures),
	}
	b.node(append([]int(nil), idx...), 0)
	return b.tree, b.importances
}

func (b *builder) node(idx []int, depth int) int {
	id := len(b.tree.Nodes)
	impurity, value := b.summarize(idx)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: leafNode, Value: value, Samples: len(idx)})

	if len(idx) < b.cfg.minSamplesSplit || impurity <= 1e-12 ||
		(b.cfg.maxDepth > 0 && depth >= b.cfg.maxDepth) {
		return id
	}
	feature, threshold, gain, ok := b.bestSplit(idx, impurity)
	if !ok || gain <= 1e-12 {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importances[feature] += gain
	l := b.node(left, depth+1)
	r := b.node(right, depth+1)
	b.tree.Nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: value, Samples: len(idx)}
	return id
}

// summarize returns node impurity (variance or gini) and the leaf value.
func (b *builder) summarize(idx []int) (float64, []float64) {
	n := float64(len(idx))
	if b.cfg.classification() {
		dist := make([]float64, b.cfg.nClasses)
		for _, i := range idx {
			dist[int(b.y[i])]++
		}
		gini := 1.0
		for k := range dist {
			dist[k] /= n
			gini -= dist[k] * dist[k]
		}
		return gini, dist
	}
	var sum, sq float64
	for _, i := range idx {
		sum += b.y[i]
		sq += b.y[i] * b.y[i]
	}
	mean := sum / n
	return math.Max(sq/n-mean*mean, 0), []float64{mean}
}

// bestSplit returns the split with the largest weighted impurity decrease.
func (b *builder) bestSplit(idx []int, parent float64) (int, float64, float64, bool) {
	features := make([]int, len(b.x[0]))
	for i := range features {
		features[i] = i
	}
	if b.cfg.maxFeatures < len(features) {
		b.cfg.rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:b.cfg.maxFeatures]
		sort.Ints(features)
	}

	n := len(idx)
	sorted := make([]int, n)
	bestGain, bestFeature, bestThreshold := 0.0, -1, 0.0
	for _, f := range features {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		acc := newAccumulator(b.cfg.nClasses, b.y, sorted)
		for pos := 0; pos < n-1; pos++ {
			acc.move(sorted[pos])
			nl := pos + 1
			if nl < b.cfg.minSamplesLeaf || n-nl < b.cfg.minSamplesLeaf {
				continue
			}
			lo, hi := b.x[sorted[pos]][f], b.x[sorted[pos+1]][f]
			if lo == hi {
				continue
			}
			gain := parent*float64(n) - acc.weightedImpurity()
			if gain > bestGain+1e-12 {
				bestGain, bestFeature, bestThreshold = gain, f, lo+(hi-lo)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestGain, bestFeature >= 0
}

// accumulator tracks left/right statistics while sweeping sorted rows.
type accumulator struct {
	classes          int
	y                []float64
	nl, nr           float64
	sumL, sumR       float64
	sqL, sqR         float64
	countsL, countsR []float64
}

func newAccumulator(classes int, y []float64, rows []int) *accumulator {
	a := &accumulator{classes: classes, y: y, nr: float64(len(rows))}
	if classes > 0 {
		a.countsL = make([]float64, classes)
		a.countsR = make([]float64, classes)
	}
	for _, i := range rows {
		if classes > 0 {
			a.countsR[int(y[i])]++
		} else {
			a.sumR += y[i]
			a.sqR += y[i] * y[i]
		}
	}
	return a
}

func (a *accumulator) move(i int) {
	a.nl++
	a.nr--
	v := a.y[i]
	if a.classes > 0 {
		a.countsL[int(v)]++
		a.countsR[int(v)]--
		return
	}
	a.sumL += v
	a.sumR -= v
	a.sqL += v * v
	a.sqR -= v * v
}

// weightedImpurity returns n_left*impurity_left + n_right*impurity_right.
func (a *accumulator) weightedImpurity() float64 {
	if a.classes > 0 {
		return a.nl*gini(a.countsL, a.nl) + a.nr*gini(a.countsR, a.nr)
	}
	return sse(a.sumL, a.sqL, a.nl) + sse(a.sumR, a.sqR, a.nr)
}

func gini(counts []float64, n float64) float64 {
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func sse(sum, sq, n float64) float64 {
	return math.Max(sq-sum*sum/n, 0)
}

func normalize(values []float64) []float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	out := make([]float64, len(values))
	if total == 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
