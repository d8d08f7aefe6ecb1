package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// ForestConfig contains configuration for the isolation forest.
type ForestConfig struct {
	// Trees is the ensemble size. Default: 100.
	Trees int

	// SampleSize caps the per-tree subsample. Default: 256.
	SampleSize int

	// Contamination is the expected proportion of anomalous points and
	// drives the decision threshold. Default: 0.05.
	Contamination float64

	// Seed for reproducible tree construction. If 0, uses a default seed.
	Seed int64
}

// IsolationForest is an unsupervised outlier model: it builds random
// partitioning trees over the feature vectors and treats points that are
// isolated in fewer splits as anomalous.
//
// Reference: "Isolation Forest" (Liu, Ting, Zhou, 2008).
//
// Scores follow the decision-function convention: higher means more
// inlier-like, and points strictly below the contamination quantile are
// flagged. Construction is fully seeded, so identical input yields identical
// scores and flags.
type IsolationForest struct {
	config ForestConfig
}

func NewIsolationForest(cfg ForestConfig) *IsolationForest {
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 256
	}
	if cfg.Contamination <= 0 {
		cfg.Contamination = 0.05
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return &IsolationForest{config: cfg}
}

// FitScore fits the forest on the vectors and scores every vector. The
// caller guarantees at least two vectors of equal dimension.
func (f *IsolationForest) FitScore(vectors [][]float64) ([]float64, []bool) {
	n := len(vectors)
	sample := f.config.SampleSize
	if sample > n {
		sample = n
	}
	limit := int(math.Ceil(math.Log2(float64(sample))))
	if limit < 1 {
		limit = 1
	}

	rng := rand.New(rand.NewSource(f.config.Seed))
	trees := make([]*treeNode, f.config.Trees)
	for t := range trees {
		idx := rng.Perm(n)[:sample]
		trees[t] = buildTree(vectors, idx, 0, limit, rng)
	}

	norm := avgPathLen(sample)
	raw := make([]float64, n)
	for i, x := range vectors {
		var sum float64
		for _, tree := range trees {
			sum += pathLength(tree, x, 0)
		}
		mean := sum / float64(len(trees))
		// Negated anomaly score, so larger values are more normal.
		raw[i] = -math.Exp2(-mean / norm)
	}

	offset := percentile(raw, f.config.Contamination)
	scores := make([]float64, n)
	anomalous := make([]bool, n)
	for i, v := range raw {
		scores[i] = v - offset
		anomalous[i] = scores[i] < 0
	}
	return scores, anomalous
}

type treeNode struct {
	feature int
	split   float64
	left    *treeNode
	right   *treeNode
	size    int
}

func buildTree(vectors [][]float64, idx []int, depth, limit int, rng *rand.Rand) *treeNode {
	if depth >= limit || len(idx) <= 1 {
		return &treeNode{size: len(idx)}
	}
	dims := len(vectors[idx[0]])
	splittable := make([]int, 0, dims)
	for q := 0; q < dims; q++ {
		lo, hi := featureRange(vectors, idx, q)
		if hi > lo {
			splittable = append(splittable, q)
		}
	}
	if len(splittable) == 0 {
		return &treeNode{size: len(idx)}
	}

	q := splittable[rng.Intn(len(splittable))]
	lo, hi := featureRange(vectors, idx, q)
	split := lo + rng.Float64()*(hi-lo)

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if vectors[i][q] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature: q,
		split:   split,
		left:    buildTree(vectors, left, depth+1, limit, rng),
		right:   buildTree(vectors, right, depth+1, limit, rng),
	}
}

func featureRange(vectors [][]float64, idx []int, q int) (float64, float64) {
	lo := vectors[idx[0]][q]
	hi := lo
	for _, i := range idx[1:] {
		v := vectors[i][q]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func pathLength(node *treeNode, x []float64, depth float64) float64 {
	if node.left == nil && node.right == nil {
		return depth + avgPathLen(node.size)
	}
	if x[node.feature] < node.split {
		return pathLength(node.left, x, depth+1)
	}
	return pathLength(node.right, x, depth+1)
}

// avgPathLen is the average path length of an unsuccessful search in a
// binary search tree over n points, the standard normalization term.
func avgPathLen(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}

// percentile interpolates linearly between order statistics, matching the
// quantile convention the decision threshold is calibrated against.
func percentile(values []float64, frac float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := frac * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	w := rank - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
