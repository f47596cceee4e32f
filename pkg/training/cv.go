package training

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/synaptica-ai/automl/pkg/ml"
)

// Scorer rates predictions against the truth; higher is not implied.
type Scorer func(yTrue, yPred []float64) (float64, error)

// KFold shuffles n rows with seed and deals them into k folds. It returns the
// held-out rows of each fold, sorted. The first n%k folds get one extra row.
func KFold(n, k int, seed int64) ([][]int, error) {
	if err := checkFolds(n, k); err != nil {
		return nil, err
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	start := 0
	for f := range folds {
		size := n / k
		if f < n%k {
			size++
		}
		folds[f] = append([]int(nil), perm[start:start+size]...)
		sort.Ints(folds[f])
		start += size
	}
	return folds, nil
}

// StratifiedKFold is KFold that keeps each class spread evenly across folds.
// Rows of every class are shuffled, then dealt round robin with the deal
// continuing from one class to the next.
func StratifiedKFold(y []float64, k int, seed int64) ([][]int, error) {
	if err := checkFolds(len(y), k); err != nil {
		return nil, err
	}
	classes := ml.Classes(y)
	members := make([][]int, len(classes))
	for i, c := range ml.ClassIndex(classes, y) {
		members[c] = append(members[c], i)
	}
	largest := 0
	for _, m := range members {
		largest = max(largest, len(m))
	}
	if largest < k {
		return nil, fmt.Errorf("%w: cv_folds=%d is greater than the number of members in each class", ml.ErrInvalidParam, k)
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, m := range members {
		rng.Shuffle(len(m), func(i, j int) { m[i], m[j] = m[j], m[i] })
		for _, row := range m {
			folds[next] = append(folds[next], row)
			next = (next + 1) % k
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds, nil
}

func checkFolds(n, k int) error {
	if k < 2 {
		return ml.InvalidParam("cv_folds", float64(k), ">= 2")
	}
	if k > n {
		return fmt.Errorf("%w: cv_folds=%d is greater than the number of rows %d", ml.ErrInvalidParam, k, n)
	}
	return nil
}

// CrossValidate fits a fresh estimator per fold on the remaining rows and
// scores it on the held-out rows. Folds run concurrently; scores come back in
// fold order.
func CrossValidate(ctx context.Context, build func() (ml.Supervised, error), x mat.Matrix, y []float64, folds [][]int, score Scorer) ([]float64, error) {
	n, _ := x.Dims()
	scores := make([]float64, len(folds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for f, held := range folds {
		f, held := f, held
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("fold %d panicked: %v", f, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			train := complement(n, held)
			est, err := build()
			if err != nil {
				return err
			}
			if err := est.Fit(takeRows(x, train), pick(y, train)); err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			pred, err := est.Predict(takeRows(x, held))
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			s, err := score(pick(y, held), pred)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			scores[f] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// complement returns the rows of 0..n-1 not in sorted.
func complement(n int, sorted []int) []int {
	out := make([]int, 0, n-len(sorted))
	j := 0
	for i := 0; i < n; i++ {
		if j < len(sorted) && sorted[j] == i {
			j++
			continue
		}
		out = append(out, i)
	}
	return out
}

func takeRows(x mat.Matrix, rows []int) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			out.Set(i, j, x.At(r, j))
		}
	}
	return out
}

func pick(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}
