// Package datasettest builds deterministic synthetic tables for tests.
package datasettest

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/synaptica-ai/automl/pkg/dataset"
)

// Classification returns n rows with two numeric features, one categorical
// feature and a string "label" target with three classes.
func Classification(n int, seed int64) *dataset.Table {
	rng := rand.New(rand.NewSource(seed))
	classes := []string{"setosa", "versicolor", "virginica"}
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	color := make([]string, n)
	label := make([]string, n)
	for i := 0; i < n; i++ {
		c := i % len(classes)
		x1[i] = float64(c)*3 + rng.NormFloat64()*0.5
		x2[i] = float64(-c)*2 + rng.NormFloat64()*0.5
		color[i] = []string{"red", "green", "blue"}[(c+rng.Intn(2))%3]
		label[i] = classes[c]
	}
	return mustTable(
		dataset.NewNumeric("x1", x1),
		dataset.NewNumeric("x2", x2),
		dataset.NewCategorical("color", color, nil),
		dataset.NewCategorical("label", label, nil),
	)
}

// Regression returns n rows where "target" is a noisy linear function of the
// features, with every target distinct.
func Regression(n int, seed int64) *dataset.Table {
	rng := rand.New(rand.NewSource(seed))
	a := make([]float64, n)
	b := make([]float64, n)
	grp := make([]string, n)
	target := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = rng.Float64() * 10
		b[i] = rng.NormFloat64()
		grp[i] = fmt.Sprintf("g%d", i%4)
		target[i] = 3*a[i] - 2*b[i] + float64(i%4) + rng.NormFloat64()*0.1
	}
	return mustTable(
		dataset.NewNumeric("a", a),
		dataset.NewNumeric("b", b),
		dataset.NewCategorical("grp", grp, nil),
		dataset.NewNumeric("target", target),
	)
}

// Blobs returns n rows of three well separated 2-d gaussian blobs.
func Blobs(n int, seed int64) *dataset.Table {
	rng := rand.New(rand.NewSource(seed))
	centers := [][2]float64{{0, 0}, {8, 8}, {-8, 8}}
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		c := centers[i%len(centers)]
		x[i] = c[0] + rng.NormFloat64()*0.6
		y[i] = c[1] + rng.NormFloat64()*0.6
	}
	return mustTable(dataset.NewNumeric("x", x), dataset.NewNumeric("y", y))
}

// WithGaps blanks every k-th cell of the named column.
func WithGaps(t *dataset.Table, name string, k int) *dataset.Table {
	col, ok := t.Column(name)
	if !ok {
		panic("datasettest: no column " + name)
	}
	c := col.Clone()
	for i := 0; i < c.Len(); i += k {
		if c.Kind == dataset.KindNumeric {
			c.Numbers[i] = math.NaN()
		} else {
			c.Labels[i], c.Present[i] = "", false
		}
	}
	out, err := t.With(c)
	if err != nil {
		panic(err)
	}
	return out
}

func mustTable(cols ...*dataset.Column) *dataset.Table {
	t, err := dataset.NewTable(cols...)
	if err != nil {
		panic(err)
	}
	return t
}
