package preprocessing

import (
	"math"
	"math/rand"
	"sort"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
)

// TrainTestSplit returns shuffled train and test row indices. The test side
// holds ceil(testSize*n) rows. When strata is non-nil the test rows are drawn
// from each stratum in proportion to its size.
func TrainTestSplit(n int, testSize float64, seed int64, strata []float64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, apperrors.BadRequest("need at least 2 rows to split, got %d", n)
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, apperrors.BadRequest("test size must be in (0, 1), got %g", testSize)
	}
	nTest := int(math.Ceil(testSize*float64(n) - 1e-9))
	if nTest >= n {
		nTest = n - 1
	}
	rng := rand.New(rand.NewSource(seed))

	if strata == nil {
		perm := rng.Perm(n)
		return perm[nTest:], perm[:nTest], nil
	}

	groups := make(map[float64][]int)
	var keys []float64
	for i, s := range strata {
		if _, ok := groups[s]; !ok {
			keys = append(keys, s)
		}
		groups[s] = append(groups[s], i)
	}
	sort.Float64s(keys)

	type share struct {
		key  float64
		take int
		rem  float64
	}
	shares := make([]share, len(keys))
	allotted := 0
	for i, k := range keys {
		exact := float64(len(groups[k])) * float64(nTest) / float64(n)
		shares[i] = share{key: k, take: int(exact), rem: exact - math.Floor(exact)}
		allotted += shares[i].take
	}
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return shares[order[a]].rem > shares[order[b]].rem })
	for _, i := range order {
		if allotted >= nTest {
			break
		}
		if shares[i].take < len(groups[shares[i].key]) {
			shares[i].take++
			allotted++
		}
	}

	for _, s := range shares {
		members := groups[s.key]
		rng.Shuffle(len(members), func(a, b int) { members[a], members[b] = members[b], members[a] })
		test = append(test, members[:s.take]...)
		train = append(train, members[s.take:]...)
	}
	rng.Shuffle(len(train), func(a, b int) { train[a], train[b] = train[b], train[a] })
	rng.Shuffle(len(test), func(a, b int) { test[a], test[b] = test[b], test[a] })
	return train, test, nil
}
