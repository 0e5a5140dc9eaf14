package surveillance

import (
	"math/rand"
	"sort"

	"github.com/ehr/surveillance/internal/domain/observation"
)

const (
	// MinSamples is the smallest row count the predictor will fit.
	MinSamples = 5

	splitMinSamples = 10
	splitSeed       = 42
	maxTreeDepth    = 5
)

// PredictionDisclaimer accompanies every prediction payload and export.
const PredictionDisclaimer = "Heuristic demonstration only: a shallow decision tree over patient age and visit type. Not a diagnostic tool."

// Prediction is the tally of one predicted disease.
type Prediction struct {
	Disease        string    `json:"disease"`
	PredictedCount int       `json:"predicted_count"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

// PredictionResult is the predictor output. InsufficientData is set, with no
// predictions, when fewer than MinSamples rows were supplied.
type PredictionResult struct {
	Predictions      []Prediction `json:"predictions"`
	InsufficientData bool         `json:"insufficient_data"`
	SampleSize       int          `json:"sample_size"`
	TrainSize        int          `json:"train_size"`
	EvalSize         int          `json:"eval_size"`
	Disclaimer       string       `json:"disclaimer"`
}

// codec is a bidirectional string <-> index table. Indexes follow first
// appearance.
type codec struct {
	index  map[string]int
	values []string
}

func newCodec() *codec {
	return &codec{index: make(map[string]int)}
}

func (c *codec) encode(s string) int {
	if i, ok := c.index[s]; ok {
		return i
	}
	i := len(c.values)
	c.index[s] = i
	c.values = append(c.values, s)
	return i
}

func (c *codec) decode(i int) string {
	if i < 0 || i >= len(c.values) {
		return ""
	}
	return c.values[i]
}

const numFeatures = 2

type sample struct {
	x     [numFeatures]float64 // age, occasion code
	label int
}

// Predict fits a decision tree predicting disease from (age, occasion) and
// tallies its predictions over the evaluation partition. With at least 10
// rows the partition is a seeded 80/20 split; below that the tree is trained
// and evaluated on every row.
func Predict(rows []*observation.Observation) PredictionResult {
	res := PredictionResult{
		Predictions: []Prediction{},
		SampleSize:  len(rows),
		Disclaimer:  PredictionDisclaimer,
	}
	if len(rows) < MinSamples {
		res.InsufficientData = true
		return res
	}

	diseases := newCodec()
	occasions := newCodec()
	samples := make([]sample, len(rows))
	for i, o := range rows {
		samples[i] = sample{
			x:     [numFeatures]float64{float64(o.PatientAge), float64(occasions.encode(o.Occasion))},
			label: diseases.encode(o.DiseaseName),
		}
	}

	train, eval := splitSamples(samples)
	res.TrainSize, res.EvalSize = len(train), len(eval)
	tree := fitTree(train, len(diseases.values), maxTreeDepth)

	counts := make(map[int]int)
	var order []int
	for _, s := range eval {
		c := tree.predict(s.x)
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}

	for _, c := range order {
		n := counts[c]
		res.Predictions = append(res.Predictions, Prediction{
			Disease:        diseases.decode(c),
			PredictedCount: n,
			RiskLevel:      Classify(n),
		})
	}
	sort.SliceStable(res.Predictions, func(i, j int) bool {
		return res.Predictions[i].PredictedCount > res.Predictions[j].PredictedCount
	})
	return res
}

// splitSamples returns (train, eval). The evaluation share is ceil(n/5).
func splitSamples(s []sample) ([]sample, []sample) {
	if len(s) < splitMinSamples {
		return s, s
	}
	rng := rand.New(rand.NewSource(splitSeed))
	perm := rng.Perm(len(s))
	nEval := (len(s) + 4) / 5

	train := make([]sample, 0, len(s)-nEval)
	eval := make([]sample, 0, nEval)
	for i, p := range perm {
		if i < nEval {
			eval = append(eval, s[p])
		} else {
			train = append(train, s[p])
		}
	}
	return train, eval
}

type treeNode struct {
	leaf      bool
	class     int
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(x [numFeatures]float64) int {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.class
}

// fitTree grows a CART classification tree using Gini impurity. Majority
// ties resolve to the lowest class index.
func fitTree(samples []sample, nClasses, depth int) *treeNode {
	counts := classCounts(samples, nClasses)
	node := &treeNode{leaf: true, class: argmax(counts)}
	if depth == 0 || len(samples) < 2 || counts[node.class] == len(samples) {
		return node
	}

	feature, threshold, ok := bestSplit(samples, nClasses, gini(counts, len(samples)))
	if !ok {
		return node
	}

	var left, right []sample
	for _, s := range samples {
		if s.x[feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      fitTree(left, nClasses, depth-1),
		right:     fitTree(right, nClasses, depth-1),
	}
}

// bestSplit finds the threshold minimising weighted child impurity. Only
// splits strictly better than the parent are accepted.
func bestSplit(samples []sample, nClasses int, parent float64) (int, float64, bool) {
	const eps = 1e-12
	n := len(samples)
	best := parent
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]sample, n)
	for f := 0; f < numFeatures; f++ {
		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].x[f] < sorted[j].x[f] })

		left := make([]int, nClasses)
		right := classCounts(sorted, nClasses)
		for i := 0; i < n-1; i++ {
			left[sorted[i].label]++
			right[sorted[i].label]--
			if sorted[i].x[f] == sorted[i+1].x[f] {
				continue
			}
			nl, nr := i+1, n-i-1
			imp := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
			if imp < best-eps {
				best = imp
				bestFeature = f
				bestThreshold = (sorted[i].x[f] + sorted[i+1].x[f]) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func classCounts(samples []sample, nClasses int) []int {
	counts := make([]int, nClasses)
	for _, s := range samples {
		counts[s.label]++
	}
	return counts
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func argmax(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}
