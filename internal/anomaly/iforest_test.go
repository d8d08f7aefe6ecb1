package anomaly

import (
	"reflect"
	"testing"
)

func clusterWithOutlier() [][]float64 {
	vectors := make([][]float64, 0, 21)
	for i := 0; i < 20; i++ {
		vectors = append(vectors, []float64{3 + float64(i)*0.1, 1 + float64(i%3), 0.5})
	}
	vectors = append(vectors, []float64{400, 120, 95})
	return vectors
}

func TestForestFlagsObviousOutlier(t *testing.T) {
	f := NewIsolationForest(ForestConfig{Trees: 100, SampleSize: 256, Contamination: 0.05, Seed: 42})
	vectors := clusterWithOutlier()
	scores, anomalous := f.FitScore(vectors)
	if len(scores) != len(vectors) || len(anomalous) != len(vectors) {
		t.Fatalf("result length mismatch")
	}
	last := len(vectors) - 1
	if !anomalous[last] {
		t.Fatalf("outlier not flagged, score %f", scores[last])
	}
	for i := 0; i < last; i++ {
		if scores[i] <= scores[last] {
			t.Fatalf("cluster point %d scored no higher than the outlier", i)
		}
	}
}

func TestForestDeterministic(t *testing.T) {
	vectors := clusterWithOutlier()
	f1 := NewIsolationForest(ForestConfig{Seed: 42})
	f2 := NewIsolationForest(ForestConfig{Seed: 42})
	s1, a1 := f1.FitScore(vectors)
	s2, a2 := f2.FitScore(vectors)
	if !reflect.DeepEqual(s1, s2) || !reflect.DeepEqual(a1, a2) {
		t.Fatalf("same seed produced different results")
	}
}

func TestForestConfigClamping(t *testing.T) {
	f := NewIsolationForest(ForestConfig{})
	if f.config.Trees != 100 || f.config.SampleSize != 256 {
		t.Fatalf("defaults not applied: %+v", f.config)
	}
	if f.config.Contamination != 0.05 || f.config.Seed != 42 {
		t.Fatalf("defaults not applied: %+v", f.config)
	}
}

func TestAvgPathLen(t *testing.T) {
	if avgPathLen(0) != 0 || avgPathLen(1) != 0 {
		t.Fatalf("degenerate sizes must normalize to zero")
	}
	if avgPathLen(2) != 1 {
		t.Fatalf("avgPathLen(2) = %f", avgPathLen(2))
	}
	if got := avgPathLen(256); got < 10 || got > 14 {
		t.Fatalf("avgPathLen(256) out of range: %f", got)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	values := []float64{0, 1, 2, 3}
	if got := percentile(values, 0); got != 0 {
		t.Fatalf("p0 = %f", got)
	}
	if got := percentile(values, 1); got != 3 {
		t.Fatalf("p100 = %f", got)
	}
	if got := percentile(values, 0.5); got != 1.5 {
		t.Fatalf("p50 = %f", got)
	}
}
