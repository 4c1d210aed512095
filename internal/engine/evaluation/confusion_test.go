package evaluation

import (
	"Go2FlowEval/internal/model"
	"math"
	"testing"
)

func flow(truth, predicted model.Label) model.Flow {
	return model.Flow{TrueLabel: truth, PredictedLabel: predicted}
}

func TestSummarize(t *testing.T) {
	flows := []model.Flow{
		flow(model.LabelAttack, model.LabelAttack), // TP
		flow(model.LabelAttack, model.LabelAttack), // TP
		flow(model.LabelAttack, model.LabelNormal), // FN
		flow(model.LabelNormal, model.LabelAttack), // FP
		flow(model.LabelNormal, model.LabelNormal), // TN
		flow(model.LabelNormal, model.LabelNormal), // TN
		flow(model.LabelNormal, model.LabelUnset),
		flow(model.LabelAttack, model.LabelUnset),
	}

	s := Summarize(flows)

	if s.Flows != 8 || s.TruePositive != 2 || s.FalseNegative != 1 || s.FalsePositive != 1 || s.TrueNegative != 2 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.UnsetAttack != 1 || s.UnsetNormal != 1 {
		t.Fatalf("unexpected unset counts: %+v", s)
	}

	near := func(name string, got, want float64) {
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %f, want %f", name, got, want)
		}
	}
	near("accuracy", s.Accuracy, 4.0/6.0)
	near("precision", s.Precision, 2.0/3.0)
	near("recall", s.Recall, 2.0/3.0)
	near("f1", s.F1, 2.0/3.0)
}

func TestSummarize_NoPredictions(t *testing.T) {
	s := Summarize([]model.Flow{flow(model.LabelAttack, model.LabelUnset)})
	if s.Accuracy != 0 || s.Precision != 0 || s.Recall != 0 || s.F1 != 0 {
		t.Errorf("ratios should be zero without labelled flows: %+v", s)
	}
}
