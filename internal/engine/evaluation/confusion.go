package evaluation

import "Go2FlowEval/internal/model"

// Summarize scores the predicted labels of flows against their true labels
// with Attack as the positive class. Flows without a prediction are counted
// separately and left out of the ratios.
func Summarize(flows []model.Flow) model.Summary {
	var s model.Summary
	for i := range flows {
		Add(&s, &flows[i])
	}
	Finalize(&s)
	return s
}

// Add accumulates one flow into s. Call Finalize once all flows are added.
func Add(s *model.Summary, f *model.Flow) {
	s.Flows++
	switch {
	case !f.PredictedLabel.IsSet():
		if f.TrueLabel == model.LabelAttack {
			s.UnsetAttack++
		} else {
			s.UnsetNormal++
		}
	case f.TrueLabel == model.LabelAttack && f.PredictedLabel == model.LabelAttack:
		s.TruePositive++
	case f.TrueLabel == model.LabelAttack:
		s.FalseNegative++
	case f.PredictedLabel == model.LabelAttack:
		s.FalsePositive++
	default:
		s.TrueNegative++
	}
}

// Finalize computes the ratios from the counts.
func Finalize(s *model.Summary) {
	labelled := s.TruePositive + s.FalsePositive + s.TrueNegative + s.FalseNegative
	s.Accuracy = ratio(s.TruePositive+s.TrueNegative, labelled)
	s.Precision = ratio(s.TruePositive, s.TruePositive+s.FalsePositive)
	s.Recall = ratio(s.TruePositive, s.TruePositive+s.FalseNegative)
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	} else {
		s.F1 = 0
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
