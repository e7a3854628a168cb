package guides

import "strings"

// Evaluate matches observed signal labels against a guide. A trade is
// allowed only when the guide is active, every hard rule label was
// observed, and no disqualifier label was observed. Soft rules never
// block; matches are reported for the audit trail.
func Evaluate(guide *Guide, observed []string) Evaluation {
	eval := Evaluation{
		GuideName:    guide.Name,
		GuideVersion: guide.Version,
	}

	if !guide.Active {
		eval.Reason = "guide_inactive"
		return eval
	}

	seen := make(map[string]bool, len(observed))
	for _, label := range observed {
		seen[normalizeLabel(label)] = true
	}

	for _, rule := range guide.HardRules {
		if !seen[normalizeLabel(rule)] {
			eval.UnmetHardRules = append(eval.UnmetHardRules, rule)
		}
	}
	for _, rule := range guide.SoftRules {
		if seen[normalizeLabel(rule)] {
			eval.MatchedSoftRules = append(eval.MatchedSoftRules, rule)
		}
	}
	for _, rule := range guide.Disqualifiers {
		if seen[normalizeLabel(rule)] {
			eval.PresentDisqualifiers = append(eval.PresentDisqualifiers, rule)
		}
	}

	eval.Allowed = len(eval.UnmetHardRules) == 0 && len(eval.PresentDisqualifiers) == 0
	if !eval.Allowed {
		if len(eval.PresentDisqualifiers) > 0 {
			eval.Reason = "disqualifier_present"
		} else {
			eval.Reason = "hard_rules_unmet"
		}
	}
	return eval
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
