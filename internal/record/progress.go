package record

// Score returns the completion percentage of r against the schema's
// milestones: satisfied milestones times 100 divided by the milestone count,
// rounded down. Adding fields never lowers the score.
func Score(s *Schema, r *Record) int {
	if s == nil || len(s.Milestones) == 0 {
		return 0
	}
	done := 0
	for _, m := range s.Milestones {
		if milestoneMet(m, r) {
			done++
		}
	}
	return done * 100 / len(s.Milestones)
}

// PendingMilestones returns the names of the milestones not yet satisfied.
func PendingMilestones(s *Schema, r *Record) []string {
	var out []string
	for _, m := range s.Milestones {
		if !milestoneMet(m, r) {
			out = append(out, m.Name)
		}
	}
	return out
}

func milestoneMet(m Milestone, r *Record) bool {
	for _, f := range m.AnyOf {
		if r.Has(f) {
			return true
		}
	}
	return false
}
