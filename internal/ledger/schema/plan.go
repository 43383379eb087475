package schema

// Move relocates the data of one current column to a target position.
type Move struct {
	From int
	To   int
}

// MigrationPlan reorders an existing sheet into the target layout.
// It is computed purely from the current header row and the target schema.
type MigrationPlan struct {
	// Moves covers every target column whose data already exists somewhere in the sheet.
	Moves []Move
	// Added are target positions with no source column; they start empty.
	Added []int
	// Dropped are current headers that map to no target field. Their data is discarded.
	Dropped []string
	// HeadersMatch is true when the header row already equals the target byte for byte.
	HeadersMatch bool
	// Reorder is true when at least one data column changes position.
	Reorder bool
}

// NoOp reports whether applying the plan would change nothing.
func (p MigrationPlan) NoOp() bool {
	return p.HeadersMatch && !p.Reorder
}

// Plan compares the current header row with target.
// Headers are matched by current name or legacy alias. An empty header row
// (fresh sheet) yields a plan that only writes headers.
func Plan(current []string, target *Schema) MigrationPlan {
	plan := MigrationPlan{HeadersMatch: equalHeaders(current, target.Headers())}
	if plan.HeadersMatch {
		return plan
	}

	source := make(map[Field]int, len(current))
	for i, h := range current {
		if h == "" {
			continue
		}
		f, ok := target.Resolve(h)
		if !ok {
			plan.Dropped = append(plan.Dropped, h)
			continue
		}
		if _, seen := source[f]; seen {
			// Duplicate legacy columns: first one wins, later ones are dropped.
			plan.Dropped = append(plan.Dropped, h)
			continue
		}
		source[f] = i
	}

	for to, col := range target.Columns {
		from, ok := source[col.Key]
		if !ok {
			plan.Added = append(plan.Added, to)
			continue
		}
		plan.Moves = append(plan.Moves, Move{From: from, To: to})
		if from != to {
			plan.Reorder = true
		}
	}
	if len(plan.Dropped) > 0 {
		plan.Reorder = true
	}
	return plan
}

// Apply remaps one data row from the current layout to the target width.
func (p MigrationPlan) Apply(row []string, width int) []string {
	out := make([]string, width)
	for _, m := range p.Moves {
		if m.From < len(row) && m.To < width {
			out[m.To] = row[m.From]
		}
	}
	return out
}

func equalHeaders(current, want []string) bool {
	trimmed := current
	for len(trimmed) > len(want) && trimmed[len(trimmed)-1] == "" {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) != len(want) {
		return false
	}
	for i := range want {
		if trimmed[i] != want[i] {
			return false
		}
	}
	return true
}
