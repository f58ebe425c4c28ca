package autotune

// Group is every series of a batch that shares one label set.
type Group struct {
	Labels LabelSet
	Series [][]float64
}

// GroupByLabelSet partitions items by label set.
//
// Groups are returned in order of first appearance and each group's series
// keep their arrival order. Nothing is merged or copied: the Series slices
// alias the input values. A nil label set is grouped with the empty one.
func GroupByLabelSet(items []LabeledSeries) []Group {
	var groups []Group

	index := make(map[string]int)

	for _, item := range items {
		key := item.Labels.String()

		i, ok := index[key]
		if !ok {
			labels := item.Labels.Clone()

			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Labels: labels})
		}

		groups[i].Series = append(groups[i].Series, item.Values)
	}

	return groups
}

// merge concatenates the series of a group end to end.
func (g Group) merge() []float64 {
	n := 0
	for _, s := range g.Series {
		n += len(s)
	}

	merged := make([]float64, 0, n)
	for _, s := range g.Series {
		merged = append(merged, s...)
	}

	return merged
}
