package status

import (
	"cmp"
	"slices"
)

func sortRecords(recs []*Record) {
	slices.SortFunc(recs, func(a, b *Record) int {
		return cmp.Or(
			cmp.Compare(a.VHost, b.VHost),
			cmp.Compare(a.Queue, b.Queue),
			cmp.Compare(a.Index, b.Index),
		)
	})
}
