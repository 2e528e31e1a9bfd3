package importer

import (
	"context"
)

// keyed describes how rows of one sheet are matched against existing
// records and written. R is the row type, K the natural key, ID the
// record identifier.
type keyed[R any, K comparable, ID ~string] struct {
	sheet  Sheet
	row    func(R) int
	key    func(R) K
	create func(ctx context.Context, r R) (ID, error)
	update func(ctx context.Context, id ID, r R) error
	exists func(R) string
}

// reconcile matches each row against index by key. A matching row is
// skipped, updated or reported depending on strategy; an unmatched row is
// created and added to index so later rows and sheets can resolve it.
//
// Business outcomes go to the returned Stats. A non-nil error is a store
// failure and aborts the run.
func reconcile[R any, K comparable, ID ~string](
	ctx context.Context,
	k keyed[R, K, ID],
	rows []R,
	strategy Strategy,
	index map[K]ID,
	stats Stats,
) (Stats, error) {
	for i, r := range rows {
		key := k.key(r)
		id, ok := index[key]
		if !ok {
			created, err := k.create(ctx, r)
			if err != nil {
				return stats, err
			}
			index[key] = created
			stats = stats.created()
			continue
		}

		switch strategy {
		case StrategyUpdate:
			if err := k.update(ctx, id, r); err != nil {
				return stats, err
			}
			stats = stats.updated()
		case StrategyError:
			stats = stats.failed(RowError{Sheet: k.sheet, Row: rowNumber(k.row(r), i), Message: k.exists(r), Data: r})
		default:
			stats = stats.skipped()
		}
	}
	return stats, nil
}
