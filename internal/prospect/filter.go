package prospect

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/pkg/overpass"
)

// ExistsFunc reports whether a record with the given external id is already
// persisted. Supplied by the storage collaborator.
type ExistsFunc func(ctx context.Context, osmID int64) (bool, error)

// Partition splits elements into fresh (not yet persisted) and known,
// consulting exists once per element in input order. Both outputs preserve
// the relative order of the input. This is a pre-check optimization only;
// the store's uniqueness constraints remain the authoritative guard.
func Partition(ctx context.Context, els []overpass.Element, exists ExistsFunc) (fresh, known []overpass.Element, err error) {
	for _, el := range els {
		ok, err := exists(ctx, el.ID)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "prospect: check existence of osm id %d", el.ID)
		}
		if ok {
			known = append(known, el)
		} else {
			fresh = append(fresh, el)
		}
	}
	return fresh, known, nil
}
