// Package scanner finds overlapping building footprints inside a bounding box.
//
// The scan is a bounded double loop: an envelope test rejects most pairs cheaply and
// GEOS computes the exact intersection for the rest. It holds no state between calls,
// so scans may run concurrently.
package scanner

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/twpayne/go-geos"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// Scan returns every pair of footprints in bbox whose outlines overlap by more than
// opts.MinOverlapAreaSquareMeters.
//
// An invalid bbox is fatal. Bad footprints are skipped and reported in Issues. Hitting
// MaxComparisons or MaxPairs stops the loop and sets Truncated; the pairs found so far
// are still returned. A cancelled ctx returns ctx.Err() and no result.
func Scan(ctx context.Context, bbox domain.BoundingBox, footprints []domain.Footprint, opts domain.ScanOptions) (*domain.ScanResult, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	gctx := geos.NewContext()
	inBox, issues := prepare(gctx, footprints, bbox.Bound())
	defer func() {
		for _, c := range inBox {
			c.geom.Destroy()
		}
	}()

	res := &domain.ScanResult{
		Pairs:              []domain.OverlapPair{},
		FootprintsExamined: len(inBox),
	}

outer:
	for i := 0; i < len(inBox); i++ {
		for j := i + 1; j < len(inBox); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if res.PairsExamined >= opts.MaxComparisons || len(res.Pairs) >= opts.MaxPairs {
				res.Truncated = true
				break outer
			}
			res.PairsExamined++

			a, b := inBox[i], inBox[j]
			if !a.bound.Intersects(b.bound) {
				continue
			}

			overlap, err := intersect(a.geom, b.geom)
			if err != nil {
				issues = append(issues, domain.GeometryError{
					FootprintID: a.fp.ID,
					Reason:      fmt.Sprintf("with %s: %v", b.fp.ID, err),
				})
				continue
			}
			if overlap == nil {
				continue
			}

			area := geodesicArea(overlap)
			if area <= 0 || area <= opts.MinOverlapAreaSquareMeters {
				continue
			}

			idA, idB := a.fp.ID, b.fp.ID
			if idB < idA {
				idA, idB = idB, idA
			}
			res.Pairs = append(res.Pairs, domain.OverlapPair{
				IDA:              idA,
				IDB:              idB,
				AreaSquareMeters: area,
				Centroid:         domain.GeoPointFrom(centroid(overlap)),
				Geometry:         overlap,
			})
		}
	}

	slices.SortFunc(res.Pairs, comparePairs)
	res.Issues = issues
	res.GeometryErrors = len(issues)
	return res, nil
}

// comparePairs orders by area descending, then (IDA, IDB).
func comparePairs(x, y domain.OverlapPair) int {
	if c := cmp.Compare(y.AreaSquareMeters, x.AreaSquareMeters); c != 0 {
		return c
	}
	if c := cmp.Compare(x.IDA, y.IDA); c != 0 {
		return c
	}
	return cmp.Compare(x.IDB, y.IDB)
}
