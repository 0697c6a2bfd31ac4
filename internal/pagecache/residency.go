package pagecache

import (
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
)

// Mincorer reports per-page residency of a mapped range.
type Mincorer interface {
	Mincore(vec []byte) error
}

// Report summarizes the residency of a mapping.
type Report struct {
	Pages int
	// NonResident holds the indices of pages that are not in memory.
	NonResident *roaring.Bitmap
}

// Dropped returns the number of pages that are not resident.
func (r Report) Dropped() int {
	if r.NonResident == nil {
		return 0
	}
	return int(r.NonResident.GetCardinality())
}

// Resident returns the number of pages still in memory.
func (r Report) Resident() int {
	return r.Pages - r.Dropped()
}

// ResidentOf counts the byte offsets whose page is still resident.
// pageSize is the granularity of the residency vector.
func (r Report) ResidentOf(offsets []int, pageSize int) int {
	n := 0
	for _, off := range offsets {
		page := off / pageSize
		if page < 0 || page >= r.Pages {
			continue
		}
		if r.NonResident == nil || !r.NonResident.Contains(uint32(page)) {
			n++
		}
	}
	return n
}

// Range is an inclusive run of page indices.
type Range struct {
	Start, End uint32
}

func (r Range) String() string {
	if r.Start == r.End {
		return strconv.FormatUint(uint64(r.Start), 10)
	}
	return strconv.FormatUint(uint64(r.Start), 10) + "-" + strconv.FormatUint(uint64(r.End), 10)
}

// ResidentRanges returns up to limit leading runs of resident pages.
func (r Report) ResidentRanges(limit int) []Range {
	if limit <= 0 || r.Pages == 0 {
		return nil
	}
	nonResident := r.NonResident
	if nonResident == nil {
		nonResident = roaring.New()
	}
	resident := roaring.Flip(nonResident, 0, uint64(r.Pages))

	var ranges []Range
	it := resident.Iterator()
	for it.HasNext() {
		page := it.Next()
		if last := len(ranges) - 1; last >= 0 && ranges[last].End+1 == page {
			ranges[last].End = page
			continue
		}
		if len(ranges) == limit {
			break
		}
		ranges = append(ranges, Range{Start: page, End: page})
	}
	return ranges
}

// Residency queries every page of m and records the non-resident ones.
func Residency(m Mincorer, pages int) (Report, error) {
	vec := make([]byte, pages)
	if err := m.Mincore(vec); err != nil {
		return Report{}, err
	}

	report := Report{
		Pages:       pages,
		NonResident: roaring.New(),
	}
	for i, v := range vec {
		if v&1 == 0 {
			report.NonResident.Add(uint32(i))
		}
	}
	return report, nil
}
