package address

import (
	"sort"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// Entry is one parcel address with its precomputed comparison forms.
type Entry struct {
	ParcelNumber string
	Address      string
	Normalized   string
	Primary      string
}

// Index is an immutable snapshot of the parcel address index, built once per job.
// It is safe for concurrent readers.
type Index struct {
	byNormalized map[string][]int
	byPrimary    map[string][]int
	entries      []Entry
}

// NewIndex builds an index from parcel addresses. Entries without a parcel number
// or address are ignored. Entries are ordered by parcel number.
func NewIndex(parcels []models.ParcelAddress) *Index {
	idx := &Index{
		byNormalized: make(map[string][]int, len(parcels)),
		byPrimary:    make(map[string][]int, len(parcels)),
		entries:      make([]Entry, 0, len(parcels)),
	}
	for _, p := range parcels {
		if p.ParcelNumber == "" || p.Address == "" {
			continue
		}
		idx.entries = append(idx.entries, Entry{
			ParcelNumber: p.ParcelNumber,
			Address:      p.Address,
			Normalized:   Normalize(p.Address),
			Primary:      Primary(p.Address),
		})
	}
	sort.SliceStable(idx.entries, func(i, j int) bool {
		return idx.entries[i].ParcelNumber < idx.entries[j].ParcelNumber
	})
	for i, e := range idx.entries {
		if e.Normalized != "" {
			idx.byNormalized[e.Normalized] = append(idx.byNormalized[e.Normalized], i)
		}
		if e.Primary != "" {
			idx.byPrimary[e.Primary] = append(idx.byPrimary[e.Primary], i)
		}
	}
	return idx
}

// Len returns the number of indexed parcel addresses.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Lookup returns the entries for a parcel number.
func (idx *Index) Lookup(parcelNumber string) []Entry {
	var out []Entry
	for _, e := range idx.entries {
		if e.ParcelNumber == parcelNumber {
			out = append(out, e)
		}
	}
	return out
}

func (idx *Index) exact(normalized string) []Entry {
	return idx.collect(idx.byNormalized[normalized])
}

func (idx *Index) primary(primary string) []Entry {
	return idx.collect(idx.byPrimary[primary])
}

func (idx *Index) collect(positions []int) []Entry {
	out := make([]Entry, 0, len(positions))
	for _, i := range positions {
		out = append(out, idx.entries[i])
	}
	return out
}
