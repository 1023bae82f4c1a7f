// Package duplicates finds records that share a natural key, within a job and
// against previously committed records.
package duplicates

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/normalizer"
)

// NaturalKey returns the normalized natural key of rec and whether it has one.
// Permits key on permit number; personal property on taxpayer ID and parcel
// number, both of which must be present.
func NaturalKey(rec *models.StagingRecord) (string, bool) {
	switch rec.ImportType {
	case models.ImportTypePermit:
		k := normalizeKey(rec.Field(normalizer.FieldPermitNumber))
		return k, k != ""
	case models.ImportTypePersonalProperty:
		taxpayer := normalizeKey(rec.Field(normalizer.FieldTaxpayerID))
		parcel := normalizeKey(rec.Field(normalizer.FieldParcelNumber))
		if taxpayer == "" || parcel == "" {
			return "", false
		}
		return taxpayer + "|" + parcel, true
	}
	return "", false
}

// normalizeKey upper-cases and collapses whitespace.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// Flag describes why a record was marked as a duplicate.
type Flag struct {
	Record *models.StagingRecord
	Key    string
	// SurvivorIndex is the record index of the kept sibling, or -1 for a
	// collision with a previously committed record.
	SurvivorIndex int
}

// Message is the validation message attached to a flagged record.
func (f Flag) Message() string {
	if f.SurvivorIndex < 0 {
		return fmt.Sprintf("Duplicate of a previously imported record (key %s)", f.Key)
	}
	return fmt.Sprintf("Duplicate of record %d in this import (key %s)", f.SurvivorIndex, f.Key)
}

// Detect computes duplicate flags for the records of one job. prior holds the
// normalized keys already committed by other jobs.
//
// Records whose processing status is Failed take no part. Within the job the
// record with the lowest index in each colliding set survives unflagged; every
// record colliding with a prior key is flagged. Detect records each
// participant's NaturalKey but leaves statuses to Mark.
func Detect(records []*models.StagingRecord, prior map[string]bool) []Flag {
	groups := make(map[string][]*models.StagingRecord)
	for _, rec := range records {
		if rec.ProcessingStatus == models.ProcessingStatusFailed {
			continue
		}
		key, ok := NaturalKey(rec)
		if !ok {
			continue
		}
		rec.NaturalKey = key
		groups[key] = append(groups[key], rec)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var flags []Flag
	for _, key := range keys {
		members := groups[key]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].RecordIndex < members[j].RecordIndex
		})
		if prior[key] {
			for _, rec := range members {
				flags = append(flags, Flag{Record: rec, Key: key, SurvivorIndex: -1})
			}
			continue
		}
		survivor := members[0].RecordIndex
		for _, rec := range members[1:] {
			flags = append(flags, Flag{Record: rec, Key: key, SurvivorIndex: survivor})
		}
	}
	return flags
}

// Mark applies flags: each flagged record becomes at least Warning and gains a message.
func Mark(flags []Flag) {
	for _, f := range flags {
		f.Record.EscalateValidation(models.ValidationStatusWarning)
		f.Record.AddValidationMessage(f.Message())
	}
}

// Keys returns the distinct natural keys of records that take part in detection.
func Keys(records []*models.StagingRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range records {
		if rec.ProcessingStatus == models.ProcessingStatusFailed {
			continue
		}
		if k, ok := NaturalKey(rec); ok && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
