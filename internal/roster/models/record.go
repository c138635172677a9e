package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	pstrings "checkin/pkg/platform/strings"
)

// Record is one raw roster row as imported from the spreadsheet. Keys are kept
// exactly as the import wrote them, so the same concept can live under several
// (sometimes bilingual) column names.
type Record map[string]any

// Canonical field keys. Writers backfill these; readers always go through Resolve.
const (
	FieldBarcode       = "barcode"
	FieldPhoneNumber   = "phoneNumber"
	FieldCandidateName = "candidateName"
	FieldSchool        = "school"
	FieldTimeslot      = "timeslot"
)

// Legacy spreadsheet column names seen in imported rosters.
const (
	columnBarcode  = "Barcode"
	columnPhone    = "電話號碼 Phone Number"
	columnName     = "Name on barcode"
	columnNameLow  = "name"
	columnSchool   = "學校名稱 School of Candidates"
	columnTimeslot = "考試日期 Timeslot"
)

// Alias resolution order per canonical field. The first key holding a non-empty
// value wins. Order matters: barcode and phone fall back to each other because
// imports often populated only one of the two columns.
var (
	BarcodeAliases       = []string{FieldBarcode, columnBarcode, columnPhone, FieldPhoneNumber}
	PhoneNumberAliases   = []string{FieldPhoneNumber, columnPhone, FieldBarcode, columnBarcode}
	CandidateNameAliases = []string{FieldCandidateName, columnName, columnNameLow}
	SchoolAliases        = []string{FieldSchool, columnSchool}
	TimeslotAliases      = []string{FieldTimeslot, columnTimeslot}
)

// IdentifierKeys lists every raw key that can hold a barcode or phone value,
// without duplicates, in barcode-first order. Stores use it to pre-filter rows.
func IdentifierKeys() []string {
	return pstrings.Dedupe(BarcodeAliases, PhoneNumberAliases)
}

// CanonicalView is the single-shape reading of a Record.
type CanonicalView struct {
	Barcode       string
	PhoneNumber   string
	CandidateName string
	School        string
	Timeslot      string
}

// Resolve reads the canonical fields of r. It never fails and never mutates r:
// a field with no usable alias resolves to "".
func Resolve(r Record) CanonicalView {
	return CanonicalView{
		Barcode:       r.first(BarcodeAliases),
		PhoneNumber:   r.first(PhoneNumberAliases),
		CandidateName: r.first(CandidateNameAliases),
		School:        r.first(SchoolAliases),
		Timeslot:      r.first(TimeslotAliases),
	}
}

// Get returns the stringified, trimmed value stored under key.
func (r Record) Get(key string) string {
	if r == nil {
		return ""
	}
	return stringify(r[key])
}

func (r Record) first(keys []string) string {
	for _, k := range keys {
		if v := r.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Clone returns a shallow copy; values are scalars so this is sufficient.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	return maps.Clone(r)
}

// Backfill returns a copy of r with the canonical barcode, phone number and name
// keys filled from view where they are currently empty. An existing canonical
// value is never replaced.
func (r Record) Backfill(view CanonicalView) Record {
	out := r.Clone()
	fill := func(key, value string) {
		if value != "" && out.Get(key) == "" {
			out[key] = value
		}
	}
	fill(FieldBarcode, view.Barcode)
	fill(FieldPhoneNumber, view.PhoneNumber)
	fill(FieldCandidateName, view.CandidateName)
	return out
}

// stringify renders spreadsheet cell values. Phone columns frequently arrive as
// numbers, so integral floats must not render with an exponent.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := val.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.TrimSpace(val.String())
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
