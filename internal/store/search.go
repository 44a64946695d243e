package store

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tolerances for fuzzy numeric matching. Absolute windows, not percentages:
// "find anything near this value".
const (
	autoTolerance  = 0.1
	fieldTolerance = 0.05
)

// SampleField enumerates the searchable numeric columns of a telemetry
// sample. Keeping this closed means an unsupported field cannot reach the
// query builder.
type SampleField int

const (
	FieldTemperature SampleField = iota
	FieldHumidity
	FieldLight
	FieldDust
	FieldCO2
)

var sampleFieldColumns = map[SampleField]string{
	FieldTemperature: "temperature",
	FieldHumidity:    "humidity",
	FieldLight:       "light",
	FieldDust:        "dust",
	FieldCO2:         "co2",
}

func (f SampleField) column() string { return sampleFieldColumns[f] }

// discrete reports whether the field holds discrete readings, matched by
// exact equality rather than a tolerance window.
func (f SampleField) discrete() bool { return f == FieldLight }

// ParseSampleField maps a user-supplied field name onto the closed enum.
func ParseSampleField(name string) (SampleField, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "temperature":
		return FieldTemperature, true
	case "humidity":
		return FieldHumidity, true
	case "light":
		return FieldLight, true
	case "dust":
		return FieldDust, true
	case "co2":
		return FieldCO2, true
	}
	return 0, false
}

// SearchMode selects between the auto (term-sniffing) strategy and a
// single-field tolerance match.
type SearchMode struct {
	field   SampleField
	byField bool
}

// Auto infers whether the term is a date, a number, or neither.
var Auto = SearchMode{}

// ByField restricts matching to one named column.
func ByField(f SampleField) SearchMode {
	return SearchMode{field: f, byField: true}
}

// SortField enumerates the sortable telemetry columns.
type SortField int

const (
	SortTimestamp SortField = iota
	SortID
	SortTemperature
	SortHumidity
	SortLight
	SortDust
	SortCO2
)

var sortFieldColumns = map[SortField]string{
	SortTimestamp:   "timestamp",
	SortID:          "id",
	SortTemperature: "temperature",
	SortHumidity:    "humidity",
	SortLight:       "light",
	SortDust:        "dust",
	SortCO2:         "co2",
}

func (f SortField) column() string { return sortFieldColumns[f] }

// ParseSortField maps a user-supplied sort key onto the enum. Unrecognized
// keys fall back to timestamp, never an error.
func ParseSortField(name string) SortField {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "id":
		return SortID
	case "temperature":
		return SortTemperature
	case "humidity":
		return SortHumidity
	case "light":
		return SortLight
	case "dust":
		return SortDust
	case "co2":
		return SortCO2
	default:
		return SortTimestamp
	}
}

// SampleQuery is a structured search request against the telemetry table.
type SampleQuery struct {
	Term     string
	Mode     SearchMode
	SortBy   SortField
	SortDesc bool
	Page     int
	PageSize int
}

// ActionQuery is a search request against the device action table.
// DeviceName is a case-insensitive substring filter.
type ActionQuery struct {
	DeviceName string
	Page       int
	PageSize   int
}

// Page is a page-bounded result slice with 1-based page accounting.
type Page[T any] struct {
	Data       []T `json:"data"`
	PageNumber int `json:"pageNumber"`
	TotalPages int `json:"totalPages"`
}

func emptyPage[T any](page int) Page[T] {
	return Page[T]{Data: []T{}, PageNumber: page, TotalPages: 0}
}

// SearchSamples filters, sorts and paginates telemetry. A term that parses
// as neither a date nor a number yields an empty page; there is no text
// search over numeric data.
func (r *Repo) SearchSamples(ctx context.Context, q SampleQuery) (Page[TelemetrySample], error) {
	page, size := normalizePage(q.Page, q.PageSize)

	exprs, matchable := buildSampleFilter(q)
	if !matchable {
		return emptyPage[TelemetrySample](page), nil
	}

	// Fresh chain per finisher; gorm chains are not reusable across them.
	base := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&TelemetrySample{})
		if len(exprs) > 0 {
			tx = tx.Clauses(clause.Where{Exprs: exprs})
		}
		return tx
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return Page[TelemetrySample]{}, err
	}
	totalPages := int((total + int64(size) - 1) / int64(size))

	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: q.SortBy.column()}, Desc: q.SortDesc},
		{Column: clause.Column{Name: "id"}, Desc: q.SortDesc},
	}}

	rows := []TelemetrySample{}
	err := base().Clauses(order).Offset((page - 1) * size).Limit(size).Find(&rows).Error
	if err != nil {
		return Page[TelemetrySample]{}, err
	}
	return Page[TelemetrySample]{Data: rows, PageNumber: page, TotalPages: totalPages}, nil
}

// buildSampleFilter translates the term and mode into where expressions.
// The second return is false when the term can never match anything.
func buildSampleFilter(q SampleQuery) ([]clause.Expression, bool) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return nil, true
	}

	if q.Mode.byField {
		n, err := strconv.ParseFloat(term, 64)
		if err != nil {
			return nil, false
		}
		col := q.Mode.field.column()
		if q.Mode.field.discrete() {
			return []clause.Expression{clause.Eq{Column: clause.Column{Name: col}, Value: n}}, true
		}
		return []clause.Expression{toleranceExpr(col, n, fieldTolerance)}, true
	}

	// Auto mode: date first, then number, else nothing matches.
	if from, width, ok := parseSearchTime(term, time.Local); ok {
		to := from.Add(width)
		return []clause.Expression{
			clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: from},
			clause.Lt{Column: clause.Column{Name: "timestamp"}, Value: to},
		}, true
	}

	n, err := strconv.ParseFloat(term, 64)
	if err != nil {
		return nil, false
	}
	ors := make([]clause.Expression, 0, 6)
	if n == math.Trunc(n) {
		ors = append(ors, clause.Eq{Column: clause.Column{Name: "id"}, Value: int64(n)})
	}
	for _, f := range []SampleField{FieldTemperature, FieldHumidity, FieldLight, FieldDust, FieldCO2} {
		ors = append(ors, toleranceExpr(f.column(), n, autoTolerance))
	}
	return []clause.Expression{clause.Or(ors...)}, true
}

func toleranceExpr(col string, n, tol float64) clause.Expression {
	return clause.And(
		clause.Gte{Column: clause.Column{Name: col}, Value: n - tol},
		clause.Lte{Column: clause.Column{Name: col}, Value: n + tol},
	)
}

// SearchActions paginates device action history, newest first, optionally
// narrowed to names containing the filter.
func (r *Repo) SearchActions(ctx context.Context, q ActionQuery) (Page[DeviceAction], error) {
	page, size := normalizePage(q.Page, q.PageSize)

	base := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&DeviceAction{})
		if name := strings.ToLower(strings.TrimSpace(q.DeviceName)); name != "" {
			tx = tx.Where("LOWER(device_name) LIKE ?", "%"+name+"%")
		}
		return tx
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return Page[DeviceAction]{}, err
	}
	totalPages := int((total + int64(size) - 1) / int64(size))

	rows := []DeviceAction{}
	err := base().Order("timestamp DESC, id DESC").Offset((page - 1) * size).Limit(size).Find(&rows).Error
	if err != nil {
		return Page[DeviceAction]{}, err
	}
	return Page[DeviceAction]{Data: rows, PageNumber: page, TotalPages: totalPages}, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	return page, size
}
