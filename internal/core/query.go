package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Reserved query parameters. Everything else is a column filter.
const (
	ParamLimit    = "_limit"
	ParamOffset   = "_offset"
	ParamSort     = "_sort"
	ParamCallback = "_callback"
)

// DefaultMaxLimit is the page size used when none is configured.
const DefaultMaxLimit = 100

// regexIndicators are the characters that turn a filter value into a regex
// in RegexpFull mode.
const regexIndicators = "^$(|[*+{?/"

var (
	errNotPositive = errors.New("must be a positive integer")
	errNegative    = errors.New("must be a non-negative integer")
	errEmptyRegex  = errors.New("no expression after ~")
)

// RegexpMode controls how filter values are interpreted.
type RegexpMode int

const (
	// RegexpFull treats values containing regex metacharacters, or prefixed
	// with ~, as regular expressions.
	RegexpFull RegexpMode = iota
	// RegexpSimple treats only values starting with ^ as regular expressions.
	RegexpSimple
	// RegexpDisabled matches every value exactly.
	RegexpDisabled
)

// ParseRegexpMode parses a QUERY_REGEXP setting.
func ParseRegexpMode(s string) (RegexpMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return RegexpFull, nil
	case "simple":
		return RegexpSimple, nil
	case "disabled":
		return RegexpDisabled, nil
	default:
		return 0, fmt.Errorf("unknown regexp mode %q", s)
	}
}

func (m RegexpMode) String() string {
	switch m {
	case RegexpSimple:
		return "simple"
	case RegexpDisabled:
		return "disabled"
	default:
		return "full"
	}
}

// Filter is one predicate on one column. A nil re means exact match.
type Filter struct {
	Key   string
	Value string
	re    *regexp.Regexp
}

func (f Filter) match(field string) bool {
	if f.re != nil {
		return f.re.MatchString(field)
	}
	return field == f.Value
}

// Query is a parsed, validated row query. Column keys are resolved against a
// dataset only when the query runs.
type Query struct {
	Filters []Filter
	Limit   int
	Offset  int
}

// QueryResult is one page of matching rows.
type QueryResult struct {
	Results     []map[string]string `json:"results"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
	ResultCount int                 `json:"resultCount"`
}

// QueryEngine parses and runs row queries.
type QueryEngine struct {
	maxLimit int
	timeout  time.Duration
	mode     RegexpMode
}

// NewQueryEngine creates an engine. A non-positive maxLimit uses
// DefaultMaxLimit and a non-positive timeout disables the scan deadline.
func NewQueryEngine(maxLimit int, timeout time.Duration, mode RegexpMode) *QueryEngine {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &QueryEngine{
		maxLimit: maxLimit,
		timeout:  timeout,
		mode:     mode,
	}
}

// Parse builds a Query from request parameters.
func (e *QueryEngine) Parse(values url.Values) (*Query, error) {
	q := &Query{Limit: e.maxLimit}

	if values.Has(ParamLimit) {
		raw := values.Get(ParamLimit)
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n <= 0 {
			return nil, &InvalidFilterError{Param: ParamLimit, Value: raw, Err: errNotPositive}
		}
		q.Limit = min(n, e.maxLimit)
	}

	if values.Has(ParamOffset) {
		raw := values.Get(ParamOffset)
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, &InvalidFilterError{Param: ParamOffset, Value: raw, Err: errNegative}
		}
		q.Offset = n
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, rawKey := range keys {
		key := strings.TrimSpace(rawKey)
		if isReserved(key) {
			continue
		}
		for _, v := range values[rawKey] {
			f, err := e.compile(key, v)
			if err != nil {
				return nil, err
			}
			q.Filters = append(q.Filters, f)
		}
	}

	return q, nil
}

func isReserved(key string) bool {
	switch strings.ToLower(key) {
	case ParamLimit, ParamOffset, ParamSort, ParamCallback:
		return true
	}
	return false
}

func (e *QueryEngine) compile(key, value string) (Filter, error) {
	f := Filter{Key: key, Value: value}

	expr, isRegex := value, false
	switch e.mode {
	case RegexpFull:
		if strings.HasPrefix(value, "~") {
			expr = value[1:]
			if expr == "" {
				return f, &InvalidFilterError{Param: key, Value: value, Err: errEmptyRegex}
			}
			isRegex = true
		} else {
			isRegex = strings.ContainsAny(value, regexIndicators)
		}
	case RegexpSimple:
		isRegex = strings.HasPrefix(value, "^")
	}

	if isRegex {
		re, err := regexp.Compile(expr)
		if err != nil {
			return f, &InvalidFilterError{Param: key, Value: value, Err: err}
		}
		f.re = re
	}
	return f, nil
}

type boundFilter struct {
	column int
	Filter
}

// Execute runs q against ds. The dataset must be Ready.
func (e *QueryEngine) Execute(ctx context.Context, ds *Dataset, q *Query) (*QueryResult, error) {
	if err := checkQueryable(ds); err != nil {
		return nil, err
	}

	bound := make([]boundFilter, 0, len(q.Filters))
	for _, f := range q.Filters {
		col, ok := ds.ColumnIndex(f.Key)
		if !ok {
			return nil, &UnknownFilterKeyError{Key: f.Key}
		}
		bound = append(bound, boundFilter{column: col, Filter: f})
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result := &QueryResult{
		Results: make([]map[string]string, 0, min(q.Limit, ds.RowCount())),
		Limit:   q.Limit,
		Offset:  q.Offset,
	}

	for i, row := range ds.Rows {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, ErrQueryTimeout
				}
				return nil, err
			}
		}
		if !matchRow(row, bound) {
			continue
		}
		if result.ResultCount >= q.Offset && len(result.Results) < q.Limit {
			result.Results = append(result.Results, ds.Row(i))
		}
		result.ResultCount++
	}

	return result, nil
}

func matchRow(row []string, filters []boundFilter) bool {
	for _, f := range filters {
		if !f.match(row[f.column]) {
			return false
		}
	}
	return true
}
