package query

import "github.com/roach88/basekit/internal/value"

// Page is one page of fetched records.
type Page struct {
	Items []value.Object
	// Last is the key of the final item when more matching records
	// follow, and empty on the final page.
	Last string
}

// Paginate filters records (already in store iteration order), resumes
// strictly after the record whose key equals cursor, and truncates to
// limit. A cursor that matches no record restarts from the first match.
// A non-positive limit means no limit.
func Paginate(records []value.Object, pred Predicate, cursor string, limit int) (Page, error) {
	if pred == nil {
		pred = MatchAll
	}

	matched := make([]value.Object, 0, len(records))
	for _, rec := range records {
		ok, err := pred(rec)
		if err != nil {
			return Page{}, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	if cursor != "" {
		for i, rec := range matched {
			if key, _ := rec[KeyField].(value.String); string(key) == cursor {
				matched = matched[i+1:]
				break
			}
		}
	}

	if limit <= 0 || len(matched) <= limit {
		return Page{Items: matched}, nil
	}

	items := matched[:limit]
	last, _ := items[limit-1][KeyField].(value.String)
	return Page{Items: items, Last: string(last)}, nil
}
