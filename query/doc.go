// Package query builds and runs property queries over the records of one
// entity.
//
// A query is assembled with a Builder, frozen by Build and then executed
// exactly once against a Source (usually a boxdb.Cursor):
//
//	q, err := query.New(userEntity).
//	    Where(
//	        query.Equal("name", model.String("alice"), query.CaseInsensitive()),
//	        query.Between("age", model.Int(18), model.Int(65)),
//	    ).
//	    OrderBy("age", query.Descending).
//	    Limit(10).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	users, err := q.Find(cursor)
//
// Conditions are combined with AND and evaluated in declaration order,
// stopping at the first one that fails. Case-sensitive Equal and In
// conditions on indexed properties (or on the identifier) are answered from
// the secondary index first; the remaining records are still checked against
// every condition, so a query returns the same result with or without an index.
//
// Without OrderBy, results are in ascending identifier order. Sorting is
// stable and ties are broken by ascending identifier. Null values sort first
// unless NullsLast is given.
package query
