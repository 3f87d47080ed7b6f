// Package schema declares entities and their property tables.
//
// An entity is declared once, either in Go:
//
//	var User = schema.MustEntity("User", 1,
//	    schema.NewProperty("id", 1, schema.Int64, schema.ID),
//	    schema.NewProperty("name", 2, schema.String, schema.Unique),
//	    schema.NewProperty("age", 3, schema.Int64),
//	)
//
// or in YAML via [LoadYAML]. The resulting [Entity] is immutable and is passed
// explicitly to the store; there is no global registry.
//
// Property ids are stable. Once a property is removed from a declaration its
// id is retired by the store and must not be reused.
package schema
