// Package model defines the core value and record types used throughout boxdb.
//
// # Values
//
// A [Value] is a small tagged union holding one property value:
//
//	model.Int(42)
//	model.String("alice")
//	model.Bool(true)
//	model.Double(3.14)
//	model.Bytes([]byte{0x01})
//	model.Null()
//
// Values have a natural ordering per kind (see [Compare]); Null orders before
// every other value.
//
// # Records
//
// A [Record] is one stored instance of an entity: an identifier plus a value
// per property, keyed by property name:
//
//	rec := &model.Record{
//	    Values: map[string]model.Value{
//	        "name": model.String("alice"),
//	    },
//	}
//
// An ID of 0 means "assign on insert". Missing values read as Null.
package model
