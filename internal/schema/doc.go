// Package schema declares bean types explicitly at startup.
//
// A bean type is a name plus an ordered list of properties. Each property is
// either a single value or a list, with a declared value type resolved
// through the converter registry. Types are declared with the Builder or
// loaded from CUE, registered once, and the registry is frozen before the
// first bean is created.
//
// Property names must be identifiers, which keeps them disjoint from the
// reserved attribute names used by the protocol.
package schema
