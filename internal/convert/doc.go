// Package convert maps declared property value types to wire converters.
//
// Every value type has a small integer field-type tag. The tag of each
// property is published in the class descriptor model, so both sides must
// build their registry identically. A registry is populated at startup and
// frozen before the first bean is created.
package convert
