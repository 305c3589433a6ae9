// Package types defines the schema model (tables, columns, constraints,
// databases), query and filter declarations, the SQL connection interface,
// configuration, and the standard errors for Larder.
//
// Values in this package are plain data. They are produced by the spec
// registry (reflection over struct tags or precompiled catalog entries) or
// built directly, and are treated as immutable once handed to the compilers.
package types
