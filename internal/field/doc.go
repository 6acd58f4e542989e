// Package field holds the codecs that move declared field values between
// records and storage columns.
//
// A class declares each field with a type tag such as "Int", "Varchar(255)"
// or "Enum(Draft,Published)". The Registry parses the tag and returns the
// Codec for it. Scalar codecs store one column per field. Composite codecs
// spread one value over several columns and take part in query
// construction through ExpandQuery.
package field
