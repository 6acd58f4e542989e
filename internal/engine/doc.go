// Package engine persists and loads records of a class hierarchy.
//
// An Engine ties the schema registry, the field codecs, the query builder
// and a storage Executor together. It implements the finders (Get, GetOne,
// GetByID, Count), the write orchestrator (Persist, Delete) and the
// relation resolver (Component, Components, ManyManyComponents,
// ResolveRelation).
//
// WRITE ORDER:
//
// A new record is written as one batch:
// 1. Insert into the base table with ClassName and Created, generating ID
// 2. Update the base table with changed base fields and LastEdited
// 3. Insert into every other ancestor table with its changed fields
//
// An existing record skips step 1 and writes only the tables holding
// changed fields. The batch runs in one transaction in the Executor.
//
// CACHES:
//
// Each Engine owns a lookup cache for GetOne and GetByID. Each record owns
// its component cache. A successful write invalidates the lookup cache for
// the record's ancestry and clears the record's components. Scope returns
// an Engine sharing everything but the lookup cache, for use as a
// per-request unit in concurrent hosts.
package engine
