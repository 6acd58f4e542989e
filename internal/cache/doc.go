// Package cache holds the two caches an engine keeps between calls.
//
// Lookup memoizes single-record finds per class. Components memoizes the
// resolved relations of one record instance. Both are safe for concurrent
// use and both are owned by whoever creates them; there is no package-level
// state. Keys are content hashes built by Key.
package cache
