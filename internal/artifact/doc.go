// Package artifact defines the typed generation artifacts: the backlog tree
// and Mermaid diagrams. Backend JSON is parsed leniently at the boundary into
// strict types; everything downstream works with the typed tree only.
package artifact
