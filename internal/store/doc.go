// Package store defines the domain records and repository interfaces for the
// site (articles, tags, comments, users, market prices, notes and regulations).
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
