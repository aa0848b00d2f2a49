// Package archive defines the types and collaborator interfaces shared by the
// harvester subsystems: coordinates and page indexes, the fetcher and publish
// sink contracts, the storage backends, and the error kinds every layer reports.
package archive
