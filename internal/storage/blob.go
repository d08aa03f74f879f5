package storage

import "io"

// BlobStore keeps raw uploaded artifacts, currently the CSV files behind
// question imports, so an import can be audited or replayed later.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
