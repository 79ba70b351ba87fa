// Package parquet exports batches to Parquet snapshot files and imports
// them back.
//
// Every measurement becomes one row carrying the metadata of its sequence,
// so the files can be queried directly by analytical engines. An empty
// sequence is stored as a single row with sequence_index -1. Reading a file
// regroups contiguous rows into sequences and re-appends them in order.
package parquet
