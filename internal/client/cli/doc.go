// Package cli implements the objidx command line:
//
//	objidx upload <path>... [-t key=value] [--url u] [--partial]
//	objidx search (--url <u>[*] | --tag key=value)
//	objidx file <id>
//	objidx object (<id> | --checksum <hex>)
//	objidx download <object-id> [-o path]
//	objidx complete (<object-id> | --pending)
//
// Output is a human table on a terminal and JSON otherwise; --output
// forces either.
package cli
