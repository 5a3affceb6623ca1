/*
Package storage persists stevedore's local state on the operator host in a
single BoltDB file, <state-dir>/stevedore.db.

Two top-level buckets each hold one nested bucket per cluster:

	runs/<cluster>/<started-at>-<run-id>  -> types.RunRecord (JSON)
	secrets/<cluster>/<secret-name>       -> types.Secret (JSON, Data encrypted)

Run keys sort chronologically, so ListRuns walks the cursor backwards to
return newest first. Secrets are stored as already-encrypted blobs from
pkg/security; the store never sees plaintext.

The database is opened with a lock timeout so two concurrent invocations
against the same state directory fail fast rather than block.
*/
package storage
