/*
Package storage persists the coordinator's durable state in BoltDB
(go.etcd.io/bbolt): Name Service entries, the Worker-Record table, and
per-cycle checkpoint manifests.

# Buckets

  - nameservice: entries keyed by an 8-byte namespace prefix followed
    by the caller-supplied key; ClearNamespace scans by that prefix.
  - nameservice_counters: one big-endian uint64 counter per namespace,
    advanced by NextUniqueID.
  - worker_records: types.WorkerRecord, JSON-encoded, keyed by the
    worker's UniquePid string form.
  - manifests: checkpoint manifest bytes keyed by an opaque cycle ID.

BoltStore is the only production implementation of Store; tests may
substitute an in-memory fake. All operations run inside a single
db.Update or db.View transaction, giving ACID semantics for free.

# See Also

  - pkg/nameservice for the Name Service protocol built on this package
  - pkg/coordinator for the Worker-Record table's primary caller
  - pkg/checkpoint for manifest contents
*/
package storage
