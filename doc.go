package tinyocc

/*
TinyOCC is the transaction coordinator of a single region of a sparse, multi-versioned table. Clients run
transactions against the region without taking locks; at commit time each transaction is validated against the
transactions which committed while it ran, and either wins or is told to abort. It is written entirely in Go.

Building TinyOCC produces one executable, tinyocc-server, which serves one region from a local badger database and
exposes status and Prometheus metrics over HTTP.

The `tinyocc` module is organized into the following packages:

* `kv/region`: cells, batch updates, row scanners and row filters of a region.
* `kv/transaction`: the coordinator (`occ`), its write-ahead log (`txnlog`) and row latches (`latches`).
* `kv/storage`: the storage interface with a badger backed and an in-memory implementation.
* `kv/server`: wiring of storage, log recovery, coordinator and the status server.
* `kv/util`: cell key codec, badger helpers, lease registry and background workers.
* `log`: leveled logging.
*/
