// Package albumkeep provides the core types and interfaces for the album
// metadata pipeline: object-store mutation events are fanned out through a
// filtered publish/subscribe layer to queue-backed workers that keep one
// metadata record per uploaded image, with a dead-letter escalation path for
// rejected uploads and change-feed-triggered confirmation notifications.
//
// The package itself is transport- and storage-agnostic. Concrete backends
// live in sub-packages:
//
//   - pubsub:            filter policies, topic fan-out, retry/DLQ queues,
//     consumer loop, SNS/SQS adapters
//   - worker:            ingest, deletion, attribute-update, rejection and
//     confirmation workers
//   - repo/memory,
//     repo/postgres,
//     repo/dynamo:       MetadataStore implementations with change feeds
//   - notify:            notification senders (in-memory recorder, SES)
//   - objectstore:       source-object probes (in-memory, S3)
//   - dedup:             message de-duplication stores (in-memory, redis)
//   - pipeline:          assembles a complete in-process pipeline
package albumkeep
