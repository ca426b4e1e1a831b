package logger

import "log/slog"

// Standard field keys for structured logging across spare's backup/restore
// pipeline. Use these keys consistently so log lines can be queried and
// aggregated regardless of which package emitted them.
const (
	// ========================================================================
	// Bucket & Object Addressing
	// ========================================================================
	KeyBucket   = "bucket"   // S3-compatible bucket name
	KeyEndpoint = "endpoint" // Object-store endpoint
	KeyPrefix   = "prefix"   // Object key / snapshot prefix (snapshot_<ULID> or a digest)
	KeyDigest   = "digest"   // BLAKE2b-256 content digest

	// ========================================================================
	// Tree Walking
	// ========================================================================
	KeyPath     = "path"     // Source or restore-target path
	KeyIdentity = "identity" // Inventory identity string (host:path:inode)
	KeySize     = "size"     // File size in bytes
	KeyMode     = "mode"     // File mode/permissions
	KeyInode    = "inode"    // Inode number, used to detect hardlink groups
	KeyUser     = "user"     // Owning username recorded in structure metadata
	KeyGroup    = "group"    // Owning group name recorded in structure metadata

	// ========================================================================
	// Codec & Transfer
	// ========================================================================
	KeyCodec     = "codec"      // Block codec id (aes-siv, aes-gcm)
	KeyBlockSize = "block_size" // Configured chunk size before encryption
	KeyWorker    = "worker"     // Worker-pool slot index for a concurrent upload/download
	KeyBytes     = "bytes"      // Bytes transferred for one chunk or file

	// ========================================================================
	// Snapshot Lifecycle
	// ========================================================================
	KeySnapshot = "snapshot" // Snapshot prefix a log line concerns
	KeyKeep     = "keep"     // Retention count passed to Prune
	KeyPruned   = "pruned"   // Number of snapshots/prefixes a Prune call removed

	// ========================================================================
	// Validation
	// ========================================================================
	KeyDefectKind = "defect_kind" // Validate defect classification: unknown, checksum, missing

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// Bucket returns a slog.Attr for the bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Endpoint returns a slog.Attr for the object-store endpoint.
func Endpoint(endpoint string) slog.Attr {
	return slog.String(KeyEndpoint, endpoint)
}

// Prefix returns a slog.Attr for an object key or snapshot prefix.
func Prefix(prefix string) slog.Attr {
	return slog.String(KeyPrefix, prefix)
}

// Digest returns a slog.Attr for a content digest.
func Digest(digest string) slog.Attr {
	return slog.String(KeyDigest, digest)
}

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Identity returns a slog.Attr for an inventory identity string.
func Identity(id string) slog.Attr {
	return slog.String(KeyIdentity, id)
}

// Size returns a slog.Attr for a size in bytes.
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Mode returns a slog.Attr for a file mode.
func Mode(m uint32) slog.Attr {
	return slog.Any(KeyMode, m)
}

// Inode returns a slog.Attr for an inode number.
func Inode(i uint64) slog.Attr {
	return slog.Uint64(KeyInode, i)
}

// User returns a slog.Attr for an owning username.
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// Group returns a slog.Attr for an owning group name.
func Group(name string) slog.Attr {
	return slog.String(KeyGroup, name)
}

// Codec returns a slog.Attr for a block codec id.
func Codec(id string) slog.Attr {
	return slog.String(KeyCodec, id)
}

// BlockSize returns a slog.Attr for the configured chunk size.
func BlockSize(n int) slog.Attr {
	return slog.Int(KeyBlockSize, n)
}

// Worker returns a slog.Attr for a worker-pool slot index.
func Worker(n int) slog.Attr {
	return slog.Int(KeyWorker, n)
}

// Bytes returns a slog.Attr for a byte count transferred.
func Bytes(n int) slog.Attr {
	return slog.Int(KeyBytes, n)
}

// Snapshot returns a slog.Attr for a snapshot prefix.
func Snapshot(prefix string) slog.Attr {
	return slog.String(KeySnapshot, prefix)
}

// Keep returns a slog.Attr for a retention count.
func Keep(n int) slog.Attr {
	return slog.Int(KeyKeep, n)
}

// Pruned returns a slog.Attr for the number of snapshots/prefixes removed.
func Pruned(n int) slog.Attr {
	return slog.Int(KeyPruned, n)
}

// DefectKind returns a slog.Attr for a Validate defect's classification.
func DefectKind(kind string) slog.Attr {
	return slog.String(KeyDefectKind, kind)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempts.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
