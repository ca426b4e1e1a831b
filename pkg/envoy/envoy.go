// Package envoy implements the chunked, encrypted gateway between a plain
// byte stream and a bucket of small encrypted objects: bucket bootstrap,
// ownership verification, a bucket-wide mutex, and chunked send/recv.
package envoy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/codec"
	"github.com/nyxstorage/spare/pkg/metrics"
	"github.com/nyxstorage/spare/pkg/objectstore"
)

// BlockSize is the target chunk size a stream is split into before
// encryption: 1 MiB.
const BlockSize = 1 << 20

// NonceSize is the number of random bytes backing each chunk's nonce, before
// hex-encoding to a 32-character string.
const NonceSize = 16

// markerKey is the bucket-owner marker; its presence (with the expected
// body) proves the bucket belongs to spare.
const markerKey = ".spare"

// lockKey is the mutual-exclusion marker.
const lockKey = ".lock"

const defaultWorkers = 4

var prefixGrammar = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.]+$`)

// firstBlockPattern matches the literal fixed-width ordinal field of chunk 1,
// immediately after the prefix separator. Matching the 9-digit field (rather
// than the looser substring "1-") is required because a shorter match would
// misclassify ordinals like 11, 21, ... whose decimal representation also
// contains "1-" as a substring at some position.
var firstBlockPattern = regexp.MustCompile(`/000000001-`)

// Config configures an Envoy instance.
type Config struct {
	Bucket          string
	Password        []byte
	CodecID         string // defaults to codec.DefaultCodecID
	BlockSize       int    // defaults to BlockSize
	UploadWorkers   int    // defaults to 4
	DownloadWorkers int    // not read by New; Recv fetches chunks sequentially
	Metrics         *metrics.Metrics
}

// Envoy is the chunked encrypted-blob gateway described in spec §4.2.
type Envoy struct {
	store     objectstore.Store
	bucket    string
	password  []byte
	codec     codec.Codec
	blockSize int
	workers   int
	metrics   *metrics.Metrics

	mu            sync.Mutex
	locked        bool
	knownPrefixes map[string]struct{}
}

// New builds an Envoy over store. The known-prefix cache starts empty; it is
// populated on Lock.
func New(store objectstore.Store, cfg Config) (*Envoy, error) {
	id := cfg.CodecID
	if id == "" {
		id = codec.DefaultCodecID
	}
	c, err := codec.Get(id)
	if err != nil {
		return nil, fmt.Errorf("envoy: %w", err)
	}

	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	workers := cfg.UploadWorkers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Envoy{
		store:     store,
		bucket:    cfg.Bucket,
		password:  cfg.Password,
		codec:     c,
		blockSize: blockSize,
		workers:   workers,
		metrics:   cfg.Metrics,
	}, nil
}

// EnsureBucketExists creates the bucket if it is absent, writing the .spare
// owner marker on creation.
func (e *Envoy) EnsureBucketExists(ctx context.Context) error {
	exists, err := e.store.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("envoy: ensure bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := e.store.CreateBucket(ctx); err != nil {
		return fmt.Errorf("envoy: create bucket: %w", err)
	}
	marker := []byte(fmt.Sprintf("spare://%s", e.bucket))
	if err := e.store.PutObject(ctx, markerKey, marker); err != nil {
		return fmt.Errorf("envoy: write owner marker: %w", err)
	}
	return nil
}

// EnsureBucketIsOurs fails with BucketOtherwiseUsedError if the .spare
// marker is absent.
func (e *Envoy) EnsureBucketIsOurs(ctx context.Context) error {
	_, err := e.store.GetObject(ctx, markerKey)
	if err != nil {
		return &BucketOtherwiseUsedError{Bucket: e.bucket}
	}
	return nil
}

// isKnownPrefix lists the store directly (bypassing the dot-filtered Keys
// iterator) since control files like .lock and .spare must themselves be
// checkable.
func (e *Envoy) isKnownPrefix(ctx context.Context, prefix string) (bool, error) {
	keys, err := e.store.ListObjects(ctx, prefix, 1)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// Lock acquires the bucket-wide mutex, failing with BucketAlreadyLockedError
// if another holder already wrote .lock. On success it snapshots the set of
// existing prefixes for fast membership tests while the lock is held.
func (e *Envoy) Lock(ctx context.Context) error {
	start := time.Now()
	defer func() { e.metrics.ObserveLockWait(time.Since(start).Seconds()) }()

	if err := e.EnsureBucketExists(ctx); err != nil {
		return err
	}
	if err := e.EnsureBucketIsOurs(ctx); err != nil {
		return err
	}

	locked, err := e.isKnownPrefix(ctx, lockKey)
	if err != nil {
		return fmt.Errorf("envoy: check lock: %w", err)
	}
	if locked {
		return &BucketAlreadyLockedError{Bucket: e.bucket}
	}

	if err := e.store.PutObject(ctx, lockKey, nil); err != nil {
		return fmt.Errorf("envoy: acquire lock: %w", err)
	}

	prefixes, err := e.snapshotPrefixes(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.locked = true
	e.knownPrefixes = prefixes
	e.mu.Unlock()

	return nil
}

// Unlock releases the mutex. Fails with BucketNotLockedError if the bucket
// was already free.
func (e *Envoy) Unlock(ctx context.Context) error {
	if err := e.EnsureBucketExists(ctx); err != nil {
		return err
	}
	if err := e.EnsureBucketIsOurs(ctx); err != nil {
		return err
	}

	locked, err := e.isKnownPrefix(ctx, lockKey)
	if err != nil {
		return fmt.Errorf("envoy: check lock: %w", err)
	}
	if !locked {
		return &BucketNotLockedError{Bucket: e.bucket}
	}

	if err := e.store.DeleteObjects(ctx, lockKey); err != nil {
		return fmt.Errorf("envoy: release lock: %w", err)
	}

	e.mu.Lock()
	e.locked = false
	e.knownPrefixes = nil
	e.mu.Unlock()

	return nil
}

func (e *Envoy) requireLocked() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.locked {
		return &BucketNotLockedError{Bucket: e.bucket}
	}
	return nil
}

func (e *Envoy) ensureValidPrefix(prefix string) error {
	if prefix == "" || !prefixGrammar.MatchString(prefix) {
		return &InvalidPrefixError{Prefix: prefix}
	}
	return nil
}

func (e *Envoy) isKnownPrefixCached(prefix string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.knownPrefixes[prefix]
	return ok
}

func (e *Envoy) markPrefixKnown(prefix string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.knownPrefixes == nil {
		e.knownPrefixes = make(map[string]struct{})
	}
	e.knownPrefixes[prefix] = struct{}{}
}

func (e *Envoy) forgetPrefix(prefix string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.knownPrefixes, prefix)
}

// snapshotPrefixes lists every non-control prefix currently present, for the
// known-prefix cache populated on Lock.
func (e *Envoy) snapshotPrefixes(ctx context.Context) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for prefix, err := range e.Prefixes(ctx, "") {
		if err != nil {
			return nil, err
		}
		set[prefix] = struct{}{}
	}
	return set, nil
}

func generateNonce() ([]byte, string, error) {
	raw := make([]byte, NonceSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("envoy: generate nonce: %w", err)
	}
	return raw, hex.EncodeToString(raw), nil
}

func extractNonce(key string) (string, error) {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return "", fmt.Errorf("envoy: malformed key %q", key)
	}
	return key[idx+1:], nil
}

func extractPrefix(key string) string {
	if idx := strings.Index(key, "/"); idx >= 0 {
		return key[:idx]
	}
	return key
}

func isFirstBlock(key string) bool {
	return firstBlockPattern.MatchString(key)
}

type uploadTask struct {
	key  string
	body []byte
}

// Send reads stream in fixed-size chunks, encrypts each with a fresh random
// nonce, and uploads them through a bounded worker pool. beforeEncrypt, if
// non-nil, observes each plaintext chunk before it is sealed (callers use it
// to compute the content digest).
func (e *Envoy) Send(ctx context.Context, prefix string, stream io.Reader, beforeEncrypt func([]byte)) error {
	if err := e.ensureValidPrefix(prefix); err != nil {
		return err
	}
	if err := e.requireLocked(); err != nil {
		return err
	}
	if e.isKnownPrefixCached(prefix) {
		return &ExistingPrefixError{Prefix: prefix}
	}

	var tasks []uploadTask
	buf := make([]byte, e.blockSize)
	ordinal := 1

	for {
		n, readErr := io.ReadFull(stream, buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if beforeEncrypt != nil {
				beforeEncrypt(chunk)
			}

			nonceRaw, nonceHex, err := generateNonce()
			if err != nil {
				return err
			}

			block := &codec.Block{Password: e.password, Nonce: nonceRaw, Buffer: chunk}
			if err := block.Encrypt(e.codec); err != nil {
				return fmt.Errorf("envoy: encrypt chunk %d of %s: %w", ordinal, prefix, err)
			}

			key := fmt.Sprintf("%s/%09d-%s", prefix, ordinal, nonceHex)
			tasks = append(tasks, uploadTask{key: key, body: block.Buffer})
			ordinal++
		}

		if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("envoy: read stream for %s: %w", prefix, readErr)
		}
	}

	if err := e.uploadAll(ctx, prefix, tasks); err != nil {
		return err
	}

	e.markPrefixKnown(prefix)
	return nil
}

func (e *Envoy) uploadAll(ctx context.Context, prefix string, tasks []uploadTask) error {
	lc := logger.NewLogContext(prefix)

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for slot, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(slot int, task uploadTask) {
			defer wg.Done()
			defer func() { <-sem }()

			workerCtx := logger.WithContext(ctx, lc.WithWorker(slot%e.workers).WithDigest(task.key))
			logger.DebugCtx(workerCtx, "uploading chunk", logger.Bytes(len(task.body)))

			if err := e.store.PutObject(ctx, task.key, task.body); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("envoy: upload %s: %w", task.key, err))
				mu.Unlock()
				return
			}
			e.metrics.RecordChunkUploaded()
		}(slot, task)
	}

	wg.Wait()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Recv lists prefix's keys in lexicographic (= ordinal) order, downloads and
// decrypts each, and writes the plaintext to sink in order. afterDecrypt, if
// non-nil, observes each plaintext chunk (callers use it to verify a
// checksum while streaming).
func (e *Envoy) Recv(ctx context.Context, prefix string, sink io.Writer, afterDecrypt func([]byte)) error {
	if err := e.ensureValidPrefix(prefix); err != nil {
		return err
	}

	keys, err := e.store.ListObjects(ctx, prefix+"/", 0)
	if err != nil {
		return fmt.Errorf("envoy: list %s: %w", prefix, err)
	}

	for _, key := range keys {
		nonceHex, err := extractNonce(key)
		if err != nil {
			return err
		}
		nonceRaw, err := hex.DecodeString(nonceHex)
		if err != nil {
			return fmt.Errorf("envoy: decode nonce in %s: %w", key, err)
		}

		body, err := e.store.GetObject(ctx, key)
		if err != nil {
			return fmt.Errorf("envoy: download %s: %w", key, err)
		}

		block := &codec.Block{Password: e.password, Nonce: nonceRaw, Buffer: body}
		if err := block.Decrypt(e.codec); err != nil {
			return fmt.Errorf("envoy: decrypt %s: %w", key, err)
		}
		e.metrics.RecordChunkDownloaded()

		if afterDecrypt != nil {
			afterDecrypt(block.Buffer)
		}
		if _, err := sink.Write(block.Buffer); err != nil {
			return fmt.Errorf("envoy: write %s to sink: %w", key, err)
		}
	}

	return nil
}

// Delete removes every object under prefix. Requires the lock.
func (e *Envoy) Delete(ctx context.Context, prefix string) error {
	if err := e.ensureValidPrefix(prefix); err != nil {
		return err
	}
	if err := e.requireLocked(); err != nil {
		return err
	}

	if err := e.store.DeleteObjects(ctx, prefix); err != nil {
		return fmt.Errorf("envoy: delete %s: %w", prefix, err)
	}

	e.forgetPrefix(prefix)
	return nil
}

// Keys lazily iterates every object key under prefix that does not begin
// with a control-file dot.
func (e *Envoy) Keys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		keys, err := e.store.ListObjects(ctx, prefix, 0)
		if err != nil {
			yield("", fmt.Errorf("envoy: list keys %s: %w", prefix, err))
			return
		}
		for _, key := range keys {
			if strings.HasPrefix(key, ".") {
				continue
			}
			if !yield(key, nil) {
				return
			}
		}
	}
}

// Prefixes lazily iterates every prefix whose first chunk (ordinal 1) is
// present.
func (e *Envoy) Prefixes(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		seen := make(map[string]struct{})
		for key, err := range e.Keys(ctx, prefix) {
			if err != nil {
				yield("", err)
				return
			}
			if !isFirstBlock(key) {
				continue
			}
			p := extractPrefix(key)
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			if !yield(p, nil) {
				return
			}
		}
	}
}

// IsKnownPrefix reports whether prefix has at least one object, without
// consulting the in-memory cache. Exported for callers (e.g. Snapshot.save)
// that need a definitive answer rather than the cached membership test.
func (e *Envoy) IsKnownPrefix(ctx context.Context, prefix string) (bool, error) {
	return e.isKnownPrefix(ctx, prefix)
}

// nullWriter discards everything written to it; used by callers (validate)
// that only want the side effect of afterDecrypt.
type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

// NullSink is a writer that discards all data, for streaming reads whose
// only purpose is to drive a running hash via afterDecrypt/beforeEncrypt.
var NullSink io.Writer = nullWriter{}
