package recovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/nyxstorage/spare/internal/logger"
	"github.com/nyxstorage/spare/pkg/guard"
)

// linkGroup is one inode-equivalence class within a digest's path list: the
// first path, clone, receives the actual bytes (by download or file copy);
// the rest, links, become hardlinks to it. Groups are ordered by the inode
// value their paths share, matching the original's
// groupby(sorted(paths, key=inode)).
type linkGroup struct {
	clone string
	links []string
}

// downloadJob is one digest's restore work: a genesis group, whose clone is
// the path the digest is actually downloaded to, plus zero or more sibling
// groups that receive a file copy of the genesis and their own hardlinks.
// Content-identical files are only ever fetched once because each digest
// gets exactly one job; there is no separate in-flight tracking of fetches.
type downloadJob struct {
	digest  string
	targets []linkGroup
}

func (r *Recovery) buildJobs() []downloadJob {
	structure := r.snapshot.Meta.Structure

	digests := make([]string, 0, len(r.snapshot.Meta.Files))
	for digest := range r.snapshot.Meta.Files {
		digests = append(digests, digest)
	}
	sort.Strings(digests)

	jobs := make([]downloadJob, 0, len(digests))
	for _, digest := range digests {
		paths := append([]string(nil), r.snapshot.Meta.Files[digest]...)
		sort.SliceStable(paths, func(i, j int) bool {
			return structure[paths[i]].Inode < structure[paths[j]].Inode
		})

		var groups []linkGroup
		i := 0
		for i < len(paths) {
			j := i + 1
			for j < len(paths) && structure[paths[j]].Inode == structure[paths[i]].Inode {
				j++
			}
			groups = append(groups, linkGroup{clone: paths[i], links: paths[i+1 : j]})
			i = j
		}

		jobs = append(jobs, downloadJob{digest: digest, targets: groups})
	}
	return jobs
}

// downloadData fetches every digest exactly once and realises it at every
// path that needs it, across a bounded worker pool. Restore favors
// throughput over backup's conservative resource use, so unlike Send's
// single stream per call, many digests are fetched concurrently.
func (r *Recovery) downloadData(ctx context.Context, target string) error {
	jobs := r.buildJobs()
	lc := logger.NewLogContext(r.snapshot.Prefix)

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for slot, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(slot int, job downloadJob) {
			defer wg.Done()
			defer func() { <-sem }()

			workerCtx := logger.WithContext(ctx, lc.WithWorker(slot%r.workers).WithDigest(job.digest))
			logger.DebugCtx(workerCtx, "fetching digest")

			if err := r.fetch(workerCtx, target, job); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(slot, job)
	}

	wg.Wait()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// fetch downloads job's digest once, to its genesis clone, hardlinks every
// sibling of that clone, then stat-copies the genesis to each remaining
// clone and hardlinks its siblings in turn.
func (r *Recovery) fetch(ctx context.Context, target string, job downloadJob) error {
	if len(job.targets) == 0 {
		return nil
	}

	genesis := job.targets[0]
	logger.Infof("downloading %s", genesis.clone)

	genesisAbs, err := securejoin.SecureJoin(target, genesis.clone)
	if err != nil {
		return fmt.Errorf("recovery: join %s: %w", genesis.clone, err)
	}

	got, err := r.fetchTo(ctx, job.digest, genesisAbs)
	if err != nil {
		return err
	}
	if got != job.digest {
		logChecksumMismatch(job, got)
	}

	if err := linkSiblings(target, genesisAbs, genesis.links); err != nil {
		return err
	}

	for _, group := range job.targets[1:] {
		cloneAbs, err := securejoin.SecureJoin(target, group.clone)
		if err != nil {
			return fmt.Errorf("recovery: join %s: %w", group.clone, err)
		}

		if err := copyWithStat(genesisAbs, cloneAbs); err != nil {
			return fmt.Errorf("recovery: copy %s to %s: %w", genesisAbs, cloneAbs, err)
		}

		if err := linkSiblings(target, cloneAbs, group.links); err != nil {
			return err
		}
	}

	return nil
}

// fetchTo downloads digest into abs, whose parent is temporarily made
// writable for the duration since restoreStructure may have already
// restored a read-only mode on it. It returns the actual hex digest of the
// bytes received, which the caller compares against the expected digest —
// every clone and hardlink sharing abs's bytes needs that same verdict.
func (r *Recovery) fetchTo(ctx context.Context, digest, abs string) (string, error) {
	dirGuard, err := guard.AcquireWritable(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	defer dirGuard.Close()

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("recovery: open %s: %w", abs, err)
	}

	hasher, err := newRunningHash()
	if err != nil {
		f.Close()
		return "", err
	}

	afterDecrypt := hasher.update
	if r.progress != nil {
		afterDecrypt = func(p []byte) {
			hasher.update(p)
			r.progress(len(p))
		}
	}

	recvErr := r.envoy.Recv(ctx, digest, f, afterDecrypt)
	closeErr := f.Close()
	if recvErr != nil {
		return "", fmt.Errorf("recovery: download %s: %w", digest, recvErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("recovery: close %s: %w", abs, closeErr)
	}

	return hasher.hexDigest(), nil
}

// logChecksumMismatch logs the checksum mismatch found on job's genesis
// download for every path the job will realize it at: the genesis clone and
// its hardlink siblings, and every sibling group's clone and its own
// siblings, since copyWithStat and linkSiblings propagate the same bad bytes
// to all of them.
func logChecksumMismatch(job downloadJob, got string) {
	for _, group := range job.targets {
		logger.Errorf("unexpected checksum for %s, expected %s, got %s", group.clone, job.digest, got)
		for _, link := range group.links {
			logger.Errorf("unexpected checksum for %s, expected %s, got %s", link, job.digest, got)
		}
	}
}

// linkSiblings hardlinks each of links to clone, first removing the empty
// placeholder file restoreStructure touched there.
func linkSiblings(target, clone string, links []string) error {
	for _, link := range links {
		linkAbs, err := securejoin.SecureJoin(target, link)
		if err != nil {
			return fmt.Errorf("recovery: join %s: %w", link, err)
		}
		if err := os.Remove(linkAbs); err != nil {
			return fmt.Errorf("recovery: remove placeholder %s: %w", linkAbs, err)
		}
		if err := os.Link(clone, linkAbs); err != nil {
			return fmt.Errorf("recovery: link %s to %s: %w", linkAbs, clone, err)
		}
	}
	return nil
}

// copyWithStat copies src's bytes to dst and matches dst's mode to src's,
// mirroring shutil.copyfile + shutil.copystat. Ownership was already set by
// restoreStructure from dst's own structure entry and is left untouched.
func copyWithStat(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	dirGuard, err := guard.AcquireWritable(filepath.Dir(dst))
	if err != nil {
		return err
	}
	defer dirGuard.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chmod(dst, info.Mode())
}
