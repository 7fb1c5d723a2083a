package local

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/marmos91/dittostorage/pkg/workerpool"
	"golang.org/x/sys/unix"
)

// uploadJob streams the data channel into a reserved temporary file next to
// the target. Nothing becomes visible until Finish renames it into place.
type uploadJob struct {
	p      *Provider
	root   *root
	ctx    *provider.AuthContext
	method string

	target string
	name   string
	keys   []string

	// update jobs replace an existing file; oldETag ("" to ignore) must
	// still match when the upload is committed.
	update         bool
	oldETag        string
	allowOverwrite bool
	size           int64

	// The temporary file is addressed relative to dir so it can still be
	// committed or removed after its folder is moved.
	data    io.ReadCloser
	dir     *os.File
	tmpName string
	tmp     *os.File

	copied  chan struct{}
	written int64
	copyErr error

	mu        sync.Mutex
	claimed   bool
	cancelled bool
	cleanup   sync.Once
}

var _ provider.UploadJob = (*uploadJob)(nil)

func (p *Provider) CreateFile(parentID, name string, size int64, contentType string, allowOverwrite bool,
	data io.ReadCloser, keys []string, ctx *provider.AuthContext) *future.Future[provider.UploadJob] {
	const method = "CreateFile()"
	return submit(p, func() (provider.UploadJob, error) {
		name, err := sanitize(method, name)
		if err != nil {
			return nil, err
		}
		r, err := p.resolve(method, parentID)
		if err != nil {
			return nil, err
		}
		target := filepath.Join(parentID, name)

		release := p.locks.Acquire(parentID, target)
		defer release()

		if err := p.checkLive(ctx.Ctx(), method, parentID); err != nil {
			return nil, err
		}
		if err := p.requireFolder(method, parentID); err != nil {
			return nil, err
		}
		if info, err := os.Lstat(target); err == nil {
			if !allowOverwrite || info.IsDir() {
				return nil, provider.Exists(target, name, "%s: item with name %q exists already", method, name)
			}
		}

		// The content type is detected from the data when requested, so the
		// caller's hint is only logged.
		logger.Debug("%s: %s (%s, %d bytes)", method, target, contentType, size)

		job := &uploadJob{
			p: p, root: r, ctx: ctx, method: "FinishUpload()",
			target: target, name: name, keys: keys,
			allowOverwrite: allowOverwrite, size: size,
		}
		if err := job.start(parentID, data); err != nil {
			return nil, err
		}
		return job, nil
	})
}

func (p *Provider) Update(itemID string, size int64, oldETag string, data io.ReadCloser,
	keys []string, ctx *provider.AuthContext) *future.Future[provider.UploadJob] {
	const method = "Update()"
	return submit(p, func() (provider.UploadJob, error) {
		r, err := p.resolve(method, itemID)
		if err != nil {
			return nil, err
		}

		release := p.locks.Acquire(itemID)
		defer release()

		if err := p.checkLive(ctx.Ctx(), method, itemID); err != nil {
			return nil, err
		}
		info, err := os.Lstat(itemID)
		if err != nil {
			return nil, translate(method, err, itemID)
		}
		if !info.Mode().IsRegular() {
			return nil, provider.Logic("%s: %s is not a file", method, itemID)
		}
		if err := checkETag(method, itemID, etagOf(info), oldETag); err != nil {
			return nil, err
		}

		job := &uploadJob{
			p: p, root: r, ctx: ctx, method: "FinishUpload()",
			target: itemID, name: filepath.Base(itemID), keys: keys,
			update: true, oldETag: oldETag, size: size,
		}
		if err := job.start(filepath.Dir(itemID), data); err != nil {
			return nil, err
		}
		return job, nil
	})
}

// checkETag compares the expected change token with the current one. An
// empty expectation means the caller does not care.
func checkETag(method, itemID, current, expected string) error {
	policy := provider.ConflictError
	if expected == "" {
		policy = provider.ConflictIgnore
	}
	if policy == provider.ConflictError && current != expected {
		return provider.Conflict("%s: ETag mismatch for %s", method, itemID)
	}
	return nil
}

// start creates the temporary file in dir and begins copying data into it.
func (j *uploadJob) start(dir string, data io.ReadCloser) error {
	d, err := os.Open(dir)
	if err != nil {
		return translate(j.method, err, dir)
	}
	j.tmpName = tempName()
	fd, err := unix.Openat(int(d.Fd()), j.tmpName, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY|unix.O_CLOEXEC, 0o644)
	if err != nil {
		_ = d.Close()
		return translate(j.method, &os.PathError{Op: "open", Path: filepath.Join(dir, j.tmpName), Err: err}, dir)
	}
	j.dir = d
	j.tmp = os.NewFile(uintptr(fd), filepath.Join(dir, j.tmpName))
	j.data = data
	j.copied = make(chan struct{})

	go func() {
		j.written, j.copyErr = io.Copy(j.tmp, j.data)
		close(j.copied)

		j.mu.Lock()
		cancelled := j.cancelled
		j.mu.Unlock()
		if cancelled {
			j.discard()
		}
	}()
	return nil
}

// discard releases the channel and removes the temporary file. It runs at
// most once.
func (j *uploadJob) discard() {
	j.cleanup.Do(func() {
		_ = j.data.Close()
		_ = j.tmp.Close()
		if err := unix.Unlinkat(j.dirFd(), j.tmpName, 0); err != nil {
			logger.Warn("remove upload file %s: %v", j.tmp.Name(), err)
		}
		_ = j.dir.Close()
	})
}

func (j *uploadJob) dirFd() int { return int(j.dir.Fd()) }

// renameTo moves the temporary file over target, replacing it.
func (j *uploadJob) renameTo(target string) error {
	if err := unix.Renameat(j.dirFd(), j.tmpName, unix.AT_FDCWD, target); err != nil {
		return &os.LinkError{Op: "rename", Old: j.tmp.Name(), New: target, Err: err}
	}
	return nil
}

func (j *uploadJob) Finish() *future.Future[provider.Item] {
	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return future.Failed[provider.Item](provider.Cancelled("%s: upload was cancelled", j.method))
	}
	if j.claimed {
		j.mu.Unlock()
		return future.Failed[provider.Item](provider.Logic("%s: upload is already finishing", j.method))
	}
	j.claimed = true
	j.mu.Unlock()

	// Waiting for the sender must not occupy a worker.
	return future.Go(func() (provider.Item, error) {
		select {
		case <-j.copied:
		case <-j.ctx.Ctx().Done():
			j.discard()
			return provider.Item{}, provider.Cancelled("%s: %v", j.method, j.ctx.Ctx().Err())
		}
		return workerpool.Submit(j.p.pool, j.commit).Get()
	})
}

func (j *uploadJob) commit() (item provider.Item, err error) {
	committed := false
	defer func() {
		if !committed {
			j.discard()
		}
	}()

	if j.copyErr != nil {
		return provider.Item{}, translate(j.method, j.copyErr, j.target)
	}
	if j.size >= 0 && j.written != j.size {
		return provider.Item{}, provider.Logic("%s: upload of %s: expected %d bytes, received %d",
			j.method, j.target, j.size, j.written)
	}
	if err := j.tmp.Sync(); err != nil {
		return provider.Item{}, translate(j.method, err, j.target)
	}

	parent := filepath.Dir(j.target)
	release := j.p.locks.Acquire(parent, j.target)
	defer release()

	if err := j.p.checkLive(j.ctx.Ctx(), j.method, j.target); err != nil {
		return provider.Item{}, err
	}

	if j.update {
		current, err := currentETag(j.method, j.target)
		if err != nil {
			return provider.Item{}, err
		}
		if err := checkETag(j.method, j.target, current, j.oldETag); err != nil {
			return provider.Item{}, err
		}
		err = j.renameTo(j.target)
		if err != nil {
			return provider.Item{}, translate(j.method, err, j.target)
		}
	} else {
		if j.allowOverwrite {
			if info, err := os.Lstat(j.target); err == nil && info.IsDir() {
				return provider.Item{}, provider.Exists(j.target, j.name, "%s: folder %q exists already", j.method, j.name)
			}
			err = j.renameTo(j.target)
		} else {
			err = renameNoReplaceAt(j.dirFd(), j.tmpName, j.target)
		}
		if err != nil {
			if isErrno(err, unix.EEXIST) {
				return provider.Item{}, provider.Exists(j.target, j.name, "%s: item with name %q exists already", j.method, j.name)
			}
			return provider.Item{}, translate(j.method, err, j.target)
		}
		if err := j.p.tombstones.Clear(j.ctx.Ctx(), j.target); err != nil {
			logger.Warn("%s: clear tombstone %s: %v", j.method, j.target, err)
		}
	}

	committed = true
	_ = j.data.Close()
	_ = j.tmp.Close()
	_ = j.dir.Close()

	logger.Debug("%s: committed %s (%d bytes)", j.method, j.target, j.written)
	return j.p.makeItem(j.method, j.root, j.target, j.keys)
}

func (j *uploadJob) Cancel() error {
	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return nil
	}
	j.cancelled = true
	claimed := j.claimed
	j.mu.Unlock()

	if claimed {
		// A commit in progress owns the temporary file; closing the channel
		// makes it fail if it has not started yet.
		_ = j.data.Close()
		return nil
	}

	_ = j.data.Close()
	select {
	case <-j.copied:
		j.discard()
	default:
		// The copy goroutine discards once it observes the closed channel.
	}
	return nil
}
