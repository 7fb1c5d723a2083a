package local

import (
	"io"
	"os"
	"sync"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/provider"
)

// downloadJob copies an opened file to the data channel. The file is opened
// while the item lock is held, so the bytes sent are those of the version
// whose ETag was checked even if the item is replaced later.
type downloadJob struct {
	itemID string
	file   *os.File
	data   io.WriteCloser

	copied  chan struct{}
	sent    int64
	copyErr error

	mu        sync.Mutex
	cancelled bool
}

var _ provider.DownloadJob = (*downloadJob)(nil)

func (p *Provider) Download(itemID, matchETag string, data io.WriteCloser, ctx *provider.AuthContext) *future.Future[provider.DownloadJob] {
	const method = "Download()"
	return submit(p, func() (provider.DownloadJob, error) {
		if _, err := p.resolve(method, itemID); err != nil {
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
		if err := checkETag(method, itemID, etagOf(info), matchETag); err != nil {
			return nil, err
		}

		f, err := os.Open(itemID)
		if err != nil {
			return nil, translate(method, err, itemID)
		}

		job := &downloadJob{itemID: itemID, file: f, data: data, copied: make(chan struct{})}
		go job.run()
		return job, nil
	})
}

func (j *downloadJob) run() {
	j.sent, j.copyErr = io.Copy(j.data, j.file)
	_ = j.file.Close()
	if err := j.data.Close(); err != nil && j.copyErr == nil {
		j.copyErr = err
	}
	close(j.copied)
	logger.Debug("Download(): sent %d bytes of %s", j.sent, j.itemID)
}

func (j *downloadJob) Finish() *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		<-j.copied

		j.mu.Lock()
		cancelled := j.cancelled
		j.mu.Unlock()
		if cancelled {
			return struct{}{}, provider.Cancelled("FinishDownload(): download of %s was cancelled", j.itemID)
		}
		if j.copyErr != nil {
			return struct{}{}, translate("FinishDownload()", j.copyErr, j.itemID)
		}
		return struct{}{}, nil
	})
}

func (j *downloadJob) Cancel() error {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()

	// Closing the channel unblocks the copy; run closes the file.
	_ = j.data.Close()
	return nil
}
