package dbus

import (
	"errors"
	"os"
	"path/filepath"

	godbus "github.com/godbus/dbus/v5"
	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/dispatch"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/jobs"
	"github.com/marmos91/dittostorage/pkg/provider"
)

// busObject carries the exported methods. godbus exports every exported
// method whose last result is *godbus.Error, so helpers stay unexported.
type busObject struct {
	a *Adapter
}

// call submits one request and blocks until its reply.
func (o *busObject) call(sender godbus.Sender, method string, cb dispatch.Callback) ([]any, *godbus.Error) {
	a := o.a
	if !a.gate.Allow(string(sender)) {
		a.metrics.RecordRejected("rate_limited")
		logger.Debug("%s from %s rejected: rate limited", method, sender)
		return nil, godbus.NewError(errLimitsExceeded, []any{method + ": too many requests"})
	}

	replies := make(chan dispatch.Reply, 1)
	a.dispatcher.Submit(dispatch.Request{
		Sender:  string(sender),
		Method:  method,
		Call:    cb,
		Respond: func(r dispatch.Reply) { replies <- r },
	})

	r := <-replies
	if r.Err != nil {
		return nil, toBusError(r.Err)
	}
	return r.Body, nil
}

// replyOf wraps a provider future into a reply body future.
func replyOf[T any](f *future.Future[T], conv func(T) []any) *future.Future[[]any] {
	return future.Map(f, func(v T) ([]any, error) {
		return conv(v), nil
	})
}

func itemBody(item provider.Item) []any { return []any{toWireItem(item)} }

func itemsBody(items []provider.Item) []any { return []any{toWireItems(items)} }

func (o *busObject) Roots(sender godbus.Sender) ([]WireItem, *godbus.Error) {
	body, err := o.call(sender, "Roots", func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		return replyOf(o.a.provider.Roots(o.a.cfg.MetadataKeys, ctx), itemsBody), nil
	})
	if err != nil {
		return nil, err
	}
	return body[0].([]WireItem), nil
}

func (o *busObject) List(sender godbus.Sender, itemID, pageToken string) ([]WireItem, string, *godbus.Error) {
	body, err := o.call(sender, "List", func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		f := o.a.provider.List(itemID, pageToken, o.a.cfg.MetadataKeys, ctx)
		return replyOf(f, func(r provider.ListResult) []any {
			return []any{toWireItems(r.Items), r.NextToken}
		}), nil
	})
	if err != nil {
		return nil, "", err
	}
	return body[0].([]WireItem), body[1].(string), nil
}

func (o *busObject) Lookup(sender godbus.Sender, parentID, name string) ([]WireItem, *godbus.Error) {
	body, err := o.call(sender, "Lookup", func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		return replyOf(o.a.provider.Lookup(parentID, name, o.a.cfg.MetadataKeys, ctx), itemsBody), nil
	})
	if err != nil {
		return nil, err
	}
	return body[0].([]WireItem), nil
}

func (o *busObject) Metadata(sender godbus.Sender, itemID string) (WireItem, *godbus.Error) {
	return o.itemCall(sender, "Metadata", func(ctx *provider.AuthContext) *future.Future[provider.Item] {
		return o.a.provider.Metadata(itemID, o.a.cfg.MetadataKeys, ctx)
	})
}

func (o *busObject) CreateFolder(sender godbus.Sender, parentID, name string) (WireItem, *godbus.Error) {
	return o.itemCall(sender, "CreateFolder", func(ctx *provider.AuthContext) *future.Future[provider.Item] {
		return o.a.provider.CreateFolder(parentID, name, o.a.cfg.MetadataKeys, ctx)
	})
}

func (o *busObject) Move(sender godbus.Sender, itemID, newParentID, newName string) (WireItem, *godbus.Error) {
	return o.itemCall(sender, "Move", func(ctx *provider.AuthContext) *future.Future[provider.Item] {
		return o.a.provider.Move(itemID, newParentID, newName, o.a.cfg.MetadataKeys, ctx)
	})
}

func (o *busObject) Copy(sender godbus.Sender, itemID, newParentID, newName string) (WireItem, *godbus.Error) {
	return o.itemCall(sender, "Copy", func(ctx *provider.AuthContext) *future.Future[provider.Item] {
		return o.a.provider.Copy(itemID, newParentID, newName, o.a.cfg.MetadataKeys, ctx)
	})
}

func (o *busObject) Delete(sender godbus.Sender, itemID string) *godbus.Error {
	_, err := o.call(sender, "Delete", func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		return replyOf(o.a.provider.Delete(itemID, ctx), func(struct{}) []any { return nil }), nil
	})
	return err
}

func (o *busObject) itemCall(sender godbus.Sender, method string,
	op func(ctx *provider.AuthContext) *future.Future[provider.Item]) (WireItem, *godbus.Error) {
	body, err := o.call(sender, method, func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		return replyOf(op(ctx), itemBody), nil
	})
	if err != nil {
		return WireItem{}, err
	}
	return body[0].(WireItem), nil
}

// CreateFile starts an upload of a new file fed from fd and returns the
// upload token. size is provider.UnknownSize when the caller cannot tell.
func (o *busObject) CreateFile(sender godbus.Sender, parentID, name string, size int64,
	contentType string, allowOverwrite bool, fd godbus.UnixFD) (string, *godbus.Error) {
	const method = "CreateFile"
	return o.startTransfer(sender, method, fd, jobs.KindUpload, filepath.Join(parentID, name),
		func(ctx *provider.AuthContext, data *os.File) *future.Future[jobs.Canceller] {
			f := o.a.provider.CreateFile(parentID, name, size, contentType, allowOverwrite, data, o.a.cfg.MetadataKeys, ctx)
			return future.Map(f, func(job provider.UploadJob) (jobs.Canceller, error) { return job, nil })
		})
}

// Update starts an upload replacing itemID. An empty oldETag skips the
// conflict check.
func (o *busObject) Update(sender godbus.Sender, itemID string, size int64, oldETag string,
	fd godbus.UnixFD) (string, *godbus.Error) {
	return o.startTransfer(sender, "Update", fd, jobs.KindUpload, itemID,
		func(ctx *provider.AuthContext, data *os.File) *future.Future[jobs.Canceller] {
			f := o.a.provider.Update(itemID, size, oldETag, data, o.a.cfg.MetadataKeys, ctx)
			return future.Map(f, func(job provider.UploadJob) (jobs.Canceller, error) { return job, nil })
		})
}

// Download starts writing itemID into fd. A non-empty matchETag makes the
// download fail with a conflict if the content changed.
func (o *busObject) Download(sender godbus.Sender, itemID, matchETag string, fd godbus.UnixFD) (string, *godbus.Error) {
	return o.startTransfer(sender, "Download", fd, jobs.KindDownload, itemID,
		func(ctx *provider.AuthContext, data *os.File) *future.Future[jobs.Canceller] {
			f := o.a.provider.Download(itemID, matchETag, data, ctx)
			return future.Map(f, func(job provider.DownloadJob) (jobs.Canceller, error) { return job, nil })
		})
}

func (o *busObject) startTransfer(sender godbus.Sender, method string, fd godbus.UnixFD, kind jobs.Kind, itemID string,
	start func(ctx *provider.AuthContext, data *os.File) *future.Future[jobs.Canceller]) (string, *godbus.Error) {
	data, ferr := openChannel(fd, method)
	if ferr != nil {
		return "", toBusError(dispatch.MarshalError(provider.InvalidArgument("%s(): bad file descriptor: %v", method, ferr)))
	}

	owner := string(sender)
	body, err := o.call(sender, method, func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		return replyOf(start(ctx, data), func(job jobs.Canceller) []any {
			pj := o.a.jobs.Add(owner, kind, itemID, job)
			o.a.metrics.SetPendingJobs(o.a.jobs.Len())
			return []any{pj.Token}
		}), nil
	})
	if err != nil {
		// The provider never took the channel.
		_ = data.Close()
		return "", err
	}
	return body[0].(string), nil
}

// claim removes a job from the registry for finishing.
func (o *busObject) claim(owner, method, token string, kind jobs.Kind) (*jobs.PendingJob, error) {
	pj, err := o.a.jobs.Finish(owner, token, kind)
	if err != nil {
		return nil, provider.Logic("%s(): no such %s job: %s", method, kind, token).Wrap(err)
	}
	o.a.metrics.SetPendingJobs(o.a.jobs.Len())
	return pj, nil
}

// settle records the outcome of a finished transfer.
func (o *busObject) settle(pj *jobs.PendingJob, err error) {
	pj.MarkDone()
	outcome := "finished"
	switch {
	case provider.IsKind(err, provider.KindCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "failed"
	}
	o.a.metrics.RecordTransfer(pj.Kind.String(), outcome)
	o.a.dispatcher.Touch()
}

func (o *busObject) FinishUpload(sender godbus.Sender, token string) (WireItem, *godbus.Error) {
	const method = "FinishUpload"
	body, err := o.call(sender, method, func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		pj, err := o.claim(string(sender), method, token, jobs.KindUpload)
		if err != nil {
			return nil, err
		}
		job := pj.Job.(provider.UploadJob)
		return future.Go(func() ([]any, error) {
			item, err := job.Finish().Get()
			o.settle(pj, err)
			if err != nil {
				return nil, err
			}
			return itemBody(item), nil
		}), nil
	})
	if err != nil {
		return WireItem{}, err
	}
	return body[0].(WireItem), nil
}

func (o *busObject) FinishDownload(sender godbus.Sender, token string) *godbus.Error {
	const method = "FinishDownload"
	_, err := o.call(sender, method, func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		pj, err := o.claim(string(sender), method, token, jobs.KindDownload)
		if err != nil {
			return nil, err
		}
		job := pj.Job.(provider.DownloadJob)
		return future.Go(func() ([]any, error) {
			_, err := job.Finish().Get()
			o.settle(pj, err)
			return nil, err
		}), nil
	})
	return err
}

func (o *busObject) CancelUpload(sender godbus.Sender, token string) *godbus.Error {
	return o.cancel(sender, "CancelUpload", token, jobs.KindUpload)
}

func (o *busObject) CancelDownload(sender godbus.Sender, token string) *godbus.Error {
	return o.cancel(sender, "CancelDownload", token, jobs.KindDownload)
}

func (o *busObject) cancel(sender godbus.Sender, method, token string, kind jobs.Kind) *godbus.Error {
	_, err := o.call(sender, method, func(ctx *provider.AuthContext) (*future.Future[[]any], error) {
		if err := o.a.jobs.Cancel(string(sender), token, kind); err != nil {
			if errors.Is(err, jobs.ErrNoSuchJob) {
				return nil, provider.Logic("%s(): no such %s job: %s", method, kind, token).Wrap(err)
			}
			return nil, err
		}
		o.a.metrics.SetPendingJobs(o.a.jobs.Len())
		o.a.metrics.RecordTransfer(kind.String(), "cancelled")
		return future.Ready[[]any](nil), nil
	})
	return err
}
