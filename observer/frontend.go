package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	livia "github.com/lucastzuka/livia"
)

// ObservedFrontend wraps a livia.Frontend, recording a counter and duration
// histogram per platform method. The streaming presenter edits messages on
// every flush, so the platform path is as hot as the LLM path.
type ObservedFrontend struct {
	inner livia.Frontend
	inst  *Instruments
}

// WrapFrontend returns an instrumented frontend.
func WrapFrontend(inner livia.Frontend, inst *Instruments) *ObservedFrontend {
	return &ObservedFrontend{inner: inner, inst: inst}
}

var _ livia.Frontend = (*ObservedFrontend)(nil)

func (o *ObservedFrontend) PostMessage(ctx context.Context, channel, threadTS, text string) (string, error) {
	start := time.Now()
	ts, err := o.inner.PostMessage(ctx, channel, threadTS, text)
	o.record(ctx, "post_message", start, err)
	return ts, err
}

func (o *ObservedFrontend) PostFormatted(ctx context.Context, channel, threadTS, text string) (string, error) {
	start := time.Now()
	ts, err := o.inner.PostFormatted(ctx, channel, threadTS, text)
	o.record(ctx, "post_formatted", start, err)
	return ts, err
}

func (o *ObservedFrontend) EditMessage(ctx context.Context, channel, ts, text string) error {
	start := time.Now()
	err := o.inner.EditMessage(ctx, channel, ts, text)
	o.record(ctx, "edit_message", start, err)
	return err
}

func (o *ObservedFrontend) EditFormatted(ctx context.Context, channel, ts, text string) error {
	start := time.Now()
	err := o.inner.EditFormatted(ctx, channel, ts, text)
	o.record(ctx, "edit_formatted", start, err)
	return err
}

func (o *ObservedFrontend) DeleteMessage(ctx context.Context, channel, ts string) error {
	start := time.Now()
	err := o.inner.DeleteMessage(ctx, channel, ts)
	o.record(ctx, "delete_message", start, err)
	return err
}

func (o *ObservedFrontend) UploadFile(ctx context.Context, channel, threadTS, filename, title string, data []byte) error {
	start := time.Now()
	err := o.inner.UploadFile(ctx, channel, threadTS, filename, title, data)
	o.record(ctx, "upload_file", start, err)
	return err
}

func (o *ObservedFrontend) ThreadReplies(ctx context.Context, channel, threadTS string, limit int) ([]livia.PlatformMessage, error) {
	start := time.Now()
	msgs, err := o.inner.ThreadReplies(ctx, channel, threadTS, limit)
	o.record(ctx, "thread_replies", start, err)
	return msgs, err
}

func (o *ObservedFrontend) UserInfo(ctx context.Context, userID string) (livia.UserProfile, error) {
	start := time.Now()
	profile, err := o.inner.UserInfo(ctx, userID)
	o.record(ctx, "user_info", start, err)
	return profile, err
}

func (o *ObservedFrontend) ChannelInfo(ctx context.Context, channelID string) (livia.ChannelInfo, error) {
	start := time.Now()
	info, err := o.inner.ChannelInfo(ctx, channelID)
	o.record(ctx, "channel_info", start, err)
	return info, err
}

func (o *ObservedFrontend) AuthTest(ctx context.Context) (string, error) {
	start := time.Now()
	id, err := o.inner.AuthTest(ctx)
	o.record(ctx, "auth_test", start, err)
	return id, err
}

func (o *ObservedFrontend) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	data, err := o.inner.DownloadFile(ctx, url)
	o.record(ctx, "download_file", start, err)
	return data, err
}

func (o *ObservedFrontend) record(ctx context.Context, method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.inst.PlatformCalls.Add(ctx, 1, metric.WithAttributes(
		AttrPlatformMethod.String(method),
		AttrStatus.String(status),
	))
	o.inst.PlatformDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		AttrPlatformMethod.String(method),
	))
}
