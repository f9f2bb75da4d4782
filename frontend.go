package livia

import "context"

// Frontend abstracts the chat platform. frontend/slack implements it over
// the Slack Web API; tests use in-memory fakes.
//
// Plain variants pass text through unchanged; Formatted variants render
// standard Markdown into the platform's rich-text dialect first.
type Frontend interface {
	// PostMessage posts a new message, optionally inside a thread, and
	// returns the message ts for later editing.
	PostMessage(ctx context.Context, channel, threadTS, text string) (string, error)
	// PostFormatted is PostMessage with Markdown rendering.
	PostFormatted(ctx context.Context, channel, threadTS, text string) (string, error)
	// EditMessage replaces the text of an existing message.
	EditMessage(ctx context.Context, channel, ts, text string) error
	// EditFormatted is EditMessage with Markdown rendering.
	EditFormatted(ctx context.Context, channel, ts, text string) error
	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, channel, ts string) error
	// UploadFile uploads data as a file into a channel or thread.
	UploadFile(ctx context.Context, channel, threadTS, filename, title string, data []byte) error
	// ThreadReplies returns up to limit messages of a thread, oldest first.
	ThreadReplies(ctx context.Context, channel, threadTS string, limit int) ([]PlatformMessage, error)
	// UserInfo resolves a user id to display names.
	UserInfo(ctx context.Context, userID string) (UserProfile, error)
	// ChannelInfo resolves a channel id, reporting whether it is a DM.
	ChannelInfo(ctx context.Context, channelID string) (ChannelInfo, error)
	// AuthTest returns the bot's own user id.
	AuthTest(ctx context.Context) (string, error)
	// DownloadFile fetches a platform-private URL with the bot credential.
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}
