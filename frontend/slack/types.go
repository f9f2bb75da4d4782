// Package slack implements livia.Frontend over the Slack Web API, plus the
// Socket Mode transport that feeds events into the engine.
package slack

import (
	jsoniter "github.com/json-iterator/go"

	livia "github.com/lucastzuka/livia"
)

// Event decode sits on the hot path of every thread rebuild.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiEnvelope is the part every Web API response shares. Result fields live
// at the top level next to it, so responses are decoded twice: once for the
// envelope, once for the method's own shape.
type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type postMessageResponse struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

type repliesResponse struct {
	Messages []livia.PlatformMessage `json:"messages"`
	HasMore  bool                    `json:"has_more"`
}

type userInfoResponse struct {
	User struct {
		RealName string `json:"real_name"`
		Profile  struct {
			DisplayName string `json:"display_name"`
			RealName    string `json:"real_name"`
		} `json:"profile"`
	} `json:"user"`
}

type channelInfoResponse struct {
	Channel livia.ChannelInfo `json:"channel"`
}

type authTestResponse struct {
	UserID string `json:"user_id"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
}

type uploadURLResponse struct {
	UploadURL string `json:"upload_url"`
	FileID    string `json:"file_id"`
}

type connectionsOpenResponse struct {
	URL string `json:"url"`
}

// --- Socket Mode wire types ---

// socketEnvelope is one frame read off the Socket Mode websocket.
type socketEnvelope struct {
	EnvelopeID             string              `json:"envelope_id"`
	Type                   string              `json:"type"`
	Payload                jsoniter.RawMessage `json:"payload"`
	AcceptsResponsePayload bool                `json:"accepts_response_payload"`
	RetryAttempt           int                 `json:"retry_attempt"`
	Reason                 string              `json:"reason"`
}

// socketAck acknowledges receipt of an envelope. Unacked envelopes are
// redelivered, which the engine's dedupe would then drop.
type socketAck struct {
	EnvelopeID string `json:"envelope_id"`
}

// eventsPayload is the payload of a type=events_api envelope. The inner
// event decodes straight into livia.Event; the tags match Slack's wire
// names.
type eventsPayload struct {
	TeamID  string      `json:"team_id"`
	EventID string      `json:"event_id"`
	Event   livia.Event `json:"event"`
}
