// Package matrix provides the Matrix messaging channel for Lugha.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Lugha/common/spec/inbound"
	"github.com/bdobrica/Lugha/internal/lugha/audio"
	"github.com/bdobrica/Lugha/internal/lugha/dispatch"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start. When AutoJoin is set, invites to any other
	// room are accepted as well.
	Rooms    []string
	AutoJoin bool
	// DB is an optional SQLite connection used to persist the sync token
	// (next_batch) across restarts. When nil, events that arrived before
	// startup are skipped instead of replayed.
	DB *sql.DB
	// HTTP overrides the transport (proxy, tests).
	HTTP *http.Client
}

// Enqueuer accepts a normalised event for asynchronous processing.
type Enqueuer func(evt *inbound.Event)

// Client wraps the mautrix client. It implements dispatch.Messenger and
// audio.MediaResolver.
type Client struct {
	client  *mautrix.Client
	config  *Config
	stopCh  chan struct{}
	enqueue Enqueuer
}

var (
	_ dispatch.Messenger  = (*Client)(nil)
	_ audio.MediaResolver = (*Client)(nil)
)

// New creates a new Matrix client. It does not contact the homeserver until
// Start is called.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	if config.HTTP != nil {
		client.Client = config.HTTP
	}

	c := &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
	}

	if config.DB != nil {
		client.Store = NewDBSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, skipping events from before startup")
	}

	return c, nil
}

// Start registers handlers, joins the configured rooms and begins syncing
// in the background with exponential back-off reconnection.
func (c *Client) Start(ctx context.Context, enqueue Enqueuer) error {
	c.enqueue = enqueue

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	if c.config.DB == nil {
		syncer.OnSync(c.client.DontProcessOldEvents)
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	if c.config.AutoJoin {
		syncer.OnEventType(event.StateMember, c.handleMembership)
	}

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			err := c.client.Sync()
			select {
			case <-c.stopCh:
				return
			default:
			}
			if err == nil {
				// Only a clean StopSync() ends Sync without an error.
				return
			}
			slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}()

	return nil
}

// Stop stops the Matrix client. It is safe to call more than once.
func (c *Client) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
	}
	close(c.stopCh)
	c.client.StopSync()
}

// Send posts a plain text message to a room.
func (c *Client) Send(ctx context.Context, roomID, text string) (dispatch.Delivery, error) {
	resp, err := c.client.SendText(ctx, id.RoomID(roomID), text)
	if err != nil {
		return dispatch.Delivery{}, fmt.Errorf("failed to send message: %w", err)
	}
	return dispatch.Delivery{MessageID: resp.EventID.String()}, nil
}

// ResolveMedia maps an mxc:// URI onto the authenticated media download
// endpoint of the homeserver.
func (c *Client) ResolveMedia(ctx context.Context, media inbound.Media) (*audio.Location, error) {
	uri, err := id.ParseContentURI(media.ID)
	if err != nil {
		return nil, failure.Terminal("matrix.media", err, audio.GuidanceUnavailable)
	}
	return &audio.Location{
		URL:      c.client.BuildClientURL("v1", "media", "download", uri.Homeserver, uri.FileID),
		Header:   http.Header{"Authorization": {"Bearer " + c.config.AccessToken}},
		MIMEType: media.MIMEType,
	}, nil
}

// UserID returns the client's own user ID.
func (c *Client) UserID() id.UserID {
	return id.UserID(c.config.UserID)
}

// handleMessage converts room messages from other users into inbound events.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.UserID() {
		return
	}
	in, ok := toEvent(evt)
	if !ok {
		return
	}
	if c.enqueue != nil {
		c.enqueue(in)
	}
}

// handleMembership accepts invites addressed to the bot. Registered only
// when AutoJoin is set.
func (c *Client) handleMembership(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != c.UserID().String() {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if err := c.joinRoom(ctx, evt.RoomID); err != nil {
		slog.Warn("Matrix: failed to accept invite", "room", evt.RoomID, "err", err)
		return
	}
	slog.Info("Matrix: joined room on invite", "room", evt.RoomID, "inviter", evt.Sender)
}

// joinRoom joins roomID, treating M_FORBIDDEN as already joined.
func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// M_FORBIDDEN is returned by homeservers when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

// toEvent normalises m.text and m.audio events. Users are keyed
// by Matrix ID; replies go to the room.
func toEvent(evt *event.Event) (*inbound.Event, bool) {
	msg := evt.Content.AsMessage()
	if msg == nil {
		return nil, false
	}

	in := &inbound.Event{
		ID:          evt.ID.String(),
		Channel:     inbound.ChannelMatrix,
		SenderID:    evt.Sender.String(),
		ReplyTo:     evt.RoomID.String(),
		DisplayName: localpart(evt.Sender),
		TS:          time.UnixMilli(evt.Timestamp).UTC(),
	}

	switch msg.MsgType {
	case event.MsgText:
		in.Type = inbound.TypeText
		in.Text = msg.Body
	case event.MsgAudio:
		if msg.URL == "" {
			// Encrypted attachments are not supported.
			return nil, false
		}
		in.Type = inbound.TypeAudio
		in.Media = &inbound.Media{ID: string(msg.URL), Voice: true}
		if msg.Info != nil {
			in.Media.MIMEType = msg.Info.MimeType
		}
	default:
		return nil, false
	}

	if in.Validate() != nil {
		return nil, false
	}
	return in, true
}

// localpart returns the user part of a Matrix ID, used as a display name.
func localpart(userID id.UserID) string {
	lp, _, err := userID.Parse()
	if err != nil {
		return ""
	}
	return lp
}
