// ABOUTME: Matrix implementation of the chat transport using mautrix.
// ABOUTME: Streams text messages from allowed rooms and sends threaded HTML replies.

package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"
)

// ErrAlreadyReading is yielded when ReadPrompts is consumed concurrently.
var ErrAlreadyReading = errors.New("prompts are already being read")

// MatrixConfig configures a MatrixTransport.
type MatrixConfig struct {
	Homeserver   string
	UserID       string
	Username     string
	Password     string
	AccessToken  string
	AllowedRooms []string
}

// MatrixTransport is a Transport over a Matrix homeserver.
type MatrixTransport struct {
	client       *mautrix.Client
	cfg          MatrixConfig
	allowedRooms []string
	logger       *slog.Logger

	reading atomic.Bool

	mu      sync.Mutex
	sink    chan<- Prompt
	sinkCtx context.Context
}

// NewMatrixTransport creates the client and registers the sync handlers.
// Call Login before reading when no access token is configured.
func NewMatrixTransport(cfg MatrixConfig, logger *slog.Logger) (*MatrixTransport, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	t := &MatrixTransport{
		client:       client,
		cfg:          cfg,
		allowedRooms: cfg.AllowedRooms,
		logger:       logger.With("component", "matrix"),
	}

	syncer, ok := client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, fmt.Errorf("unexpected syncer type: %T", client.Syncer)
	}
	// Skip the backlog delivered by the first sync.
	syncer.OnSync(client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, t.handleMessageEvent)
	return t, nil
}

// Login obtains an access token with the configured password. It is a
// no-op when an access token is already set.
func (t *MatrixTransport) Login(ctx context.Context) error {
	if t.client.AccessToken != "" {
		return nil
	}
	if t.cfg.Password == "" {
		return errors.New("matrix requires an access token or a password")
	}

	user := t.cfg.Username
	if user == "" {
		user = t.cfg.UserID
	}
	resp, err := t.client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: user,
		},
		Password:                 t.cfg.Password,
		InitialDeviceDisplayName: "coven-librarian",
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}
	t.logger.Info("logged in", "user_id", resp.UserID.String(), "device_id", resp.DeviceID.String())
	return nil
}

// ReadPrompts syncs with the homeserver and yields prompts as they arrive.
func (t *MatrixTransport) ReadPrompts(ctx context.Context, bufferSize int) iter.Seq2[Prompt, error] {
	return func(yield func(Prompt, error) bool) {
		if !t.reading.CompareAndSwap(false, true) {
			yield(Prompt{}, ErrAlreadyReading)
			return
		}
		defer t.reading.Store(false)

		ctx, cancel := context.WithCancel(ctx)
		prompts := make(chan Prompt, max(bufferSize, 1))
		t.setSink(ctx, prompts)

		syncErr := make(chan error, 1)
		syncDone := make(chan struct{})
		go func() {
			defer close(syncDone)
			syncErr <- t.client.SyncWithContext(ctx)
		}()
		defer func() {
			cancel()
			<-syncDone
			t.setSink(nil, nil)
		}()

		t.logger.Info("syncing", "homeserver", t.cfg.Homeserver, "user_id", t.cfg.UserID)
		for {
			select {
			case p := <-prompts:
				if !yield(p, nil) {
					return
				}
			case err := <-syncErr:
				if ctx.Err() != nil {
					return
				}
				if err == nil {
					err = errors.New("sync stopped")
				}
				yield(Prompt{}, fmt.Errorf("matrix sync failed: %w", err))
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *MatrixTransport) setSink(ctx context.Context, sink chan<- Prompt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
	t.sinkCtx = ctx
}

// handleMessageEvent forwards accepted messages to the active reader.
func (t *MatrixTransport) handleMessageEvent(_ context.Context, evt *event.Event) {
	p, ok := t.promptFromEvent(evt)
	if !ok {
		return
	}

	t.mu.Lock()
	sink, sinkCtx := t.sink, t.sinkCtx
	t.mu.Unlock()
	if sink == nil {
		return
	}

	t.logger.Info("received message",
		"room", p.ChatID,
		"sender", p.Sender,
		"reply_to", p.ReplyToMessageID,
	)
	select {
	case sink <- p:
	case <-sinkCtx.Done():
	}
}

// promptFromEvent converts a text message from an allowed room into a Prompt.
func (t *MatrixTransport) promptFromEvent(evt *event.Event) (Prompt, bool) {
	if evt.Sender == t.client.UserID {
		return Prompt{}, false
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return Prompt{}, false
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return Prompt{}, false
	}
	roomID := evt.RoomID.String()
	if len(t.allowedRooms) > 0 && !slices.Contains(t.allowedRooms, roomID) {
		t.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return Prompt{}, false
	}

	replyTo := content.RelatesTo.GetReplyTo()
	text := content.Body
	if replyTo != "" {
		text = stripReplyFallback(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}, false
	}

	return Prompt{
		ChatID:           roomID,
		MessageID:        evt.ID.String(),
		Sender:           evt.Sender.String(),
		Text:             text,
		ReplyToMessageID: replyTo.String(),
	}, true
}

// SendResponse posts an HTML message, threaded as a reply when replyTo is set.
func (t *MatrixTransport) SendResponse(ctx context.Context, chatID, html, replyTo string) (string, error) {
	content := &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          format.HTMLToText(html),
		Format:        event.FormatHTML,
		FormattedBody: html,
	}
	if replyTo != "" {
		content.RelatesTo = (&event.RelatesTo{}).SetReplyTo(id.EventID(replyTo))
	}

	resp, err := t.client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, content)
	if err != nil {
		return "", fmt.Errorf("sending to %s: %w", chatID, err)
	}
	return resp.EventID.String(), nil
}

// stripReplyFallback drops the quoted "> <@user> ..." lines clients prepend
// to replies.
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	for len(lines) > 0 && strings.HasPrefix(lines[0], ">") {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}
