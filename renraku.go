// Package renraku is the public API for embedding the session key store
// and sync reconciler in a host application.
//
// Host applications own the upstream protocol connection; renraku owns
// durability. The host publishes snapshot and incremental events and
// consumes notifications:
//
//	app, err := renraku.New(
//	    renraku.WithSessionID("tenant-1"),
//	    renraku.WithLogger(logger),
//	    renraku.WithDirectory(myDirectory{}),
//	)
//	if err != nil { ... }
//	if err := app.Start(ctx); err != nil { ... }
//	defer app.Close(ctx)
//	app.PublishHistorySet(ctx, snapshot)
//
// The import graph enforces a strict no-cycle rule: renraku (root)
// imports internal/*, but internal/* never imports renraku (root).
// Public types (Contact, Chat, Notification) are standalone structs with
// no internal imports; conversion helpers live here because this is the
// only file that sees both sides of the boundary.
package renraku

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ashita-ai/renraku/internal/config"
	"github.com/ashita-ai/renraku/internal/ctxutil"
	"github.com/ashita-ai/renraku/internal/events"
	"github.com/ashita-ai/renraku/internal/keystore"
	"github.com/ashita-ai/renraku/internal/notify"
	"github.com/ashita-ai/renraku/internal/ratelimit"
	"github.com/ashita-ai/renraku/internal/reconcile"
	"github.com/ashita-ai/renraku/internal/storage"
	"github.com/ashita-ai/renraku/migrations"
)

// App is one tenant's store and reconciler lifecycle. Construct with
// New(), connect with Start(), release with Close().
type App struct {
	cfg    config.Config
	opts   resolvedOptions
	logger *slog.Logger

	mu       sync.Mutex
	started  bool
	db       *storage.DB
	store    *keystore.Store
	stream   *events.Stream
	broker   *notify.Broker
	contacts *reconcile.ContactHandler
	chats    *reconcile.ChatHandler
}

// New resolves configuration from the environment plus any overrides and
// returns an unstarted App.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Default()
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	if o.sessionID != "" {
		cfg.SessionID = o.sessionID
	}
	if o.countryCode != "" {
		cfg.CountryCode = o.countryCode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if o.directory == nil {
		o.directory = reconcile.NoDirectory{}
	}

	return &App{cfg: cfg, opts: o, logger: logger}, nil
}

// Start connects to the database, runs migrations, loads the tenant's
// credentials and registers the reconcilers on the event stream.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("renraku: already started")
	}

	db, err := storage.New(ctx, a.cfg.DatabaseURL, a.cfg.NotifyURL, a.logger)
	if err != nil {
		return err
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return err
	}
	for _, extra := range a.opts.extraMigrations {
		if err := db.RunMigrations(ctx, extra); err != nil {
			db.Close(ctx)
			return err
		}
	}

	store, err := keystore.New(ctx, a.cfg.SessionID, db, db, a.logger)
	if err != nil {
		db.Close(ctx)
		return err
	}
	if err := store.SaveCreds(ctx); err != nil {
		db.Close(ctx)
		return err
	}

	var brokerOpts []notify.Option
	if a.opts.forwardNotify {
		brokerOpts = append(brokerOpts, notify.WithForwarder(db, storage.ChannelEvents))
	}
	broker := notify.NewBroker(a.logger, brokerOpts...)

	// Directory lookups are throttled so a large snapshot cannot hammer
	// the remote directory. The default no-op directory needs no limiter.
	directory := reconcile.Directory(reconcile.NoDirectory{})
	if _, noop := a.opts.directory.(reconcile.NoDirectory); !noop {
		directory = reconcile.Throttle(a.opts.directory,
			ratelimit.NewBucket(float64(a.cfg.DirectoryRPS), a.cfg.DirectoryBurst))
	}

	stream := events.NewStream(a.logger)
	contacts := reconcile.NewContactHandler(a.cfg.SessionID, db, directory,
		broker, stream, a.logger, a.cfg.CountryCode)
	contacts.Listen()
	chats := reconcile.NewChatHandler(a.cfg.SessionID, db, broker, stream, a.logger)
	chats.Listen()

	a.db = db
	a.store = store
	a.stream = stream
	a.broker = broker
	a.contacts = contacts
	a.chats = chats
	a.started = true

	a.logger.Info("renraku started",
		"version", a.opts.version, "session_id", a.cfg.SessionID)
	return nil
}

// Close flushes credentials and releases the database connections. The
// App cannot be restarted.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.contacts.Unlisten()
	a.chats.Unlisten()

	err := a.store.SaveCreds(ctx)
	a.db.Close(ctx)
	a.started = false
	return err
}

// Run is a convenience wrapper: Start, block until ctx is cancelled, Close.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Close(context.WithoutCancel(ctx))
}

// SessionID returns the tenant this App serves.
func (a *App) SessionID() string { return a.cfg.SessionID }

// GetKeys reads a batch of session keys in one category. See the
// keystore semantics: individual misses are absent from the result; a
// Bad MAC integrity signal wipes the tenant and fails the call.
func (a *App) GetKeys(ctx context.Context, category string, ids []string) (map[string]any, error) {
	return a.store.GetKeys(ctx, category, ids)
}

// SetKeys applies a category -> id -> value patch; nil values delete.
func (a *App) SetKeys(ctx context.Context, data map[string]map[string]any) error {
	return a.store.SetKeys(ctx, data)
}

// SaveCreds persists the tenant's in-memory credentials.
func (a *App) SaveCreds(ctx context.Context) error {
	return a.store.SaveCreds(ctx)
}

// MarkChatRead resets a chat's unread count to zero.
func (a *App) MarkChatRead(ctx context.Context, jid string) error {
	return a.chats.MarkChatRead(ctx, jid)
}

// Wipe deletes every stored row for the tenant across all tables.
func (a *App) Wipe(ctx context.Context) error {
	_, err := a.db.WipeTenant(ctx, a.cfg.SessionID)
	return err
}

// PublishHistorySet feeds a snapshot batch onto the event stream.
func (a *App) PublishHistorySet(ctx context.Context, snap HistorySnapshot) {
	a.publish(ctx, events.HistorySetEvent, events.HistorySet{
		Contacts: toRawContacts(snap.Contacts),
		Chats:    toRawChats(snap.Chats),
	})
}

// PublishContactsUpsert feeds new contact records onto the event stream.
func (a *App) PublishContactsUpsert(ctx context.Context, contacts []Contact) {
	a.publish(ctx, events.ContactsUpsertEvent, toRawContacts(contacts))
}

// PublishContactsUpdate feeds incremental contact patches onto the event stream.
func (a *App) PublishContactsUpdate(ctx context.Context, updates []ContactUpdate) {
	patches := make([]events.ContactPatch, len(updates))
	for i, u := range updates {
		patches[i] = events.ContactPatch(u)
	}
	a.publish(ctx, events.ContactsUpdateEvent, patches)
}

// PublishChatsUpsert feeds new chat records onto the event stream.
func (a *App) PublishChatsUpsert(ctx context.Context, chats []Chat) {
	a.publish(ctx, events.ChatsUpsertEvent, toRawChats(chats))
}

// PublishChatsUpdate feeds incremental chat patches onto the event stream.
func (a *App) PublishChatsUpdate(ctx context.Context, updates []ChatUpdate) {
	patches := make([]events.ChatPatch, len(updates))
	for i, u := range updates {
		patches[i] = events.ChatPatch(u)
	}
	a.publish(ctx, events.ChatsUpdateEvent, patches)
}

func (a *App) publish(ctx context.Context, name events.Name, payload any) {
	ctx = ctxutil.WithSessionID(ctx, a.cfg.SessionID)
	a.stream.Emit(ctx, name, payload)
}

// Notifications subscribes to reconciler outcomes. The returned cancel
// function must be called when done; the channel closes after cancel.
func (a *App) Notifications() (<-chan Notification, func()) {
	src := a.broker.Subscribe()
	out := make(chan Notification, cap(src))
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case env, ok := <-src:
				if !ok {
					return
				}
				// The send must also honor cancel, or a consumer that
				// walks away from a full channel strands this goroutine.
				select {
				case out <- toPublicNotification(env):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			a.broker.Unsubscribe(src)
		})
	}
	return out, cancel
}

func toRawContacts(contacts []Contact) []events.RawContact {
	out := make([]events.RawContact, len(contacts))
	for i, c := range contacts {
		out[i] = events.RawContact(c)
	}
	return out
}

func toRawChats(chats []Chat) []events.RawChat {
	out := make([]events.RawChat, len(chats))
	for i, c := range chats {
		out[i] = events.RawChat(c)
	}
	return out
}

func toPublicNotification(env notify.Envelope) Notification {
	return Notification{
		ID:        env.ID,
		Event:     env.Event,
		SessionID: env.SessionID,
		Status:    NotificationStatus(env.Status),
		Message:   env.Message,
		Data:      env.Data,
	}
}
