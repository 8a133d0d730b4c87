package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/materialmap/internal/catalog/basepath"
	"github.com/yungbote/materialmap/internal/catalog/config"
	"github.com/yungbote/materialmap/internal/catalog/fetch"
	"github.com/yungbote/materialmap/internal/catalog/fetchcache"
	"github.com/yungbote/materialmap/internal/catalog/loader"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/netstate"
	"github.com/yungbote/materialmap/internal/catalog/notify"
	"github.com/yungbote/materialmap/internal/catalog/persist"
	"github.com/yungbote/materialmap/internal/observability"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

const Version = "0.4.0"

type App struct {
	Log     *logger.Logger
	Cfg     *config.Config
	BaseURL string
	// Origin identifies this process on the update bus.
	Origin string

	Hub     *notify.Hub
	Monitor *netstate.Monitor
	Loader  *loader.Loader
	Worker  *persist.Worker

	rdb          *goredis.Client
	bus          notify.Bus
	otelShutdown func(context.Context) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the catalog from cfg. log may be nil, in which case one is
// built from cfg.Env.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if log == nil {
		l, err := logger.New(cfg.Env)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		log = l
	}

	baseURL, err := cfg.ResolveBaseURL()
	if err != nil {
		return nil, fmt.Errorf("resolve base url: %w", err)
	}
	a := &App{
		Log:     log,
		Cfg:     cfg,
		BaseURL: baseURL,
		Origin:  uuid.NewString(),
		Hub:     notify.NewHub(log),
	}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "materialmap",
		Environment: cfg.Env,
		Version:     Version,
	})

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	worker, err := persist.NewWorker(log, store)
	if err != nil {
		_ = store.Close()
		a.Close()
		return nil, err
	}
	a.Worker = worker

	versionURL, err := basepath.Join(baseURL, "dist", string(materials.ArtifactFull))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("version url: %w", err)
	}

	// The probe client is never gated on connectivity; it is what detects
	// that the network came back.
	probeClient := fetch.New(fetch.Options{
		Timeout:    cfg.Fetch.Timeout.Duration,
		MaxRetries: 1,
		Log:        log,
	})
	mon, err := netstate.New(netstate.Options{
		Log:        log,
		Initial:    true,
		Requester:  probeClient,
		VersionURL: versionURL,
		Versions:   store,
		Publisher:  a.Hub,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init monitor: %w", err)
	}
	a.Monitor = mon

	client := fetch.New(fetch.Options{
		Timeout:      cfg.Fetch.Timeout.Duration,
		MaxRetries:   cfg.Fetch.MaxRetries,
		BackoffBase:  cfg.Fetch.BackoffBase.Duration,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Connectivity: mon,
		Log:          log,
	})
	registry, err := fetchcache.New(log, client, baseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init fetch cache: %w", err)
	}

	ld, err := loader.New(loader.Config{
		Log:          log,
		Artifacts:    registry,
		Connectivity: mon,
		Publisher:    a.Hub,
		Persist:      worker,
		Versions:     store,
		Getter:       client,
		BaseURL:      baseURL,
		ProbeTimeout: cfg.Persist.ProbeTimeout.Duration,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init loader: %w", err)
	}
	a.Loader = ld

	if a.rdb == nil && cfg.Redis.Addr != "" {
		if a.rdb, err = openRedis(ctx, cfg.Redis.Addr); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.rdb != nil {
		bus, err := notify.NewRedisBus(log, a.rdb, cfg.Redis.Channel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init update bus: %w", err)
		}
		a.bus = bus
	}

	log.Info("catalog wired",
		"base_url", logger.RedactURL(baseURL),
		"persist", cfg.Persist.Driver,
		"update_bus", a.bus != nil,
	)
	return a, nil
}

// Start launches the connectivity probe and the update bus forwarder. It
// is a no-op when already started.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.bus != nil {
		if err := a.bus.StartForwarder(ctx, a.onBusMessage); err != nil {
			cancel()
			a.cancel = nil
			return fmt.Errorf("start update bus: %w", err)
		}
	}

	probeURL := a.Cfg.Monitor.ProbeURL
	if probeURL == "" {
		probeURL = a.BaseURL
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Monitor.RunProbe(ctx, probeURL, a.Cfg.Monitor.Interval.Duration)
	}()
	return nil
}

func (a *App) onBusMessage(msg notify.Message) {
	if msg.Origin == a.Origin {
		return
	}
	a.Loader.HandleUpdate(msg)
}

// Refresh reloads the dataset bypassing the cache and, when an update bus
// is configured, tells peers that their cached datasets are stale.
func (a *App) Refresh(ctx context.Context, opts loader.Options, v materials.Validators) (*materials.Dataset, error) {
	ds, err := a.Loader.Retry(ctx, opts)
	if err != nil {
		return nil, err
	}
	if a.bus != nil {
		msg := notify.Message{
			Type:         notify.MessageDataUpdated,
			LastModified: v.LastModified,
			ETag:         v.ETag,
			Origin:       a.Origin,
		}
		if err := a.bus.Publish(ctx, msg); err != nil {
			a.Log.Warn("announce update failed", "error", err)
		}
	}
	return ds, nil
}

// Watch reloads whenever a newer dataset is announced, locally by the
// monitor or by a peer on the bus, and hands every event to onEvent. It
// returns when ctx is done.
func (a *App) Watch(ctx context.Context, opts loader.Options, onEvent func(notify.Event)) {
	sub := a.Hub.Subscribe(32)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if onEvent != nil {
				onEvent(ev)
			}
			switch ev.Type {
			case notify.EventUpdateAvailable:
				if _, err := a.Refresh(ctx, opts, validatorsFrom(ev)); err != nil {
					a.Log.Warn("refresh after update failed", "error", err)
				}
			case notify.EventDataUpdated:
				if _, err := a.Loader.Load(ctx, opts); err != nil {
					a.Log.Warn("reload after peer update failed", "error", err)
				}
			}
		}
	}
}

func validatorsFrom(ev notify.Event) materials.Validators {
	m, _ := ev.Data.(map[string]any)
	lm, _ := m["lastModified"].(string)
	etag, _ := m["etag"].(string)
	return materials.Validators{LastModified: lm, ETag: etag}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.wg.Wait()
	if a.Monitor != nil {
		a.Monitor.Wait()
	}
	if a.Worker != nil {
		if err := a.Worker.Close(); err != nil {
			a.Log.Warn("close persistent store", "error", err)
		}
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
