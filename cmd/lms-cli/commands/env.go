package commands

import (
	"context"
	"fmt"
	"os"

	"snulms/lib/restyutil"
	"snulms/lib/scrapers/lms"
	"snulms/lib/sessionstore"
	"snulms/lib/telemetry"
	"snulms/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
)

const envKey = "lms-cli.env"

// env is everything a command needs, it is built once before any command runs.
type env struct {
	cfg    Config
	client *lms.Client
	store  sessionstore.SessionStore
}

func setEnv(ctx context.Context, value *env) context.Context {
	return context.WithValue(ctx, envKey, value)
}

func getEnv(ctx context.Context) *env {
	return ctx.Value(envKey).(*env)
}

func openStore(ctx context.Context, cfg SessionConfig) (sessionstore.SessionStore, error) {
	switch cfg.Driver {
	case "file":
		return sessionstore.NewFileStore(cfg.Path, cfg.Passphrase)
	case "sqlite", "libsql":
		return sessionstore.OpenSQLStore(ctx, cfg.Driver, cfg.Path, cfg.Passphrase)
	}
	return nil, fmt.Errorf("unknown session driver '%s'", cfg.Driver)
}

func newEnv(ctx context.Context, cfg Config, httpDump string) (*env, error) {
	err := timezone.Load(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	var dump restyutil.InstrumentOutput
	if httpDump != "" {
		output, err := restyutil.NewFilesystemOutput(httpDump)
		if err != nil {
			return nil, fmt.Errorf("prepare http dump directory: %w", err)
		}
		dump = output
	}

	client, err := lms.NewClient(ctx, lms.Options{
		BaseUrl:          cfg.BaseUrl,
		RateLimit:        cfg.RateLimit,
		CloudflareBypass: cfg.CloudflareBypass,
		HttpDump:         dump,
		Telemetry:        telemetry.SlogAPI{},
	})
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	return &env{
		cfg:    cfg,
		client: client,
		store:  store,
	}, nil
}

func (e *env) credentials() *lms.Credentials {
	if e.cfg.Username == "" || e.cfg.Password == "" {
		return nil
	}
	return &lms.Credentials{
		Username: e.cfg.Username,
		Password: e.cfg.Password,
	}
}

// authenticate reuses the stored session and falls back to the configured
// credentials, the resulting session is written back to the store.
func (e *env) authenticate(ctx context.Context) error {
	_, err := e.client.LoginFromStore(ctx, e.store, e.cfg.Session.Name, e.credentials(), true)
	return err
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
