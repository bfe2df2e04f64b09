package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tubesync/internal/formatter"
	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
	"github.com/desertthunder/tubesync/internal/tasks"
)

// ChannelResolver turns a user-supplied channel reference into channel metadata. [*services.APISource] implements it.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, ref string) (*services.ChannelMetadata, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and the YouTube clients are opened lazily so commands that need neither stay fast.
type Runner struct {
	config   *shared.Config
	logger   *log.Logger
	output   io.Writer
	db       *sql.DB
	ownsDB   bool
	store    *repositories.Store
	resolver ChannelResolver
	sources  *tasks.Sources
	now      func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
//
// DB, Resolver and Sources are normally built from Config on first use; tests inject them.
type RunnerOpts struct {
	Config   *shared.Config
	Logger   *log.Logger
	Output   io.Writer
	DB       *sql.DB
	Resolver ChannelResolver
	Sources  *tasks.Sources
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config:   opts.Config,
		logger:   opts.Logger,
		output:   opts.Output,
		db:       opts.DB,
		resolver: opts.Resolver,
		sources:  opts.Sources,
		now:      time.Now,
	}
	if opts.DB != nil {
		r.store = repositories.NewStore(opts.DB)
	}
	return r
}

// SetLogger replaces the logger, e.g. to divert output to a file while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, channelsCommand, foldersCommand, tagsCommand,
		videosCommand, playlistsCommand, syncCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// open returns the store, opening and migrating the configured database on first use.
func (r *Runner) open() (*repositories.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db, r.ownsDB = db, true
	r.store = repositories.NewStore(db)
	return r.store, nil
}

// Close releases the database handle if the runner opened it.
func (r *Runner) Close() error {
	if !r.ownsDB {
		return nil
	}
	r.ownsDB = false
	return r.db.Close()
}

// owner resolves --owner (or library.owner) to a user, creating it on first use.
func (r *Runner) owner(ctx context.Context, cmd *cli.Command) (*repositories.Store, *models.User, error) {
	store, err := r.open()
	if err != nil {
		return nil, nil, err
	}

	email := cmd.String("owner")
	if email == "" {
		email = r.config.Library.Owner
	}
	if email == "" {
		return nil, nil, fmt.Errorf("%w: --owner or library.owner", shared.ErrMissingArgument)
	}

	user, err := store.Users.Ensure(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve owner %s: %w", email, err)
	}
	return store, user, nil
}

// channel finds a channel by local ID, falling back to its external UC… ID.
func (r *Runner) channel(ctx context.Context, store *repositories.Store, ownerID, ref string) (*models.Channel, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: channel", shared.ErrMissingArgument)
	}
	c, err := store.Channels.Get(ctx, ownerID, ref)
	if errors.Is(err, shared.ErrNotFound) {
		return store.Channels.GetByExternalID(ctx, ownerID, ref)
	}
	return c, err
}

// queue returns the SQLite job queue; CLI commands always hand jobs to the database so a separate worker sees them.
func (r *Runner) queue() *repositories.JobQueue {
	return repositories.NewJobQueue(r.db, r.config.Queue.PollInterval, r.config.Queue.Lease)
}

func (r *Runner) scheduler(store *repositories.Store, queue tasks.Queue) *tasks.Scheduler {
	return tasks.NewScheduler(store.Channels, queue, r.config.Sync.SweepWindow, r.logger)
}

// apiSource builds the Data API client from credentials.youtube.
func (r *Runner) apiSource(ctx context.Context) (*services.APISource, error) {
	opts, err := services.ClientOptions(ctx, r.config.Credentials.YouTube)
	if err != nil {
		return nil, err
	}
	return services.NewAPISource(ctx, services.APISourceConfig{
		RequestsPerSecond: r.config.Sync.RequestsPerSecond,
		Limits:            services.LimitsFromConfig(r.config.Sync),
		Shorts:            services.ShortsPolicyFromConfig(r.config.Sync),
		Logger:            r.logger,
	}, opts...)
}

func (r *Runner) channelResolver(ctx context.Context) (ChannelResolver, error) {
	if r.resolver != nil {
		return r.resolver, nil
	}
	api, err := r.apiSource(ctx)
	if err != nil {
		return nil, err
	}
	r.resolver = api
	return api, nil
}

// syncSources wires the executor's backends: the API for full fetches and playlists, feed-first for refreshes.
func (r *Runner) syncSources(ctx context.Context) (tasks.Sources, error) {
	if r.sources != nil {
		return *r.sources, nil
	}
	api, err := r.apiSource(ctx)
	if err != nil {
		return tasks.Sources{}, err
	}
	feed := services.NewFeedSource("", nil, r.logger)
	sources := tasks.Sources{API: api, Refresh: services.NewRefreshSource(feed, api, r.logger)}
	r.sources = &sources
	return sources, nil
}

func (r *Runner) executor(ctx context.Context, store *repositories.Store, queue tasks.Queue) (*tasks.Executor, error) {
	sources, err := r.syncSources(ctx)
	if err != nil {
		return nil, err
	}
	return tasks.NewExecutor(store, queue, sources, tasks.ExecutorConfigFromConfig(r.config.Sync), r.logger), nil
}

// render writes data as JSON when --json is set, otherwise through table in the --format encoding.
func (r *Runner) render(cmd *cli.Command, data any, table func(io.Writer, formatter.Format) error) error {
	if cmd.Bool("json") {
		return r.writeJSON(data, true)
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	return table(r.output, format)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
