package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/qbz/config"
	"github.com/xeptore/qbz/constant"
	"github.com/xeptore/qbz/log"
	"github.com/xeptore/qbz/qobuz"
	"github.com/xeptore/qbz/qobuz/types"
)

func main() {
	logger := log.NewDefault()

	//nolint:exhaustruct
	app := &cli.Command{
		Name:    "qbz",
		Version: constant.Version,
		Metadata: map[string]any{
			"compiled_at": constant.CompileTime,
		},
		Suggest:                    true,
		Usage:                      "Qobuz streaming API client",
		EnableShellCompletion:      true,
		ShellCompletionCommandName: "shell-completion",
		AllowExtFlags:              false,
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     "config",
				Usage:    "Config file path",
				Required: false,
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:   "login",
				Usage:  "Verify account credentials",
				Action: login,
			},
			//nolint:exhaustruct
			{
				Name:      "search",
				Usage:     "Search the catalog",
				ArgsUsage: "<albums|tracks|artists> <query>",
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 20,
					},
				},
				Action: search,
			},
			//nolint:exhaustruct
			{
				Name:      "url",
				Usage:     "Resolve the streaming location of a track",
				ArgsUsage: "<track-id>",
				Action:    streamURL,
			},
			//nolint:exhaustruct
			{
				Name:      "favorites",
				Usage:     "List account favorites",
				ArgsUsage: "<albums|tracks|artists>",
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 50,
					},
					//nolint:exhaustruct
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Results offset",
						Value: 0,
					},
				},
				Action: favorites,
			},
			//nolint:exhaustruct
			{
				Name:      "prefetch",
				Usage:     "Warm the audio cache for one or more tracks and report cache stats",
				ArgsUsage: "<track-id>...",
				Action:    prefetch,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			os.Exit(1)
		}

		var exitCode exitCodeError
		if errors.As(err, &exitCode) {
			os.Exit(int(exitCode))
		}

		logger.Error().Err(err).Msg("Application exited with error")
		os.Exit(10)
	}
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return "error with exit code: " + strconv.Itoa(int(e))
}

// setup loads env, config, and creates an initialized client. Every command
// begins here; bundle tokens cannot be cached across processes since the
// vendor rotates them with the bundle.
func setup(ctx context.Context, cmd *cli.Command) (zerolog.Logger, *qobuz.Client, error) {
	logger := log.NewDefault()

	if err := godotenv.Load(); nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			return logger, nil, fmt.Errorf("load .env file: %v", err)
		}
		logger.Debug().Msg(".env file was not found")
	} else {
		logger.Debug().Msg(".env file was loaded")
	}

	conf, err := config.Load(cmd.String("config"))
	if nil != err {
		return logger, nil, fmt.Errorf("load config: %v", err)
	}

	logger = log.FromConfig(conf.Log)

	logger.Debug().Dict("config", conf.ToDict()).Msg("Config loaded")

	client, err := qobuz.NewClient(logger, conf.Qobuz)
	if nil != err {
		return logger, nil, fmt.Errorf("create qobuz client: %v", err)
	}

	if err := client.Init(ctx); nil != err {
		return logger, nil, fmt.Errorf("initialize qobuz client: %w", err)
	}
	logger.Debug().Msg("Qobuz client initialized")

	return logger, client, nil
}

func credentials() (email, password string, err error) {
	email = os.Getenv("QBZ_EMAIL")
	password = os.Getenv("QBZ_PASSWORD")
	if email != "" && password != "" {
		return email, password, nil
	}

	qs := []*survey.Question{
		{
			Name:     "email",
			Prompt:   &survey.Input{Message: "Email:"}, //nolint:exhaustruct
			Validate: survey.Required,
		},
		{
			Name:     "password",
			Prompt:   &survey.Password{Message: "Password:"}, //nolint:exhaustruct
			Validate: survey.Required,
		},
	}
	answers := struct {
		Email    string
		Password string
	}{Email: "", Password: ""}
	if err := survey.Ask(qs, &answers); nil != err {
		return "", "", fmt.Errorf("prompt for credentials: %v", err)
	}

	return answers.Email, answers.Password, nil
}

func login(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, client, err := setup(ctx, cmd)
	if nil != err {
		return err
	}
	defer client.Close()

	email, password, err := credentials()
	if nil != err {
		return err
	}

	session, err := client.Login(ctx, email, password)
	if nil != err {
		if errors.Is(err, qobuz.ErrAuthentication) {
			logger.Error().Msg("Invalid email or password.")
			return exitCodeError(2)
		}

		return fmt.Errorf("login: %w", err)
	}

	logger.
		Info().
		Str("display_name", session.DisplayName).
		Str("subscription", session.SubscriptionLabel).
		Msg("Credentials verified")

	return nil
}

func search(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind := cmd.Args().Get(0)
	query := cmd.Args().Get(1)
	if kind == "" || query == "" {
		return errors.New("usage: search <albums|tracks|artists> <query>")
	}
	limit := int(cmd.Int("limit"))

	_, client, err := setup(ctx, cmd)
	if nil != err {
		return err
	}
	defer client.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	switch kind {
	case "albums":
		page, err := client.SearchAlbums(ctx, query, limit)
		if nil != err {
			return fmt.Errorf("search albums: %w", err)
		}
		t.AppendHeader(table.Row{"ID", "Title", "Artist", "Tracks", "Released"})
		t.AppendRows(lo.Map(page.Items, func(album types.Album, _ int) table.Row {
			return table.Row{album.ID, album.Title, album.Artist.Name, album.TracksCount, album.ReleaseDate}
		}))
	case "tracks":
		page, err := client.SearchTracks(ctx, query, limit)
		if nil != err {
			return fmt.Errorf("search tracks: %w", err)
		}
		t.AppendHeader(table.Row{"ID", "Title", "Performer", "Duration", "Bit Depth", "Sampling Rate"})
		t.AppendRows(lo.Map(page.Items, func(track types.Track, _ int) table.Row {
			return table.Row{
				track.ID,
				track.Title,
				track.Performer.Name,
				(time.Duration(track.Duration) * time.Second).String(),
				track.MaximumBitDepth,
				track.MaximumSamplingRate,
			}
		}))
	case "artists":
		page, err := client.SearchArtists(ctx, query, limit)
		if nil != err {
			return fmt.Errorf("search artists: %w", err)
		}
		t.AppendHeader(table.Row{"ID", "Name", "Albums"})
		t.AppendRows(lo.Map(page.Items, func(artist types.Artist, _ int) table.Row {
			return table.Row{artist.ID, artist.Name, artist.AlbumsCount}
		}))
	default:
		return fmt.Errorf("unexpected search kind: %s", kind)
	}

	t.Render()

	return nil
}

func streamURL(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trackID, err := strconv.ParseUint(cmd.Args().Get(0), 10, 64)
	if nil != err {
		return fmt.Errorf("invalid track id: %v", err)
	}

	logger, client, err := setup(ctx, cmd)
	if nil != err {
		return err
	}
	defer client.Close()

	if err := authenticate(ctx, logger, client); nil != err {
		return err
	}

	streamURL, err := client.StreamURL(ctx, trackID)
	if nil != err {
		if errors.Is(err, qobuz.ErrNoQualityAvailable) {
			logger.Error().Uint64("track_id", trackID).Msg("No playable quality available for track.")
			return exitCodeError(3)
		}

		return fmt.Errorf("resolve stream URL: %w", err)
	}

	logger.
		Info().
		Uint64("format_id", streamURL.FormatID).
		Str("mime_type", streamURL.MimeType).
		Float64("sampling_rate", streamURL.SamplingRate).
		Msg("Stream URL resolved")
	fmt.Fprintln(os.Stdout, streamURL.URL)

	return nil
}

func favorites(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind := cmd.Args().Get(0)
	if kind == "" {
		return errors.New("usage: favorites <albums|tracks|artists>")
	}

	logger, client, err := setup(ctx, cmd)
	if nil != err {
		return err
	}
	defer client.Close()

	if err := authenticate(ctx, logger, client); nil != err {
		return err
	}

	raw, err := client.GetFavorites(ctx, kind, int(cmd.Int("limit")), int(cmd.Int("offset")))
	if nil != err {
		return fmt.Errorf("get favorites: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(raw))

	return nil
}

func prefetch(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := cmd.Args().Slice()
	if len(args) == 0 {
		return errors.New("usage: prefetch <track-id>...")
	}
	trackIDs := make([]uint64, len(args))
	for i, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if nil != err {
			return fmt.Errorf("invalid track id %q: %v", arg, err)
		}
		trackIDs[i] = id
	}

	logger, client, err := setup(ctx, cmd)
	if nil != err {
		return err
	}
	defer client.Close()

	if err := authenticate(ctx, logger, client); nil != err {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, trackID := range trackIDs {
		trackID := trackID
		g.Go(func() error {
			if err := client.PrefetchTrack(gctx, trackID); nil != err {
				return fmt.Errorf("prefetch track %d: %w", trackID, err)
			}

			return nil
		})
	}
	if err := g.Wait(); nil != err {
		return err
	}

	// Downloads are fire-and-forget and failures are swallowed by the
	// prefetcher, so settle on a few consecutive idle observations instead
	// of a completion count.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var idleTicks int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := client.CacheStats()
			if stats.FetchingCount > 0 {
				idleTicks = 0
				continue
			}
			if idleTicks++; idleTicks < 3 {
				continue
			}

			logger.
				Info().
				Int("cached_tracks", stats.CachedTracks).
				Int("current_size_bytes", stats.CurrentSizeBytes).
				Int("max_size_bytes", stats.MaxSizeBytes).
				Int("fetching_count", stats.FetchingCount).
				Msg("Prefetch settled")

			return nil
		}
	}
}

func authenticate(ctx context.Context, logger zerolog.Logger, client *qobuz.Client) error {
	email, password, err := credentials()
	if nil != err {
		return err
	}

	if _, err := client.Login(ctx, email, password); nil != err {
		if errors.Is(err, qobuz.ErrAuthentication) {
			logger.Error().Msg("Invalid email or password.")
			return exitCodeError(2)
		}

		return fmt.Errorf("login: %w", err)
	}

	return nil
}
