package mtcli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hnpf/MTCLI/pkg/app"
	"github.com/hnpf/MTCLI/pkg/config"
	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/integrations"
	"github.com/hnpf/MTCLI/pkg/log"
	"github.com/hnpf/MTCLI/pkg/services"
	"github.com/hnpf/MTCLI/pkg/sources"
	"github.com/spf13/cobra"
)

// env holds everything a command needs, built from config and flags.
type env struct {
	cfg        config.Config
	logger     *log.FileLogger
	store      *data.ProgressStore
	repo       *data.Repository
	source     *sources.MangaDex
	cache      *services.PageCache
	renderer   *integrations.Renderer
	controller *services.TrackingController

	// in is shared by prompts and the reader.
	in  *app.Input
	out io.Writer
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadFromEnv(
		config.WithHome(flagHome),
		config.WithProfile(flagProfile),
		config.WithWidth(flagWidth),
	)
	if err != nil {
		return nil, err
	}
	profile, err := integrations.ProfileByName(cfg.Profile)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, in: app.NewInput(cmd.InOrStdin()), out: cmd.OutOrStdout()}
	e.logger, err = log.NewFileLogger(cfg.LogPath(), log.ParseLevel(cfg.LogLevel))
	if err != nil {
		return nil, err
	}

	e.store, err = data.OpenProgressStore(cfg.ProgressPath())
	if err != nil {
		e.Close()
		return nil, err
	}
	e.repo, err = data.NewDuckDBRepository(cfg.LibraryPath())
	if err != nil {
		e.Close()
		return nil, err
	}

	e.source = sources.NewMangaDex(cfg.APIBaseURL,
		sources.WithUploadsURL(cfg.UploadsURL),
		sources.WithLanguage(cfg.LanguageCode()),
		sources.WithTimeout(cfg.Timeout),
		sources.WithToken(cfg.Token),
	)
	e.cache = services.NewPageCache(e.source, cfg.CacheDir(),
		services.WithRetryBackoff(cfg.RetryBackoff),
		services.WithPrefetchTimeout(cfg.Timeout),
		services.WithCacheLogger(e.logger.Logger),
	)

	var rendererOpts []integrations.RendererOption
	if _, h, ok := app.TerminalSize(os.Stdout); ok && h > app.ChromeRows {
		rendererOpts = append(rendererOpts, integrations.WithMaxRows(h-app.ChromeRows))
	}
	e.renderer = integrations.NewRenderer(rendererOpts...)

	e.controller = services.NewTrackingController(e.source, e.cache, e.renderer, e.store,
		services.WithLibrary(e.repo),
		services.WithReadMarker(e.source),
		services.WithLogger(e.logger.Logger),
		services.WithWidth(e.width),
		services.WithProfile(profile),
		services.WithPrefetch(cfg.Prefetch),
		services.WithRemoteTimeout(cfg.Timeout),
	)

	e.logger.Debug("home=%s profile=%s language=%s", cfg.Home, cfg.Profile, cfg.LanguageCode())
	return e, nil
}

// width is the render width: the configured one, or the terminal width
// minus the reader border.
func (e *env) width() int {
	if e.cfg.Width > 0 {
		return e.cfg.Width
	}
	if w, _, ok := app.TerminalSize(os.Stdout); ok && w > 2 {
		return w - 2
	}
	return integrations.DefaultWidth
}

func (e *env) prompter() *prompter {
	return newPrompter(e.in, e.out)
}

func (e *env) exporter() *services.Exporter {
	builder := integrations.NewEPubBuilder(e.cfg.ExportDir(), e.cfg.LanguageCode())
	return services.NewExporter(e.source, e.cache, builder, e.logger.Logger)
}

// read hands manga to the terminal reader. With a chapter range only the
// chapters in it are read, otherwise reading resumes at the first unread
// chapter.
func (e *env) read(ctx context.Context, manga *data.Manga, chapterRange string) error {
	var chapters []data.Chapter
	if chapterRange != "" {
		all, err := e.controller.Chapters(ctx, manga.ID)
		if err != nil {
			return fmt.Errorf("failed to list chapters: %w", err)
		}
		chapters = services.FilterByRange(all, chapterRange)
		if len(chapters) == 0 {
			return fmt.Errorf("no chapters of %s in range %q", manga.Name, chapterRange)
		}
	}

	t, err := app.OpenTerminal(e.in, e.out)
	if err != nil {
		return err
	}
	defer t.Close()

	if chapters != nil {
		return e.controller.ReadFrom(ctx, manga, chapters, 0, t.Input, t.Screen)
	}
	return e.controller.Read(ctx, manga, t.Input, t.Screen)
}

func (e *env) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
	if e.store != nil {
		if err := e.store.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: reading progress not saved: %v\n", err)
		}
	}
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Warn("closing library: %v", err)
		}
	}
	if e.logger != nil {
		e.logger.Close()
	}
}
