// Package main provides the assistant entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/a3ro-dev/FAM/internal/app/command"
	"github.com/a3ro-dev/FAM/internal/app/notify"
	"github.com/a3ro-dev/FAM/internal/app/playback"
	"github.com/a3ro-dev/FAM/internal/app/session"
	"github.com/a3ro-dev/FAM/internal/app/tasks"
	"github.com/a3ro-dev/FAM/internal/app/voice"
	"github.com/a3ro-dev/FAM/internal/domain/playlist"
	"github.com/a3ro-dev/FAM/internal/infra/beepout"
	"github.com/a3ro-dev/FAM/internal/infra/config"
	"github.com/a3ro-dev/FAM/internal/infra/console"
	"github.com/a3ro-dev/FAM/internal/infra/logger"
	"github.com/a3ro-dev/FAM/internal/infra/newsapi"
	"github.com/a3ro-dev/FAM/internal/infra/openai"
	"github.com/a3ro-dev/FAM/internal/infra/spotify"
	"github.com/a3ro-dev/FAM/internal/infra/weather"
)

var (
	app        = kingpin.New("fam", "FAM voice assistant")
	configPath = app.Flag("config", "Path to config file").Default("config/assistant.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	noAudio    = app.Flag("no-audio", "Print speech instead of synthesizing it").Bool()

	// list-commands command
	listCommandsCmd = app.Command("list-commands", "List recognized command phrases and exit")
)

func init() {
	app.Command("start", "Start the assistant (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if cmd == listCommandsCmd.FullCommand() {
		printCommands()
		return
	}

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Assistant error: %v", err)
		os.Exit(1)
	}
}

// run executes the assistant. A separate function ensures defer statements
// run even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pl, err := playlist.Load(cfg.Music.Directory, cfg.Music.Shuffle)
	if err != nil {
		return fmt.Errorf("failed to load music library: %w", err)
	}
	zlog.Info().Msgf("Music library loaded: tracks=%d shuffle=%v", pl.Len(), cfg.Music.Shuffle)

	device, err := beepout.NewDevice()
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}

	var play openai.PlayFunc
	var chime voice.Chime
	if *noAudio {
		chime = console.Chime{}
	} else {
		play = beepout.PlayMP3
		c, err := beepout.NewChime()
		if err != nil {
			return fmt.Errorf("failed to create chime: %w", err)
		}
		chime = c
	}

	ai, err := openai.New(openai.Config{
		APIKey:    cfg.OpenAI.APIKey,
		ChatModel: cfg.OpenAI.ChatModel,
		TTSModel:  cfg.OpenAI.TTSModel,
		Voice:     cfg.OpenAI.Voice,
	}, play)
	if err != nil {
		return fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	var speech voice.Output = ai
	if *noAudio {
		speech = console.Output{}
	}

	events := notify.NewManager()
	defer events.Close()
	events.Subscribe(eventLogger{})

	engine := playback.NewEngine(device, pl, speech, events, playback.Config{
		StartAttempts:  cfg.Playback.StartAttempts,
		RetryDelay:     cfg.Playback.RetryDelay(),
		AnnounceVolume: cfg.Playback.AnnounceVolume,
		FullVolume:     cfg.Playback.FullVolume,
	})
	defer engine.Stop()

	taskList := tasks.NewManager()

	var speaker *spotify.Client
	if cfg.Spotify.Enabled {
		speaker, err = spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			DeviceName:   cfg.Spotify.DeviceName,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
	}

	var news *newsapi.Client
	if cfg.News.APIKey != "" {
		news, err = newsapi.New(newsapi.Config{
			APIKey:  cfg.News.APIKey,
			Country: cfg.News.Country,
		})
		if err != nil {
			return fmt.Errorf("failed to create news client: %w", err)
		}
	}

	var forecast *weather.Client
	if cfg.Weather.APIKey != "" {
		forecast, err = weather.New(weather.Config{
			APIKey: cfg.Weather.APIKey,
			City:   cfg.Weather.City,
			Units:  cfg.Weather.Units,
		})
		if err != nil {
			return fmt.Errorf("failed to create weather client: %w", err)
		}
	}

	cons, err := console.New(cfg.TriggerSettings("console"))
	if err != nil {
		return fmt.Errorf("failed to create console input: %w", err)
	}
	for name, trigger := range cfg.Triggers {
		if name != "console" && trigger.Enabled {
			zlog.Warn().Msgf("Trigger source %q requires the device build, ignoring", name)
		}
	}

	h := &handlerSet{
		music:   &command.MusicCommands{Engine: engine, Speech: speech},
		tasks:   &command.TaskCommands{Tasks: taskList, Capture: cons, Speech: speech},
		speech:  speech,
		news:    news,
		weather: forecast,
		speaker: speaker,
		engine:  engine,
		stop:    cancel,
	}

	table, err := command.NewTable(tableEntries(h))
	if err != nil {
		return fmt.Errorf("failed to build command table: %w", err)
	}

	router := command.NewRouter(table, cons, speech, ai, command.Config{
		FuzzyThreshold: cfg.Router.FuzzyThreshold,
	})

	arbiter := session.NewArbiter(engine, router, cons, speech, chime, events, session.Config{
		DuckVolume: cfg.Session.DuckVolume,
		FullVolume: cfg.Playback.FullVolume,
		Cooldown:   cfg.Session.Cooldown(),
	})

	go arbiter.Run(ctx, cons)

	chime.Play(voice.ChimeLoad)
	if err := speech.Speak(ctx, "FAM is online."); err != nil {
		zlog.Warn().Msgf("Startup greeting failed: %v", err)
	}
	zlog.Info().Msgf("Assistant ready: commands=%d", table.Len())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-ctx.Done():
		zlog.Info().Msg("Shutdown requested, stopping...")
	}

	cancel()
	engine.Stop()
	zlog.Info().Msg("Assistant stopped")
	return nil
}

// eventLogger mirrors playback and session events into the log, standing in
// for the device's LED animations.
type eventLogger struct{}

func (eventLogger) Send(e notify.Event) error {
	zlog.Debug().Msgf("event: type=%s track=%s detail=%s seq=%d", e.Type, e.Track, e.Detail, e.SequenceNo)
	return nil
}

// handlerSet binds the phrase table to the assistant's components.
type handlerSet struct {
	music   *command.MusicCommands
	tasks   *command.TaskCommands
	speech  voice.Output
	news    *newsapi.Client
	weather *weather.Client
	speaker *spotify.Client
	engine  *playback.Engine
	stop    func()
}

// tableEntries returns the default phrase table, ordered by descending
// phrase length so specific phrases win over their shorter prefixes.
func tableEntries(h *handlerSet) []command.Entry {
	return []command.Entry{
		{Phrase: "what's the weather", Handler: h.tellWeather},
		{Phrase: "start speaker mode", Handler: h.startSpeakerMode},
		{Phrase: "stop speaker mode", Handler: h.stopSpeakerMode},
		{Phrase: "search for a task", Handler: h.tasks.Search},
		{Phrase: "what time is it", Handler: h.tellTime},
		{Phrase: "what's the date", Handler: h.tellDate},
		{Phrase: "play some music", Handler: h.music.PlayMusic},
		{Phrase: "seek forward", Handler: h.music.SeekForward},
		{Phrase: "how are you", Handler: h.howAreYou},
		{Phrase: "add a task", Handler: h.tasks.Add},
		{Phrase: "next song", Handler: h.music.Next},
		{Phrase: "shutdown", Handler: h.shutdown},
		{Phrase: "resume", Handler: h.music.Resume},
		{Phrase: "hello", Handler: h.hello},
		{Phrase: "pause", Handler: h.music.Pause},
		{Phrase: "news", Handler: h.tellNews},
		{Phrase: "stop", Handler: h.music.Stop},
		{Phrase: "play", Handler: h.music.PlayNamed},
	}
}

func (h *handlerSet) hello(ctx context.Context, text string) error {
	return h.speech.Speak(ctx, "Hello! How can I help you?")
}

func (h *handlerSet) howAreYou(ctx context.Context, text string) error {
	return h.speech.Speak(ctx, "I am doing great, thanks for asking.")
}

func (h *handlerSet) tellTime(ctx context.Context, text string) error {
	return h.speech.Speak(ctx, fmt.Sprintf("It is %s.", time.Now().Format("3:04 PM")))
}

func (h *handlerSet) tellDate(ctx context.Context, text string) error {
	return h.speech.Speak(ctx, fmt.Sprintf("Today is %s.", time.Now().Format("Monday, January 2")))
}

func (h *handlerSet) tellNews(ctx context.Context, text string) error {
	if h.news == nil {
		return h.speech.Speak(ctx, "News is not configured.")
	}

	headlines, err := h.news.TopHeadlines(ctx, 5)
	if err != nil {
		zlog.Error().Msgf("Failed to fetch headlines: %v", err)
		return h.speech.Speak(ctx, "Sorry, I could not fetch the news.")
	}
	if len(headlines) == 0 {
		return h.speech.Speak(ctx, "There are no headlines right now.")
	}

	var b strings.Builder
	b.WriteString("Here are the top headlines. ")
	for _, hl := range headlines {
		b.WriteString(hl.Title)
		if hl.Source != "" {
			b.WriteString(", from ")
			b.WriteString(hl.Source)
		}
		b.WriteString(". ")
	}
	return h.speech.Speak(ctx, strings.TrimSpace(b.String()))
}

func (h *handlerSet) tellWeather(ctx context.Context, text string) error {
	if h.weather == nil {
		return h.speech.Speak(ctx, "Weather is not configured.")
	}

	report, err := h.weather.Current(ctx)
	if err != nil {
		zlog.Error().Msgf("Failed to fetch weather: %v", err)
		return h.speech.Speak(ctx, "Sorry, I could not fetch the weather.")
	}
	return h.speech.Speak(ctx, fmt.Sprintf("It is %.0f degrees with %s in %s.",
		report.Temperature, report.Description, report.City))
}

// startSpeakerMode hands the speaker over to Spotify Connect. Local
// playback stops first so the two never fight over the output.
func (h *handlerSet) startSpeakerMode(ctx context.Context, text string) error {
	if h.speaker == nil {
		return h.speech.Speak(ctx, "Speaker mode is not configured.")
	}

	h.engine.Stop()
	if err := h.speaker.EnableSpeakerMode(ctx); err != nil {
		zlog.Error().Msgf("Failed to enable speaker mode: %v", err)
		return h.speech.Speak(ctx, "Sorry, I could not start speaker mode.")
	}
	return h.speech.Speak(ctx, "Speaker mode enabled.")
}

func (h *handlerSet) stopSpeakerMode(ctx context.Context, text string) error {
	if h.speaker == nil {
		return h.speech.Speak(ctx, "Speaker mode is not configured.")
	}

	if err := h.speaker.DisableSpeakerMode(ctx); err != nil {
		zlog.Error().Msgf("Failed to disable speaker mode: %v", err)
		return h.speech.Speak(ctx, "Sorry, I could not stop speaker mode.")
	}
	return h.speech.Speak(ctx, "Speaker mode disabled.")
}

func (h *handlerSet) shutdown(ctx context.Context, text string) error {
	if err := h.speech.Speak(ctx, "Shutting down. Goodbye."); err != nil {
		zlog.Warn().Msgf("Shutdown farewell failed: %v", err)
	}
	h.stop()
	return nil
}

// printCommands prints the recognized phrases in match order.
func printCommands() {
	h := &handlerSet{
		music: &command.MusicCommands{},
		tasks: &command.TaskCommands{},
	}
	table, err := command.NewTable(tableEntries(h))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid command table: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Recognized commands (in match order):")
	for _, phrase := range table.Phrases() {
		fmt.Printf("  %s\n", phrase)
	}
	fmt.Println("Anything else is answered by the AI assistant.")
}
