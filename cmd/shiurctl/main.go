// Command shiurctl publishes shiurim from the command line: files go straight
// to object storage and the record is written through the server API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/client"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/retry"
	"github.com/bilgisen/shiurim/internal/upload"
)

const usage = `usage: shiurctl <command> [flags]

commands:
  publish   upload audio (and an optional image) and create a shiur
  edit      change an existing shiur, replacing files when given
  upload    upload a single file and print its public URL
  list      search published shiurim

environment:
  SHIUR_SERVER    server base URL (default http://localhost:8080)
  SHIUR_EMAIL     admin email
  SHIUR_PASSWORD  admin password
  SHIUR_TOKEN     access token, instead of email and password
`

func main() {
	_ = godotenv.Load()
	if err := logger.Init(logger.Config{Level: env("LOG_LEVEL", "info"), Output: "stderr", Pretty: true}); err != nil {
		panic(err)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "publish":
		err = publish(ctx, os.Args[2:])
	case "edit":
		err = edit(ctx, os.Args[2:])
	case "upload":
		err = uploadOne(ctx, os.Args[2:])
	case "list":
		err = list(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Get().Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrPayloadTooLarge):
		return 2
	case errors.Is(err, apperr.ErrConfiguration):
		return 3
	case errors.Is(err, apperr.ErrUnauthorized):
		return 4
	}
	return 1
}

// common flags shared by every command that talks to the server
type common struct {
	server   string
	timeout  time.Duration
	attempts int
	maxSize  int64
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.server, "server", env("SHIUR_SERVER", "http://localhost:8080"), "server base URL")
	fs.DurationVar(&c.timeout, "attempt-timeout", 0, "deadline for a single upload attempt (0 = none)")
	fs.IntVar(&c.attempts, "attempts", 3, "upload attempts per file")
	fs.Int64Var(&c.maxSize, "max-size", upload.DefaultMaxSize, "largest file to upload, in bytes")
}

func (c *common) connect(ctx context.Context) (*client.Client, error) {
	api := client.New(c.server, 30*time.Second)
	if token := os.Getenv("SHIUR_TOKEN"); token != "" {
		api.SetToken(token)
		return api, nil
	}
	email, password := os.Getenv("SHIUR_EMAIL"), os.Getenv("SHIUR_PASSWORD")
	if email == "" || password == "" {
		return nil, apperr.Validation("set SHIUR_TOKEN or SHIUR_EMAIL and SHIUR_PASSWORD")
	}
	if _, err := api.Login(ctx, email, password); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return api, nil
}

func (c *common) coordinator(api *client.Client) *upload.Coordinator {
	opts := upload.Options{MaxSize: c.maxSize, AttemptTimeout: c.timeout, Policy: retry.Default()}
	if c.attempts > 0 {
		opts.Policy.MaxAttempts = c.attempts
	}
	return upload.NewCoordinator(api, opts)
}

func publish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	var c common
	c.register(fs)
	title := fs.String("title", "", "title (required)")
	desc := fs.String("description", "", "description")
	tags := fs.String("tags", "", "comma separated tags")
	stamps := fs.String("timestamps", "", `topics as "Topic@HH:MM:SS;Topic@MM:SS"`)
	download := fs.Bool("allow-download", false, "offer the audio for download")
	transcript := fs.String("transcript", "", "path to a transcript text file")
	audioPath := fs.String("audio", "", "audio file (required)")
	imagePath := fs.String("image", "", "cover image")
	_ = fs.Parse(args)

	form := upload.ShiurForm{
		Title:         *title,
		Description:   *desc,
		Tags:          *tags,
		AllowDownload: *download,
	}
	var err error
	if form.Timestamps, err = parseTimestamps(*stamps); err != nil {
		return err
	}
	if form.Transcript, err = readText(*transcript); err != nil {
		return err
	}
	if *audioPath == "" {
		return apperr.Validation("-audio is required")
	}
	if form.Audio, err = upload.OpenFile(*audioPath); err != nil {
		return apperr.Validation("%v", err)
	}
	defer form.Audio.Close()
	if *imagePath != "" {
		if form.Image, err = upload.OpenFile(*imagePath); err != nil {
			return apperr.Validation("%v", err)
		}
		defer form.Image.Close()
	}

	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	sub := upload.NewSubmitter(c.coordinator(api), api)
	sub.Progress = progressLogger

	res, err := sub.Create(ctx, form)
	if err != nil {
		return err
	}
	report(res)
	return nil
}

func edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	var c common
	c.register(fs)
	id := fs.String("id", "", "shiur id (required)")
	audioPath := fs.String("audio", "", "replacement audio file")
	imagePath := fs.String("image", "", "replacement cover image")
	transcript := fs.String("transcript", "", "path to a transcript text file")
	stamps := fs.String("timestamps", "", `topics as "Topic@HH:MM:SS;Topic@MM:SS"`)
	var e upload.ShiurEdit
	fs.Func("title", "new title", func(s string) error { e.Title = &s; return nil })
	fs.Func("description", "new description", func(s string) error { e.Description = &s; return nil })
	fs.Func("tags", "new comma separated tags", func(s string) error { e.Tags = &s; return nil })
	fs.Func("allow-download", "true or false", func(s string) error {
		v, err := parseBool(s)
		e.AllowDownload = &v
		return err
	})
	_ = fs.Parse(args)

	if *id == "" {
		return apperr.Validation("-id is required")
	}
	visited := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { visited[f.Name] = true })
	if visited["timestamps"] {
		ts, err := parseTimestamps(*stamps)
		if err != nil {
			return err
		}
		e.Timestamps = &ts
	}
	if visited["transcript"] {
		text, err := readText(*transcript)
		if err != nil {
			return err
		}
		e.Transcript = &text
	}
	var err error
	if *audioPath != "" {
		if e.Audio, err = upload.OpenFile(*audioPath); err != nil {
			return apperr.Validation("%v", err)
		}
		defer e.Audio.Close()
	}
	if *imagePath != "" {
		if e.Image, err = upload.OpenFile(*imagePath); err != nil {
			return apperr.Validation("%v", err)
		}
		defer e.Image.Close()
	}

	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	sub := upload.NewSubmitter(c.coordinator(api), api)
	sub.Progress = progressLogger

	res, err := sub.Update(ctx, *id, e)
	if err != nil {
		return err
	}
	report(res)
	return nil
}

func uploadOne(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	var c common
	c.register(fs)
	category := fs.String("type", models.CategoryAudio, "audio or image")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return apperr.Validation("upload takes exactly one file")
	}
	if !models.ValidCategory(*category) {
		return apperr.Validation("-type must be audio or image")
	}
	f, err := upload.OpenFile(fs.Arg(0))
	if err != nil {
		return apperr.Validation("%v", err)
	}
	defer f.Close()

	api, err := c.connect(ctx)
	if err != nil {
		return err
	}
	url, err := c.coordinator(api).Upload(ctx, f, *category, progressLogger(*category))
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	server := fs.String("server", env("SHIUR_SERVER", "http://localhost:8080"), "server base URL")
	q := fs.String("q", "", "search text")
	_ = fs.Parse(args)

	shiurim, err := client.New(*server, 30*time.Second).Shiurim(ctx, *q)
	if err != nil {
		return err
	}
	for _, s := range shiurim {
		fmt.Printf("%s\t%s\t%s\n", s.ID, s.CreatedAt.Format("2006-01-02"), s.Title)
	}
	return nil
}

// progressLogger logs every tenth percent.
func progressLogger(category string) upload.ProgressFunc {
	log := logger.With("shiurctl")
	last := -10
	return func(p upload.Progress) {
		pct := p.Percent()
		if pct == last || (pct < last+10 && pct != 100) {
			return
		}
		last = pct
		log.Info().Str("file", category).Int("percent", pct).Int64("sent", p.Sent).Int64("total", p.Total).Msg("Uploading")
	}
}

func report(res *upload.Result) {
	log := logger.With("shiurctl")
	for _, w := range res.Warnings {
		log.Warn().Msg(w)
	}
	ev := log.Info().Str("id", res.Shiur.ID).Str("slug", res.Shiur.Slug).Str("audio_url", res.Shiur.AudioURL)
	if res.Shiur.ImageURL != nil {
		ev = ev.Str("image_url", *res.Shiur.ImageURL)
	}
	ev.Msg("Saved shiur")
}

// parseTimestamps reads "Intro@00:00:30;Main point@12:10".
func parseTimestamps(s string) ([]models.TimestampTopic, error) {
	var out []models.TimestampTopic
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndex(part, "@")
		if i <= 0 {
			return nil, apperr.Validation("timestamp %q is not Topic@time", part)
		}
		out = append(out, models.TimestampTopic{
			Topic: strings.TrimSpace(part[:i]),
			Time:  strings.TrimSpace(part[i+1:]),
		})
	}
	if err := models.ValidateTimestamps(out); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	return out, nil
}

func readText(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Validation("read transcript: %v", err)
	}
	return string(data), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes":
		return true, nil
	case "0", "f", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
