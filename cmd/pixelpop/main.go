package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
	"github.com/mrvasilyev/pixel-pop-v2/internal/config"
	"github.com/mrvasilyev/pixel-pop-v2/internal/content"
	"github.com/mrvasilyev/pixel-pop-v2/internal/gallery"
	"github.com/mrvasilyev/pixel-pop-v2/internal/generation"
	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
	"github.com/mrvasilyev/pixel-pop-v2/internal/paywall"
	"github.com/mrvasilyev/pixel-pop-v2/pkg/logger"
)

const usage = `Usage: pixelpop <command> [flags]

Commands:
  me                      show the signed-in user and balances
  generate                transform a selfie with a style
  gallery                 list finished generations
  delete <id>             remove a generation
  feedback <id> <verdict> rate a generation (like or dislike)
  plans                   list credit plans
  buy <plan>              request a Stars invoice link
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(api.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		InitData: func() string {
			return os.Getenv("TELEGRAM_INIT_DATA")
		},
		Log: logr,
	})

	app := &app{cfg: cfg, client: client, log: logr}

	var runErr error
	switch cmd := os.Args[1]; cmd {
	case "me":
		runErr = app.me(ctx)
	case "generate":
		runErr = app.generate(ctx, os.Args[2:])
	case "gallery":
		runErr = app.gallery(ctx, os.Args[2:])
	case "delete":
		runErr = app.delete(ctx, os.Args[2:])
	case "feedback":
		runErr = app.feedback(ctx, os.Args[2:])
	case "plans":
		runErr = app.plans()
	case "buy":
		runErr = app.buy(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if runErr != nil {
		log.Fatalf("%s: %v", os.Args[1], runErr)
	}
}

type app struct {
	cfg    config.Config
	client *api.Client
	log    *slog.Logger
}

func (a *app) newStore() *gallery.Store {
	hint := gallery.LoadHint(a.cfg.StateDir)
	return gallery.NewStore(a.client, a.cfg.GalleryPageLimit, hint, a.log)
}

func (a *app) me(ctx context.Context) error {
	if _, err := a.client.Login(ctx); err != nil {
		return err
	}
	user, err := a.client.GetUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.New("profile unavailable")
	}
	fmt.Printf("%s (telegram %d)\n", user.FirstName, user.TelegramID)
	fmt.Printf("standard credits: %d\n", user.StandardCredits)
	fmt.Printf("premium credits:  %d\n", user.PremiumCredits)
	return nil
}

func (a *app) generate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	photo := fs.String("photo", "", "path to the selfie")
	style := fs.String("style", "", "style slug from the content library")
	prompt := fs.String("prompt", "", "custom prompt (overrides the style prompt)")
	premium := fs.Bool("premium", false, "spend a premium credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *photo == "" {
		return errors.New("-photo is required")
	}

	lib, err := content.Load(a.cfg.ContentDir)
	if err != nil {
		return err
	}

	finalPrompt := *prompt
	if finalPrompt == "" && *style != "" {
		desc := lib.StyleBySlug(*style)
		if desc == nil {
			return fmt.Errorf("unknown style %q", *style)
		}
		finalPrompt = desc.Prompt
	}
	if finalPrompt == "" {
		return errors.New("either -style or -prompt is required")
	}

	file, err := os.Open(*photo)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := a.client.Login(ctx); err != nil {
		return err
	}

	gate := paywall.NewGate(a.log)
	gate.SetPremiumMode(*premium)
	gate.Refresh(ctx, a.client)

	store := a.newStore()
	controller := generation.NewController(lib.Header.LoadingPhrases)
	poller := generation.NewPoller(a.client, a.cfg.PollInterval, a.cfg.PollMaxAttempts, a.log)
	flow := generation.NewFlow(a.client, poller, controller, store, gate, a.log)

	done := make(chan struct{})
	go printProgress(controller, done)

	result, err := flow.GeneratePhoto(ctx, generation.PhotoRequest{
		File:     file,
		Filename: filepath.Base(*photo),
		Prompt:   finalPrompt,
		StyleID:  *style,
		Slug:     *style,
	})
	close(done)
	if err != nil {
		if errors.Is(err, generation.ErrPaywalled) {
			fmt.Println("Not enough credits. Run `pixelpop plans` to top up.")
			return nil
		}
		return err
	}

	fmt.Printf("\njob %s done\n%s\n", result.JobID, result.ImageURL)
	return nil
}

func (a *app) gallery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gallery", flag.ExitOnError)
	pages := fs.Int("pages", 1, "number of pages to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := a.client.Login(ctx); err != nil {
		return err
	}

	store := a.newStore()
	for i := 0; i < *pages && (i == 0 || store.HasMore()); i++ {
		store.NextPage(ctx)
	}

	items := store.Items()
	if len(items) == 0 {
		fmt.Println("No generations yet.")
		return nil
	}
	for _, item := range items {
		line := fmt.Sprintf("%s  %s  %s", item.CreatedAt, item.ID, item.ImageURL)
		if item.Feedback != "" {
			line += "  [" + item.Feedback + "]"
		}
		fmt.Println(line)
	}
	if store.HasMore() {
		fmt.Println("(more available)")
	}
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: pixelpop delete <id>")
	}
	if _, err := a.client.Login(ctx); err != nil {
		return err
	}

	if err := a.newStore().Delete(ctx, args[0], a.client); err != nil {
		return err
	}
	fmt.Println("deleted")
	return nil
}

func (a *app) feedback(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: pixelpop feedback <id> like|dislike")
	}
	var verdict models.Feedback
	switch args[1] {
	case "like":
		verdict = models.FeedbackLike
	case "dislike":
		verdict = models.FeedbackDislike
	default:
		return fmt.Errorf("unknown verdict %q", args[1])
	}

	if _, err := a.client.Login(ctx); err != nil {
		return err
	}
	if err := a.client.SubmitFeedback(ctx, args[0], verdict); err != nil {
		return err
	}
	fmt.Println("recorded")
	return nil
}

func (a *app) plans() error {
	for _, plan := range paywall.Plans() {
		label := ""
		if plan.Best {
			label = "  (best value)"
		}
		fmt.Printf("%-10s %4d stars  %d standard + %d premium%s\n",
			plan.ID, plan.Stars, plan.StandardCredits, plan.PremiumCredits, label)
	}
	return nil
}

func (a *app) buy(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: pixelpop buy <plan>")
	}
	if paywall.PlanByID(args[0]) == nil {
		return fmt.Errorf("unknown plan %q", args[0])
	}
	if _, err := a.client.Login(ctx); err != nil {
		return err
	}
	link, err := a.client.CreateInvoice(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(link)
	return nil
}

func printProgress(controller *generation.Controller, done <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		state := controller.Snapshot()
		if !state.Generating {
			continue
		}
		line := state.Caption + state.Dots
		if line != last {
			fmt.Printf("\r%-60s", line)
			last = line
		}
	}
}
