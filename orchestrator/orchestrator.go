// Package orchestrator wires the daemon together: adapters feed the manager,
// decisions fuse the snapshot into context for the brain, and directives fan
// out to the avatar bridge and the speech engine.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/deskclaw/deskclaw/adapter"
	"github.com/deskclaw/deskclaw/adapter/keyboard"
	"github.com/deskclaw/deskclaw/adapter/screen"
	"github.com/deskclaw/deskclaw/adapter/voice"
	"github.com/deskclaw/deskclaw/brain"
	"github.com/deskclaw/deskclaw/config"
	"github.com/deskclaw/deskclaw/driver"
	"github.com/deskclaw/deskclaw/mood"
	"github.com/deskclaw/deskclaw/tts"
)

// characterID keys the persisted mood document.
const characterID = "claw"

// nudgePrompt stands in for user text on scheduled idle check-ins.
const nudgePrompt = "(the user has been quiet for a while; offer one brief, friendly remark if the desktop context invites it, otherwise stay quiet)"

// Orchestrator owns every long-lived component of a daemon run.
type Orchestrator struct {
	cfg    *config.Config
	prefs  *config.PrefsView
	mgr    *adapter.Manager
	brains *brain.Client
	bridge *driver.Server
	speech tts.Engine
	moods  *mood.Store
	nudger *cron.Cron
}

// New builds the orchestrator from loaded configuration. Construction only
// validates and wires; nothing starts until Run.
func New(cfg *config.Config) (*Orchestrator, error) {
	prefs, err := config.LoadPrefs(config.PrefsPath())
	if err != nil {
		return nil, err
	}
	view := config.NewPrefsView(prefs)

	brains, err := brain.NewClient(cfg.Brain)
	if err != nil {
		return nil, err
	}

	mgr := adapter.NewManager(adapter.Config{
		InterruptThreshold: cfg.Manager.InterruptThreshold,
		DecisionTimeout:    cfg.Manager.DecisionTimeout(),
		StaleAfter:         cfg.Manager.StaleAfter(),
		StopGrace:          cfg.Manager.StopGrace(),
		MaxRestarts:        cfg.Manager.MaxRestarts,
		Verbose:            cfg.Verbose,
	})

	o := &Orchestrator{
		cfg:    cfg,
		prefs:  view,
		mgr:    mgr,
		brains: brains,
		bridge: driver.NewServer(cfg.Server, driver.LoadModelInfo(filepath.Join(config.HomeDir(), "model_dict.json")), ""),
		moods:  mood.NewStore(filepath.Join(config.HomeDir(), "mood"), mood.Options{}),
	}

	if err := o.registerAdapters(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) registerAdapters() error {
	prefs := o.prefs.Current()

	if o.cfg.ScreenEnabled(prefs) {
		if err := o.mgr.Register(screen.New(o.cfg.Screen, o.prefs)); err != nil {
			return err
		}
	} else {
		log.Printf("[orchestrator] screen adapter disabled by configuration")
	}

	if o.cfg.KeyboardEnabled(prefs) {
		if err := o.mgr.Register(keyboard.New(o.cfg.Keyboard, keyboard.NewSystemSource())); err != nil {
			return err
		}
	} else {
		log.Printf("[orchestrator] keyboard adapter disabled by configuration")
	}

	if o.cfg.VoiceEnabled(prefs) {
		recognizer, err := voice.NewAPIRecognizer(o.cfg.ASR)
		if err != nil {
			log.Printf("[orchestrator] voice adapter skipped: %v", err)
		} else if err := o.mgr.Register(voice.New(o.cfg.ASR, voice.NewSystemSource(), recognizer)); err != nil {
			return err
		}
	} else {
		log.Printf("[orchestrator] voice adapter disabled by configuration")
	}

	return nil
}

// Run starts everything and blocks until ctx is canceled, then unwinds in
// reverse order.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.brains.Probe(ctx); err != nil {
		// Decisions will fail individually until the gateway comes back.
		log.Printf("[orchestrator] %v", err)
	}

	speech, err := tts.NewWithFallback(o.cfg.TTS)
	if err != nil {
		log.Printf("[orchestrator] running text-only: %v", err)
	}
	o.speech = speech

	o.bridge.SetTextInputHandler(func(text string) {
		o.mgr.RequestDecision("frontend text input", text)
	})
	o.bridge.SetInterruptHandler(func() {
		if o.speech != nil {
			o.speech.Stop()
		}
	})
	if err := o.bridge.Start(); err != nil {
		return err
	}

	o.mgr.SetDecisionCallback(o.decide)
	if err := o.mgr.StartAll(ctx); err != nil {
		o.bridge.Stop(context.Background())
		return err
	}

	go func() {
		if err := config.WatchPrefs(ctx, config.PrefsPath(), o.prefs); err != nil && ctx.Err() == nil {
			log.Printf("[orchestrator] prefs watcher stopped: %v", err)
		}
	}()

	if o.cfg.Nudge.Enabled && o.cfg.Nudge.Schedule != "" {
		o.nudger = cron.New()
		if _, err := o.nudger.AddFunc(o.cfg.Nudge.Schedule, func() {
			o.nudge(ctx)
		}); err != nil {
			return fmt.Errorf("orchestrator: nudge schedule: %w", err)
		}
		o.nudger.Start()
		log.Printf("[orchestrator] idle nudge scheduled: %s", o.cfg.Nudge.Schedule)
	}

	log.Printf("[orchestrator] up; adapters: %d", len(o.mgr.Health()))
	<-ctx.Done()

	if o.nudger != nil {
		o.nudger.Stop()
	}
	o.mgr.StopAll()
	if o.speech != nil {
		o.speech.Stop()
	}
	if err := o.bridge.Stop(context.Background()); err != nil {
		log.Printf("[orchestrator] bridge shutdown: %v", err)
	}
	return nil
}

// nudge requests a low-priority check-in, unless a decision is already in
// flight or the live keyboard state says the user is mid-typing.
func (o *Orchestrator) nudge(ctx context.Context) {
	if o.mgr.Busy() {
		return
	}
	if st, err := o.mgr.StateOf(ctx, keyboard.Name); err == nil {
		if active, _ := st["active"].(bool); active {
			return
		}
	}
	o.mgr.RequestDecision("idle nudge", "")
}

// decide is the manager's decision callback: fuse the snapshot, think, fan
// the directive out.
func (o *Orchestrator) decide(ctx context.Context, text string) {
	contextText := adapter.BuildContext(o.mgr.Snapshot(), adapter.BuildOptions{})

	if mem, err := o.moods.Load(characterID); err == nil {
		if line := o.moods.PromptLine(mem); line != "" {
			contextText += "\n[mood] " + line
		}
	}

	userText := text
	if userText == "" {
		userText = nudgePrompt
	}

	directive, err := o.brains.Think(ctx, contextText, userText)
	if err != nil {
		log.Printf("[orchestrator] decision failed: %v", err)
		return
	}
	if directive.Text == "" {
		return
	}

	if _, err := o.moods.Update(characterID, text, directive.Text); err != nil {
		log.Printf("[orchestrator] mood update: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.bridge.Send(directive.Text, directive.Emotion, directive.Motion)
		return nil
	})
	if o.speech != nil {
		g.Go(func() error { return o.speech.Speak(gctx, directive.Text) })
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Printf("[orchestrator] speak: %v", err)
	}
}
