package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pacrec/pacrec/pkg/aurweb"
	"github.com/pacrec/pacrec/pkg/backends"
	"github.com/pacrec/pacrec/pkg/config"
	"github.com/pacrec/pacrec/pkg/engine"
	"github.com/pacrec/pacrec/pkg/journal"
	"github.com/pacrec/pacrec/pkg/policy"
	"github.com/pacrec/pacrec/pkg/runner"
	"github.com/pacrec/pacrec/pkg/telemetry"
	sshtransport "github.com/pacrec/pacrec/pkg/transports/ssh"
)

// app is the wired application: settings, telemetry, target runner,
// reconciliation engine, policy gate and journal.
type app struct {
	settings *config.Settings
	tel      *telemetry.Telemetry

	run    runner.Runner
	sshRun *sshtransport.Runner
	stager *sshtransport.Stager

	pacmanPath string
	caps       engine.Capabilities
	aur        *aurweb.Client
	engine     *engine.Engine
	gate       *policy.Gate
	journal    *journal.Store
}

// gateAdmission adapts the policy gate to the engine's admission hook.
type gateAdmission struct {
	gate *policy.Gate
}

func (g gateAdmission) Admit(ctx context.Context, plan *engine.Plan, req *engine.Request, elevated bool) ([]string, error) {
	return g.gate.Admit(ctx, plan, &policy.Context{
		Elevated:  elevated,
		CheckMode: req.CheckMode,
		Force:     req.Force,
	})
}

// buildApp loads settings and wires every collaborator for one invocation.
func buildApp(ctx context.Context, version string) (*app, error) {
	path := settingsPath
	if path == "" {
		path = config.DefaultSettingsPath()
	}
	settings, err := config.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Logging.Level = "debug"
	}

	tel, err := telemetry.New(settings.Telemetry(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{settings: settings, tel: tel}

	if err := a.buildRunner(ctx); err != nil {
		return nil, err
	}

	pacmanPath, err := a.run.LookPath("pacman")
	if err != nil {
		return nil, engine.NewBackendNotFoundError("pacman", err)
	}
	a.pacmanPath = pacmanPath
	a.caps = engine.Probe(a.run)
	a.aur = aurweb.NewClient(settings.AUR.BaseURL)

	if err := a.buildGate(ctx); err != nil {
		return nil, err
	}

	adapters := []engine.Adapter{
		backends.NewPacman(a.run, pacmanPath),
		backends.NewSourceBuild(a.run, a.aur),
	}
	for _, kind := range a.caps.Kinds() {
		adapters = append(adapters, backends.NewWrapper(a.run, kind, a.caps.Path(kind)))
	}

	a.engine = engine.New(engine.Config{
		Runner:     a.run,
		Classifier: engine.NewClassifier(a.run, pacmanPath, a.aur),
		Planner:    engine.NewPlanner(),
		Adapters:   adapters,
		Caps:       a.caps,
		Admission:  gateAdmission{gate: a.gate},
		Logger:     tel.Logger,
		Metrics:    tel.Metrics,
		Tracer:     tel.Tracer,
	})

	if settings.Journal.Enabled {
		store, err := journal.NewStore(journal.Config{Path: settings.Journal.Path})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			tel.Logger.WithError(err).Warn("journal unavailable, runs will not be recorded")
		} else {
			a.journal = store
		}
	}

	if settings.Metrics.Enabled {
		go func() {
			if err := tel.Metrics.Serve(); err != nil {
				tel.Logger.WithError(err).Warn("metrics listener failed")
			}
		}()
	}

	return a, nil
}

// buildRunner selects the local or SSH process boundary.
func (a *app) buildRunner(ctx context.Context) error {
	if sshHost == "" {
		a.run = runner.NewLocal()
		return nil
	}

	cfg := sshtransport.DefaultConfig(sshHost, sshUser)
	cfg.Port = sshPort
	if sshKeyPath != "" {
		cfg.PrivateKeyPath = sshKeyPath
	}
	if sshInsecure {
		cfg.StrictHostKeyChecking = false
	}

	remote, err := sshtransport.NewRunner(cfg, a.tel.Logger)
	if err != nil {
		return err
	}
	if err := remote.Connect(ctx); err != nil {
		return err
	}
	a.sshRun = remote
	a.stager = sshtransport.NewStager(remote)
	a.run = remote
	return nil
}

// buildGate loads builtin policies plus any operator files, and starts the
// watcher when configured.
func (a *app) buildGate(ctx context.Context) error {
	gate, err := policy.NewGate(a.tel.Logger)
	if err != nil {
		return err
	}
	a.gate = gate

	if !a.settings.Policy.Enabled || len(a.settings.Policy.Paths) == 0 {
		return nil
	}
	if err := gate.LoadPolicies(ctx, a.settings.Policy.Paths); err != nil {
		return err
	}
	if a.settings.Policy.Watch {
		loader := policy.NewLoader(a.tel.Logger)
		if err := loader.Watch(ctx, a.settings.Policy.Paths, func(policies []policy.Policy) error {
			return gate.Replace(ctx, policies)
		}); err != nil {
			a.tel.Logger.WithError(err).Warn("policy watch unavailable")
		}
	}
	return nil
}

// runRequest runs one reconciliation and records it in the journal.
func (a *app) runRequest(ctx context.Context, req *engine.Request) (*engine.Outcome, error) {
	if a.stager != nil && len(req.Names) > 0 {
		if err := a.stageLocalFiles(ctx, req); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	outcome, err := a.engine.Run(ctx, req)

	if outcome != nil && a.journal != nil && !req.CheckMode {
		if jerr := a.journal.RecordRun(ctx, req, outcome, start); jerr != nil {
			a.tel.Logger.WithError(jerr).Warn("failed to record run in journal")
		}
	}
	return outcome, err
}

// stageLocalFiles uploads local package files to the remote host and
// rewrites the request to point at the staged copies.
func (a *app) stageLocalFiles(ctx context.Context, req *engine.Request) error {
	requests := make([]engine.PackageRequest, len(req.Names))
	needsStaging := false
	for i, name := range req.Names {
		requests[i] = engine.NewPackageRequest(name)
		if requests[i].IsLocalPath {
			needsStaging = true
		}
	}
	if !needsStaging {
		return nil
	}

	staged, err := a.stager.StageRequests(ctx, requests)
	if err != nil {
		return err
	}
	for i, s := range staged {
		req.Names[i] = s.Name
	}
	return nil
}

// Close releases the app's resources.
func (a *app) Close(ctx context.Context) {
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.sshRun != nil {
		_ = a.sshRun.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
}
