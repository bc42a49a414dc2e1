package exercise

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rangeops/excon/internal/bus"
	"github.com/rangeops/excon/internal/launch"
	"github.com/rangeops/excon/internal/metrics"
	"github.com/rangeops/excon/internal/scenario"
	"github.com/rangeops/excon/internal/status"
)

// Options configures engine behavior and worker deployment.
type Options struct {
	TickInterval      time.Duration
	DashboardImage    string
	DashboardBasePort int
	DashboardHost     string
	DockerNetwork     string
	SDRImage          string
	SDRPort           int
	SampleRate        int
	BrokerURL         string
	ScenariosDir      string
}

func (o *Options) withDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = 100 * time.Millisecond
	}
	if o.DashboardImage == "" {
		o.DashboardImage = "team-dashboard:latest"
	}
	if o.DashboardBasePort == 0 {
		o.DashboardBasePort = 3100
	}
	if o.DashboardHost == "" {
		o.DashboardHost = "localhost"
	}
	if o.SDRImage == "" {
		o.SDRImage = "sdrsim:latest"
	}
	if o.SDRPort == 0 {
		o.SDRPort = 1234
	}
	if o.SampleRate == 0 {
		o.SampleRate = 1024000
	}
}

// Engine owns the state of one active exercise. All lifecycle mutations are
// serialized on a single mutex so the tick loop observes a consistent
// (state, clock) pair.
type Engine struct {
	scenario  *scenario.Scenario
	timelines map[string]*scenario.Timeline

	bus      bus.Bus
	store    status.Store
	launcher launch.Launcher
	opts     Options
	logger   zerolog.Logger

	mu            sync.Mutex
	state         State
	clk           clock
	delivered     map[string]struct{}
	workers       []launch.Handle
	dashboardURLs map[string]string
	lastEmitted   int
	loopStarted   bool
	runErr        error

	done chan struct{}
}

// New creates an engine in NotStarted for a loaded scenario. Workers are not
// launched until Deploy.
func New(sc *scenario.Scenario, timelines map[string]*scenario.Timeline,
	b bus.Bus, st status.Store, l launch.Launcher, opts Options, logger zerolog.Logger) *Engine {
	opts.withDefaults()
	return &Engine{
		scenario:      sc,
		timelines:     timelines,
		bus:           b,
		store:         st,
		launcher:      l,
		opts:          opts,
		logger:        logger.With().Str("scenario", sc.ID).Logger(),
		state:         StateNotStarted,
		delivered:     make(map[string]struct{}),
		dashboardURLs: make(map[string]string),
		lastEmitted:   -1,
		done:          make(chan struct{}),
	}
}

// Scenario returns the immutable scenario definition.
func (e *Engine) Scenario() *scenario.Scenario {
	return e.scenario
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// DashboardURLs returns the externally reachable dashboard URL per team.
func (e *Engine) DashboardURLs() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.dashboardURLs))
	for k, v := range e.dashboardURLs {
		out[k] = v
	}
	return out
}

// Elapsed returns the exercise-relative elapsed seconds.
func (e *Engine) Elapsed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clk.elapsedSeconds(time.Now())
}

// DeliveredCount returns the size of the delivery set.
func (e *Engine) DeliveredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.delivered)
}

// TotalInjects returns the number of injects across all team timelines.
func (e *Engine) TotalInjects() int {
	total := 0
	for _, tl := range e.timelines {
		total += len(tl.Injects)
	}
	return total
}

// TeamTotals returns the per-team timeline inject counts.
func (e *Engine) TeamTotals() map[string]int {
	out := make(map[string]int, len(e.timelines))
	for team, tl := range e.timelines {
		out[team] = len(tl.Injects)
	}
	return out
}

// checkRunErr surfaces an unexpected tick loop failure on the next control
// operation.
func (e *Engine) checkRunErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runErr != nil {
		err := e.runErr
		e.runErr = nil
		return err
	}
	return nil
}

// Deploy launches one dashboard worker per team plus the auxiliary SDR
// worker when the scenario carries an IQ file. On any launch failure every
// previously launched worker is destroyed in reverse creation order.
func (e *Engine) Deploy(ctx context.Context) error {
	// Drop any stale mirror keys from a previous run of this scenario.
	e.store.Purge(ctx, e.scenario.ID)

	var launched []launch.Handle
	rollback := func() {
		for i := len(launched) - 1; i >= 0; i-- {
			if err := e.launcher.Destroy(ctx, launched[i]); err != nil {
				e.logger.Error().Err(err).Str("worker", launched[i].Name).Msg("rollback destroy failed")
			}
		}
		e.store.Purge(ctx, e.scenario.ID)
	}

	urls := make(map[string]string, len(e.scenario.Teams))
	for i, team := range e.scenario.Teams {
		spec := e.dashboardSpec(team, i)
		handle, err := e.launcher.Launch(ctx, spec)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: dashboard for team %s: %v", ErrDeployFailed, team.ID, err)
		}
		launched = append(launched, handle)
		e.store.SetTeamConnected(ctx, e.scenario.ID, team.ID, true)

		port := team.DashboardPort
		if port == 0 {
			port = e.opts.DashboardBasePort + i
		}
		urls[team.ID] = fmt.Sprintf("http://%s:%d/?team=%s&exercise=%s",
			e.opts.DashboardHost, port, team.ID, e.scenario.ID)
	}

	if e.scenario.IQFile != "" {
		spec := e.sdrSpec()
		handle, err := e.launcher.Launch(ctx, spec)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: sdr service: %v", ErrDeployFailed, err)
		}
		launched = append(launched, handle)
	} else {
		e.logger.Debug().Msg("no IQ file configured, skipping sdr service")
	}

	e.mu.Lock()
	e.workers = launched
	e.dashboardURLs = urls
	e.mu.Unlock()

	e.store.PutState(ctx, e.scenario.ID, string(StateNotStarted))
	e.logger.Info().Int("workers", len(launched)).Msg("exercise deployed, waiting for start command")
	return nil
}

func (e *Engine) dashboardSpec(team scenario.Team, index int) launch.Spec {
	image := team.DashboardImage
	if image == "" {
		image = e.scenario.DashboardImage
	}
	if image == "" {
		image = e.opts.DashboardImage
	}
	port := team.DashboardPort
	if port == 0 {
		port = e.opts.DashboardBasePort + index
	}
	return launch.Spec{
		Name:   fmt.Sprintf("team-dashboard-%s-%s", e.scenario.ID, team.ID),
		Kind:   launch.KindDashboard,
		TeamID: team.ID,
		Image:  image,
		Env: map[string]string{
			"VITE_TEAM_ID":    team.ID,
			"VITE_MQTT_TOPIC": bus.FeedTopic(e.scenario.ID, team.ID),
		},
		Ports:   map[int]int{80: port},
		Network: e.opts.DockerNetwork,
	}
}

// defaultSDRTeam is the conventional feed the SDR worker listens on when
// the scenario does not name one.
const defaultSDRTeam = "sdr-rf"

func (e *Engine) sdrTeam() string {
	if e.scenario.SDRTeam != "" {
		return e.scenario.SDRTeam
	}
	return defaultSDRTeam
}

func (e *Engine) sdrSpec() launch.Spec {
	hostPath := e.scenario.IQFile
	if rest, ok := strings.CutPrefix(hostPath, "/iq_library/"); ok {
		hostPath = filepath.Join(e.opts.ScenariosDir, "iq_library", rest)
	}
	return launch.Spec{
		Name:  "sdr-service-" + e.scenario.ID,
		Kind:  launch.KindService,
		Image: e.opts.SDRImage,
		Env: map[string]string{
			"IQ_FILE_PATH":         "/iq_files/current.iq",
			"SAMPLE_RATE":          fmt.Sprintf("%d", e.opts.SampleRate),
			"SDRSIM_BROKER_URL":    e.opts.BrokerURL,
			"SDRSIM_CONTROL_TOPIC": bus.FeedTopic(e.scenario.ID, e.sdrTeam()),
		},
		Ports: map[int]int{1234: e.opts.SDRPort},
		Mounts: []launch.Mount{{
			HostPath:      hostPath,
			ContainerPath: "/iq_files/current.iq",
			ReadOnly:      true,
		}},
		Network: e.opts.DockerNetwork,
	}
}

// Begin starts the exercise clock and the scheduling loop.
func (e *Engine) Begin(ctx context.Context) error {
	if err := e.checkRunErr(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state != StateNotStarted {
		cur := e.state
		e.mu.Unlock()
		return &TransitionError{Op: "begin", Current: cur}
	}
	e.state = StateRunning
	e.clk.begin(time.Now())
	e.loopStarted = true
	e.mu.Unlock()

	go e.run()

	e.store.PutState(ctx, e.scenario.ID, string(StateRunning))
	e.publishControl(ctx, "start")
	e.logger.Info().Msg("exercise started")
	return nil
}

// Pause freezes the exercise clock. Returns the elapsed seconds at pause.
func (e *Engine) Pause(ctx context.Context) (int, error) {
	if err := e.checkRunErr(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.state != StateRunning {
		cur := e.state
		e.mu.Unlock()
		return 0, &TransitionError{Op: "pause", Current: cur}
	}
	now := time.Now()
	e.state = StatePaused
	e.clk.pause(now)
	elapsed := e.clk.elapsedSeconds(now)
	e.mu.Unlock()

	e.store.PutState(ctx, e.scenario.ID, string(StatePaused))
	e.publishControl(ctx, "pause")
	e.logger.Info().Int("elapsed", elapsed).Msg("exercise paused")
	return elapsed, nil
}

// Resume restarts the clock after a pause.
func (e *Engine) Resume(ctx context.Context) error {
	if err := e.checkRunErr(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state != StatePaused {
		cur := e.state
		e.mu.Unlock()
		return &TransitionError{Op: "resume", Current: cur}
	}
	e.state = StateRunning
	e.clk.resume(time.Now())
	e.mu.Unlock()

	e.store.PutState(ctx, e.scenario.ID, string(StateRunning))
	e.publishControl(ctx, "resume")
	e.logger.Info().Msg("exercise resumed")
	return nil
}

// Finish freezes the clock permanently but keeps dashboards alive. The
// scheduling loop exits on its next wake-up.
func (e *Engine) Finish(ctx context.Context) error {
	if err := e.checkRunErr(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state != StateRunning && e.state != StatePaused {
		cur := e.state
		e.mu.Unlock()
		return &TransitionError{Op: "finish", Current: cur}
	}
	wasRunning := e.state == StateRunning
	e.state = StateFinished
	e.clk.pause(time.Now())
	e.mu.Unlock()

	e.store.PutState(ctx, e.scenario.ID, string(StateFinished))
	if wasRunning {
		e.publishControl(ctx, "pause")
	}
	e.logger.Info().Msg("exercise finished, dashboards remain active")
	return nil
}

// Stop halts the exercise, tears down every worker and purges the status
// mirror. Valid from any non-Stopped state.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.checkRunErr(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return &TransitionError{Op: "stop", Current: StateStopped}
	}
	e.state = StateStopped
	e.clk.pause(time.Now())
	loopStarted := e.loopStarted
	workers := e.workers
	e.workers = nil
	e.mu.Unlock()

	// The loop observes Stopped at its next wake-up; worst case one tick.
	if loopStarted {
		<-e.done
	}

	e.store.PutState(ctx, e.scenario.ID, string(StateStopped))
	e.publishControl(ctx, "stop")

	for i := len(workers) - 1; i >= 0; i-- {
		if err := e.launcher.Destroy(ctx, workers[i]); err != nil {
			e.logger.Error().Err(err).Str("worker", workers[i].Name).Msg("worker destroy failed")
		}
	}

	e.store.Purge(ctx, e.scenario.ID)
	e.logger.Info().Msg("exercise stopped")
	return nil
}

// TeamStatusDoc is one team's row in a status document.
type TeamStatusDoc struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
	Port      int    `json:"port"`
	URL       string `json:"url"`
}

// StatusDoc is the control surface's view of one exercise.
type StatusDoc struct {
	State string               `json:"state"`
	Timer status.TimerSnapshot `json:"timer"`
	Teams []TeamStatusDoc      `json:"teams"`
}

// Status assembles the external status document from the mirror plus
// in-process knowledge of totals and dashboard addresses.
func (e *Engine) Status(ctx context.Context) StatusDoc {
	mirror := e.store.Status(ctx, e.scenario.ID, e.scenario.TeamIDs())
	totals := e.TeamTotals()
	urls := e.DashboardURLs()

	doc := StatusDoc{
		State: mirror.State,
		Timer: mirror.Timer,
		Teams: make([]TeamStatusDoc, 0, len(mirror.Teams)),
	}
	for i, ts := range mirror.Teams {
		port := 0
		if i < len(e.scenario.Teams) {
			port = e.scenario.Teams[i].DashboardPort
			if port == 0 {
				port = e.opts.DashboardBasePort + i
			}
		}
		doc.Teams = append(doc.Teams, TeamStatusDoc{
			ID:        ts.ID,
			Delivered: ts.Delivered,
			Total:     totals[ts.ID],
			Status:    ts.Status,
			Port:      port,
			URL:       urls[ts.ID],
		})
	}
	return doc
}

// publishControl echoes a lifecycle command to the dashboards. Failures are
// logged, never fatal.
func (e *Engine) publishControl(ctx context.Context, command string) {
	topic := bus.ControlTopic(e.scenario.ID)
	payload, _ := json.Marshal(map[string]any{
		"command":   command,
		"timestamp": float64(time.Now().UnixMilli()) / 1000,
	})
	if err := e.bus.Publish(ctx, topic, payload, bus.AtLeastOnce); err != nil {
		metrics.IncPublishFailure(topic)
		e.logger.Warn().Err(err).Str("command", command).Msg("control publish failed")
	}
}
