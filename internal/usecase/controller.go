package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/ids"
	"talkback/internal/metrics"
	"talkback/internal/ports"
)

// Setting keys persisted alongside the VAD configuration.
const (
	SettingSystemPrompt    = "system_prompt"
	SettingUseSystemPrompt = "use_system_prompt"
	SettingContext         = "context"
	SettingInputDevice     = "input_device"
)

var (
	errControllerClosed  = errors.New("capture controller closed")
	errPermissionRevoked = errors.New("audio capture permission revoked")
)

// ConversationLog is the part of the conversation store the pipeline writes to.
type ConversationLog interface {
	Active() domain.Conversation
	AppendTurn(ctx context.Context, turn domain.ConversationTurn) (domain.ConversationTurn, error)
}

// Config controls capture behavior.
type Config struct {
	Audio ports.AudioConfig
	Vad   domain.VadConfig

	// FrameDuration is the VAD evaluation window. TickInterval drives
	// wall-clock progress; a negative value disables the ticker.
	FrameDuration time.Duration
	TickInterval  time.Duration
	ChunkSize     int

	CopyToClipboard bool
	SystemPrompt    string
	UseSystemPrompt bool
	Context         string
}

// Deps are the collaborators of the capture controller. Audio is required;
// the event sink must not call back into the controller.
type Deps struct {
	Audio         ports.AudioCapture
	Permission    ports.PermissionChecker
	Dispatcher    *Dispatcher
	Responder     *Responder
	Conversations ConversationLog
	Rules         ports.RulesEngine
	Clipboard     ports.Clipboard
	Events        ports.EventSink
	Settings      ports.SettingsRepository
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	NewID         func() string
	Now           func() time.Time
}

// CaptureController is the capture orchestration state machine. Every input
// arrives through Handle; the exported methods are thin wrappers.
type CaptureController struct {
	deps      Deps
	cfg       Config
	finalizer transcriptFinalizer
	logger    *slog.Logger

	// startMu serializes session creation; emitMu keeps notifications in
	// the order their transitions happened.
	startMu sync.Mutex
	emitMu  sync.Mutex
	mu      sync.Mutex

	state             domain.CaptureState
	vadConfig         domain.VadConfig
	current           *captureSession
	lastTranscription string
	lastAIResponse    string
	lastError         string
	setupRequired     bool
	revocations       uint64
	contextText       string
	systemPrompt      string
	useSystemPrompt   bool
	closed            bool

	pipeline sync.WaitGroup
}

// effects are applied after the state lock is released.
type effects struct {
	notes   []func(ports.EventSink)
	release *captureSession
	job     *pipelineJob
	persist func(ctx context.Context) error
}

type pipelineJob struct {
	ctx     context.Context
	segment domain.AudioSegment
	input   PromptInput
}

func NewCaptureController(deps Deps, cfg Config) *CaptureController {
	if deps.Events == nil {
		deps.Events = nopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = ids.New
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewDispatcher(nil, 0)
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if err := cfg.Vad.Validate(); err != nil {
		cfg.Vad = domain.DefaultVadConfig()
	}

	return &CaptureController{
		deps:            deps,
		cfg:             cfg,
		finalizer:       newTranscriptFinalizer(deps.Rules, deps.Clipboard, deps.Events, deps.Logger),
		logger:          deps.Logger,
		state:           domain.CaptureStateIdle,
		vadConfig:       cfg.Vad,
		contextText:     cfg.Context,
		systemPrompt:    cfg.SystemPrompt,
		useSystemPrompt: cfg.UseSystemPrompt,
	}
}

// Handle is the single entry point for every inbound signal.
func (c *CaptureController) Handle(ctx context.Context, ev Event) error {
	if _, ok := ev.(StartRequested); ok {
		return c.start(ctx)
	}

	c.mu.Lock()
	var fx effects
	err := c.handleLocked(ev, &fx)
	return c.commit(ctx, &fx, err)
}

func (c *CaptureController) handleLocked(ev Event, fx *effects) error {
	switch ev := ev.(type) {
	case StopRequested:
		return c.stopLocked(fx, false)
	case ManualStopAndSendRequested:
		return c.stopLocked(fx, true)
	case AudioReceived:
		c.audioLocked(fx, ev)
	case TimerTicked:
		c.tickLocked(fx, ev)
	case DeviceFailed:
		if c.capturing(ev.SessionID) != nil {
			c.failLocked(fx, apperrors.NewCaptureDevice(ev.Err), domain.ReasonDeviceFailed)
		}
	case PermissionChanged:
		c.permissionLocked(fx, ev.Granted)
	case ErrorAcknowledged:
		c.acknowledgeLocked(fx)
	case VisibilityToggled:
		// The host window never owns capture.
		c.logger.Debug("window visibility toggled", "visible", ev.Visible, "state", c.state)
	case VadConfigUpdated:
		return c.updateVadLocked(fx, ev.Config)
	case transcriptionCompleted:
		c.transcribedLocked(fx, ev)
	case turnCompleted:
		c.turnLocked(fx, ev)
	default:
		return apperrors.NewValidationf("unsupported event %T", ev)
	}
	return nil
}

// commit releases c.mu, then applies effects in order.
func (c *CaptureController) commit(ctx context.Context, fx *effects, err error) error {
	if fx.job != nil {
		c.pipeline.Add(1)
	}
	c.emitMu.Lock()
	c.mu.Unlock()
	for _, note := range fx.notes {
		note(c.deps.Events)
	}
	c.emitMu.Unlock()

	if fx.release != nil {
		if stopErr := fx.release.release(); stopErr != nil {
			c.logger.Warn("audio device did not stop cleanly", "session_id", fx.release.id, "error", stopErr)
		}
	}
	if fx.job != nil {
		go c.runPipeline(*fx.job)
	}
	if fx.persist != nil && err == nil {
		if persistErr := fx.persist(ctx); persistErr != nil {
			return apperrors.NewInternal(persistErr)
		}
	}
	return err
}

func (c *CaptureController) start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return apperrors.NewInternal(errControllerClosed)
	case c.state == domain.CaptureStateCapturing:
		c.mu.Unlock()
		return nil
	case c.state == domain.CaptureStateProcessing || c.state == domain.CaptureStateAIProcessing:
		c.mu.Unlock()
		return apperrors.NewBusy("capture")
	}
	cfg := c.vadConfig
	audioCfg := c.cfg.Audio
	revocations := c.revocations
	c.mu.Unlock()

	if granted, detail := c.checkPermission(ctx); !granted {
		setupErr := apperrors.NewSetupRequired(detail)
		c.mu.Lock()
		var fx effects
		c.enterSetupRequiredLocked(&fx, setupErr)
		return c.commit(ctx, &fx, setupErr)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	audioSession, err := c.deps.Audio.Start(sessionCtx, audioCfg)
	if err != nil {
		cancel()
		deviceErr := apperrors.NewCaptureDevice(err)
		c.mu.Lock()
		var fx effects
		c.failLocked(&fx, deviceErr, domain.ReasonDeviceFailed)
		return c.commit(ctx, &fx, deviceErr)
	}

	session := newCaptureSession(ctx, c.deps.NewID(), c.deps.Now(), cfg, audioSession, cancel)

	c.mu.Lock()
	var fx effects
	if c.closed {
		fx.release = session
		return c.commit(ctx, &fx, apperrors.NewInternal(errControllerClosed))
	}
	if c.revocations != revocations {
		// Permission was withdrawn while the device was opening.
		fx.release = session
		setupErr := apperrors.NewSetupRequired(errPermissionRevoked.Error())
		if c.state != domain.CaptureStateSetupRequired {
			c.enterSetupRequiredLocked(&fx, setupErr)
		}
		return c.commit(ctx, &fx, setupErr)
	}
	c.current = session
	c.state = domain.CaptureStateCapturing
	c.setupRequired = false
	c.lastError = ""
	c.noteState(&fx, domain.ReasonCaptureStarted)
	_ = c.commit(ctx, &fx, nil)

	c.deps.Metrics.RecordSessionStarted()
	c.logger.Info("capture started", "session_id", session.id, "mode", cfg.Mode, "device", audioCfg.InputDevice)

	go c.pumpAudio(sessionCtx, session)
	if c.cfg.TickInterval > 0 {
		go c.runTicker(sessionCtx, session)
	}
	return nil
}

func (c *CaptureController) checkPermission(ctx context.Context) (bool, string) {
	if c.deps.Permission == nil {
		return true, ""
	}
	granted, err := c.deps.Permission.Check(ctx)
	if err != nil {
		return false, err.Error()
	}
	return granted, ""
}

func (c *CaptureController) stopLocked(fx *effects, continuousOnly bool) error {
	session := c.current
	if c.state != domain.CaptureStateCapturing || session == nil {
		return apperrors.NewNoActiveSession()
	}
	if continuousOnly && session.cfg.Mode != domain.CaptureModeContinuous {
		return apperrors.NewValidation("manual stop and send is only available in continuous mode")
	}
	c.finalizeLocked(fx, domain.EndedReasonManualStop, domain.ReasonManualStop)
	return nil
}

func (c *CaptureController) audioLocked(fx *effects, ev AudioReceived) {
	session := c.capturing(ev.SessionID)
	if session == nil {
		return
	}

	session.append(ev.Frame)
	if c.observeLocked(fx, session, ev.Frame.End()) {
		return
	}
	if session.endOfSpeech(ev.Frame) {
		c.finalizeLocked(fx, domain.EndedReasonSilence, domain.ReasonSilenceDetected)
	}
}

func (c *CaptureController) tickLocked(fx *effects, ev TimerTicked) {
	if session := c.capturing(ev.SessionID); session != nil {
		c.observeLocked(fx, session, ev.Elapsed)
	}
}

// observeLocked advances the recording timer and finalizes on the cap. It
// reports whether the session was finalized.
func (c *CaptureController) observeLocked(fx *effects, session *captureSession, elapsed time.Duration) bool {
	update := session.timer.Observe(elapsed)
	if update.ProgressChanged {
		id, secs := session.id, update.ElapsedSecs
		fx.notes = append(fx.notes, func(sink ports.EventSink) { sink.Progress(id, secs) })
	}
	if update.MaxReached {
		c.finalizeLocked(fx, domain.EndedReasonMaxDuration, domain.ReasonMaxDurationReached)
		return true
	}
	return false
}

func (c *CaptureController) finalizeLocked(fx *effects, ended domain.EndedReason, reason domain.StateReason) {
	session := c.current
	fx.release = session

	if session.buffer.Len() == 0 {
		c.deps.Metrics.RecordSegmentDiscarded()
		c.logger.Info("empty capture discarded", "session_id", session.id)
		c.current = nil
		c.state = domain.CaptureStateIdle
		c.noteState(fx, domain.ReasonEmptyCapture)
		return
	}

	segment := session.segment(ended, c.cfg.Audio)
	c.state = domain.CaptureStateProcessing
	c.noteState(fx, reason)
	c.deps.Metrics.RecordSegmentFinalized(string(ended), segment.DurationSecs)
	c.logger.Info("segment finalized",
		"session_id", session.id,
		"ended_reason", ended,
		"duration_secs", segment.DurationSecs,
	)

	fx.job = &pipelineJob{
		ctx:     session.parent,
		segment: segment,
		input: PromptInput{
			Context:      c.contextText,
			SystemPrompt: c.activeSystemPromptLocked(),
		},
	}
}

func (c *CaptureController) failLocked(fx *effects, err error, reason domain.StateReason) {
	if c.state == domain.CaptureStateCapturing {
		fx.release = c.current
	}
	code := apperrors.CodeOf(err)
	detail := err.Error()

	c.current = nil
	c.state = domain.CaptureStateError
	c.lastError = detail
	c.deps.Metrics.RecordCaptureError(string(code))
	c.logger.Warn("capture failed", "code", code, "reason", reason, "error", err)

	fx.notes = append(fx.notes, func(sink ports.EventSink) { sink.Error(code, detail) })
	c.noteState(fx, reason)
}

func (c *CaptureController) enterSetupRequiredLocked(fx *effects, err error) {
	c.state = domain.CaptureStateSetupRequired
	c.setupRequired = true
	c.lastError = err.Error()
	c.deps.Metrics.RecordCaptureError(string(domain.ErrorCodeSetupRequired))

	detail := err.Error()
	fx.notes = append(fx.notes, func(sink ports.EventSink) { sink.Error(domain.ErrorCodeSetupRequired, detail) })
	c.noteState(fx, domain.ReasonPermissionMissing)
}

func (c *CaptureController) permissionLocked(fx *effects, granted bool) {
	if granted {
		c.setupRequired = false
		if c.state == domain.CaptureStateSetupRequired {
			c.state = domain.CaptureStateIdle
			c.lastError = ""
			c.noteState(fx, domain.ReasonPermissionGranted)
		}
		return
	}

	c.revocations++
	switch c.state {
	case domain.CaptureStateCapturing:
		c.setupRequired = true
		c.failLocked(fx, apperrors.NewCaptureDevice(errPermissionRevoked), domain.ReasonDeviceFailed)
	case domain.CaptureStateIdle, domain.CaptureStateError:
		c.current = nil
		c.enterSetupRequiredLocked(fx, apperrors.NewSetupRequired(""))
	default:
		// The in-flight pipeline finishes; the next start reports setup.
		c.setupRequired = true
	}
}

func (c *CaptureController) acknowledgeLocked(fx *effects) {
	switch c.state {
	case domain.CaptureStateError:
		c.state = domain.CaptureStateIdle
		c.current = nil
		c.lastError = ""
		c.noteState(fx, domain.ReasonErrorAcknowledged)
	case domain.CaptureStateSetupRequired:
		// Persistent until permission is granted.
	default:
		if c.lastError != "" {
			c.lastError = ""
			c.noteState(fx, domain.ReasonErrorAcknowledged)
		}
	}
}

func (c *CaptureController) updateVadLocked(fx *effects, cfg domain.VadConfig) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.NewValidation(err.Error())
	}
	c.vadConfig = cfg
	c.logger.Info("vad configuration updated",
		"mode", cfg.Mode,
		"silence_threshold_db", cfg.SilenceThresholdDB,
		"silence_duration_ms", cfg.SilenceDurationMs,
		"max_recording_duration_secs", cfg.MaxRecordingDurationSecs,
	)
	if settings := c.deps.Settings; settings != nil {
		fx.persist = func(ctx context.Context) error { return settings.SaveVadConfig(ctx, cfg) }
	}
	return nil
}

func (c *CaptureController) transcribedLocked(fx *effects, ev transcriptionCompleted) {
	if !c.processing(ev.SessionID) {
		return
	}
	if ev.Err != nil {
		c.failLocked(fx, ev.Err, domain.ReasonTranscriptionFailed)
		return
	}

	c.lastTranscription = ev.Transcript
	if ev.Transcript == "" {
		c.toIdleLocked(fx, domain.ReasonNoSpeech)
		return
	}
	if ev.Responding {
		c.state = domain.CaptureStateAIProcessing
		c.noteState(fx, domain.ReasonResponding)
	}
}

func (c *CaptureController) turnLocked(fx *effects, ev turnCompleted) {
	if !c.processing(ev.SessionID) {
		return
	}
	if ev.Turn.AIResponse != nil {
		c.lastAIResponse = *ev.Turn.AIResponse
	} else {
		c.lastAIResponse = ""
	}

	if ev.AppendErr != nil {
		err := ev.AppendErr
		if apperrors.CodeOf(err) == domain.ErrorCodeInternal {
			err = apperrors.NewInternal(err)
		}
		c.failLocked(fx, err, domain.ReasonPersistFailed)
		return
	}

	if ev.ResponseErr != nil {
		code := apperrors.CodeOf(ev.ResponseErr)
		detail := ev.ResponseErr.Error()
		c.lastError = detail
		c.deps.Metrics.RecordCaptureError(string(code))
		c.logger.Warn("ai response failed", "session_id", ev.SessionID, "error", ev.ResponseErr)
		fx.notes = append(fx.notes, func(sink ports.EventSink) { sink.Error(code, detail) })
		c.toIdleLocked(fx, domain.ReasonResponseFailed)
		return
	}
	c.toIdleLocked(fx, domain.ReasonTurnAppended)
}

func (c *CaptureController) toIdleLocked(fx *effects, reason domain.StateReason) {
	c.current = nil
	c.state = domain.CaptureStateIdle
	c.noteState(fx, reason)
}

func (c *CaptureController) noteState(fx *effects, reason domain.StateReason) {
	status := c.statusLocked()
	fx.notes = append(fx.notes, func(sink ports.EventSink) { sink.StateChanged(status, reason) })
}

// capturing returns the current session when it is capturing and matches id.
func (c *CaptureController) capturing(id string) *captureSession {
	if c.state != domain.CaptureStateCapturing || c.current == nil || c.current.id != id {
		return nil
	}
	return c.current
}

func (c *CaptureController) processing(id string) bool {
	if c.current == nil || c.current.id != id {
		return false
	}
	return c.state == domain.CaptureStateProcessing || c.state == domain.CaptureStateAIProcessing
}

func (c *CaptureController) activeSystemPromptLocked() string {
	if !c.useSystemPrompt {
		return ""
	}
	return c.systemPrompt
}

// StartCapture begins a session. Calling it while capturing is a no-op.
func (c *CaptureController) StartCapture(ctx context.Context) error {
	return c.Handle(ctx, StartRequested{})
}

// StopCapture finalizes the current session with endedReason manualStop.
func (c *CaptureController) StopCapture(ctx context.Context) error {
	return c.Handle(ctx, StopRequested{})
}

// ManualStopAndSend flushes a continuous recording before the hard cap.
func (c *CaptureController) ManualStopAndSend(ctx context.Context) error {
	return c.Handle(ctx, ManualStopAndSendRequested{})
}

// AcknowledgeError dismisses the current error and returns to idle.
func (c *CaptureController) AcknowledgeError(ctx context.Context) error {
	return c.Handle(ctx, ErrorAcknowledged{})
}

// SetPermission relays the platform permission state.
func (c *CaptureController) SetPermission(ctx context.Context, granted bool) error {
	return c.Handle(ctx, PermissionChanged{Granted: granted})
}

// SetVisibility relays a host window visibility change.
func (c *CaptureController) SetVisibility(ctx context.Context, visible bool) error {
	return c.Handle(ctx, VisibilityToggled{Visible: visible})
}

// UpdateVadConfiguration replaces the configuration for future sessions. A
// session already capturing keeps its snapshot.
func (c *CaptureController) UpdateVadConfiguration(ctx context.Context, cfg domain.VadConfig) error {
	return c.Handle(ctx, VadConfigUpdated{Config: cfg})
}

// VadConfiguration returns the configuration the next session will use.
func (c *CaptureController) VadConfiguration() domain.VadConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vadConfig
}

// Session returns a snapshot of the active session, if any.
func (c *CaptureController) Session() (domain.CaptureSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.CaptureSession{}, false
	}
	return c.current.snapshot(c.state), true
}

// InputDevice returns the capture source the next session opens.
func (c *CaptureController) InputDevice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Audio.InputDevice
}

// SelectInputDevice switches the capture source for future sessions. A
// session already capturing keeps its device.
func (c *CaptureController) SelectInputDevice(ctx context.Context, device string) error {
	device = strings.TrimSpace(device)
	if device == "" {
		return apperrors.NewValidation("input device is required")
	}
	c.mu.Lock()
	c.cfg.Audio.InputDevice = device
	c.mu.Unlock()
	c.logger.Info("input device selected", "device", device)
	return c.saveSetting(ctx, SettingInputDevice, device)
}

// SetContext replaces the free-text context folded into future prompts.
func (c *CaptureController) SetContext(ctx context.Context, text string) error {
	c.mu.Lock()
	c.contextText = text
	c.mu.Unlock()
	return c.saveSetting(ctx, SettingContext, text)
}

// SetSystemPrompt replaces the stored system prompt.
func (c *CaptureController) SetSystemPrompt(ctx context.Context, prompt string) error {
	c.mu.Lock()
	c.systemPrompt = prompt
	c.mu.Unlock()
	return c.saveSetting(ctx, SettingSystemPrompt, prompt)
}

// SetUseSystemPrompt toggles whether the system prompt accompanies requests.
func (c *CaptureController) SetUseSystemPrompt(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	c.useSystemPrompt = enabled
	c.mu.Unlock()
	value := "false"
	if enabled {
		value = "true"
	}
	return c.saveSetting(ctx, SettingUseSystemPrompt, value)
}

// PromptSettings returns the current context and effective system prompt.
func (c *CaptureController) PromptSettings() (contextText string, systemPrompt string, useSystemPrompt bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contextText, c.systemPrompt, c.useSystemPrompt
}

func (c *CaptureController) saveSetting(ctx context.Context, key, value string) error {
	if c.deps.Settings == nil {
		return nil
	}
	if err := c.deps.Settings.SaveSetting(ctx, key, value); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// Status returns the current backend status.
func (c *CaptureController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *CaptureController) statusLocked() domain.Status {
	status := domain.Status{
		State:                    c.state,
		Mode:                     c.vadConfig.Mode,
		Capturing:                c.state == domain.CaptureStateCapturing,
		Processing:               c.state == domain.CaptureStateProcessing,
		AIProcessing:             c.state == domain.CaptureStateAIProcessing,
		MaxRecordingDurationSecs: c.vadConfig.MaxRecordingDurationSecs,
		LastTranscription:        c.lastTranscription,
		LastAIResponse:           c.lastAIResponse,
		Error:                    c.lastError,
		SetupRequired:            c.setupRequired,
	}
	if session := c.current; session != nil {
		status.SessionID = session.id
		status.Mode = session.cfg.Mode
		status.MaxRecordingDurationSecs = session.cfg.MaxRecordingDurationSecs
		status.RecordingProgress = session.timer.ElapsedSecs()
	}
	return status
}

// Wait blocks until every dispatched segment has finished its pipeline.
func (c *CaptureController) Wait() {
	c.pipeline.Wait()
}

// Close discards a capturing session and waits for in-flight pipelines.
func (c *CaptureController) Close() {
	c.startMu.Lock()
	c.mu.Lock()
	c.closed = true
	var fx effects
	if c.state == domain.CaptureStateCapturing && c.current != nil {
		fx.release = c.current
		c.current = nil
		c.state = domain.CaptureStateIdle
	}
	_ = c.commit(context.Background(), &fx, nil)
	c.startMu.Unlock()

	c.pipeline.Wait()
}

func (c *CaptureController) pumpAudio(ctx context.Context, session *captureSession) {
	framer := newSessionFramer(c.cfg)
	pumpAudioFrames(session.audio, framer, session.id, c.cfg.ChunkSize, func(ev Event) {
		_ = c.Handle(ctx, ev)
	})
}

func (c *CaptureController) runTicker(ctx context.Context, session *captureSession) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Handle(ctx, TimerTicked{SessionID: session.id, Elapsed: c.deps.Now().Sub(session.startedAt)})
		}
	}
}

// runPipeline carries one segment through transcription, response and the
// conversation log. Provider calls run to completion; only ctx cancellation
// (application shutdown) aborts them.
func (c *CaptureController) runPipeline(job pipelineJob) {
	defer c.pipeline.Done()

	ctx := job.ctx
	sessionID := job.segment.SessionID
	post := func(ev Event) { _ = c.Handle(ctx, ev) }

	began := time.Now()
	raw, err := c.deps.Dispatcher.Dispatch(ctx, job.segment)
	if err != nil {
		c.deps.Metrics.RecordTranscription("failure", time.Since(began))
		post(transcriptionCompleted{SessionID: sessionID, Err: err})
		return
	}
	c.deps.Metrics.RecordTranscription("success", time.Since(began))

	transcript := c.finalizer.Transform(raw)
	responding := transcript != "" && c.deps.Responder.Enabled()
	post(transcriptionCompleted{SessionID: sessionID, Transcript: transcript, Responding: responding})
	if transcript == "" {
		return
	}

	input := job.input
	input.Transcript = transcript
	if c.deps.Conversations != nil {
		input.History = c.deps.Conversations.Active().Turns
	}

	began = time.Now()
	response, attempted, respErr := c.deps.Responder.Respond(ctx, input)
	if attempted {
		outcome := "success"
		if respErr != nil {
			outcome = "failure"
		}
		c.deps.Metrics.RecordAIResponse(outcome, time.Since(began))
	}

	turn := domain.ConversationTurn{
		ID:               c.deps.NewID(),
		CreatedAt:        c.deps.Now(),
		Transcript:       transcript,
		ContextUsed:      domain.StringPtr(input.Context),
		SystemPromptUsed: domain.StringPtr(input.SystemPrompt),
	}
	if attempted && respErr == nil {
		turn.AIResponse = &response
	}

	done := turnCompleted{SessionID: sessionID, Turn: turn, ResponseErr: respErr}
	if c.deps.Conversations != nil {
		stored, appendErr := c.deps.Conversations.AppendTurn(ctx, turn)
		if appendErr != nil {
			done.AppendErr = appendErr
		} else {
			done.Turn = stored
			done.Appended = true
		}
	}

	if done.AppendErr == nil && c.cfg.CopyToClipboard {
		text := transcript
		if turn.AIResponse != nil {
			text = *turn.AIResponse
		}
		c.finalizer.Copy(ctx, text)
	}
	post(done)
}

type nopSink struct{}

func (nopSink) StateChanged(domain.Status, domain.StateReason) {}
func (nopSink) Progress(string, int)                           {}
func (nopSink) TurnAppended(string, domain.ConversationTurn)   {}
func (nopSink) ConversationStarted(string)                     {}
func (nopSink) ConversationSelected(string)                    {}
func (nopSink) Error(domain.ErrorCode, string)                 {}
