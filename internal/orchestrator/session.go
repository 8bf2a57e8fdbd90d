// Package orchestrator drives one live interview session as a single-consumer
// state machine.
//
// Every session owns exactly one run loop. All inputs — client frames, the
// transcription connector and its event pump, the silence timer, scoring
// callbacks — deliver into the session's inbox channel and are handled in
// FIFO order on that one goroutine, so session state needs no locking. Phases
// advance monotonically intro → question → code → finished; answers are
// flushed and enqueued for scoring atomically with the phase advance, so a
// scoring worker can never observe an answer that is not yet persisted.
package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/mianlab/koushi/internal/config"
	"github.com/mianlab/koushi/internal/interview"
	"github.com/mianlab/koushi/internal/media"
	"github.com/mianlab/koushi/internal/observe"
	"github.com/mianlab/koushi/internal/planner"
	"github.com/mianlab/koushi/internal/proctor"
	"github.com/mianlab/koushi/internal/scorer"
	"github.com/mianlab/koushi/internal/session"
	"github.com/mianlab/koushi/internal/store"
	"github.com/mianlab/koushi/pkg/asr"
)

// inboxSize bounds the per-session inbound queue. Deliver drops (returns
// false) when it is full; sources treat a drop as best-effort loss.
const inboxSize = 256

// Defaults applied when the corresponding Config field is zero.
const (
	defaultSilenceTimeout   = 60 * time.Second
	defaultASRRetries       = 3
	defaultASRRetryInterval = 2 * time.Second
	defaultCodingProblems   = 3
)

// Sender delivers server frames to the client. The websocket server
// implements it by marshalling the frame onto the socket; tests record.
type Sender interface {
	Send(ctx context.Context, frame any) error
}

// ClipFinalizer turns a flushed buffer snapshot into a media clip and returns
// the best available artefact path. Implemented by [media.Muxer].
type ClipFinalizer interface {
	Finalize(ctx context.Context, sessionID string, questionIndex int, audio, frames [][]byte) (string, error)
}

// FrameInspector judges one keyframe for proctoring violations. Implemented
// by [proctor.Proctor].
type FrameInspector interface {
	Inspect(ctx context.Context, frame []byte) proctor.Verdict
}

// Hub is the stream-group signalling surface the session delegates to. The
// websocket server's hub implements it. A nil hub degrades to a private
// group: IDs are minted locally and relayed frames go nowhere.
type Hub interface {
	// Create allocates a stream group owned by the given peer and returns
	// the group and peer IDs.
	Create(peer Sender, title, description string) (streamID, peerID string)

	// Join adds a peer to an existing group.
	Join(streamID string, peer Sender) (title, peerID string, err error)

	// Relay forwards a frame to targetPeer, or to every other member when
	// targetPeer is empty.
	Relay(streamID, fromPeer, targetPeer string, frame any)

	// Leave removes the peer, notifying remaining members. Empty groups are
	// deleted.
	Leave(streamID, peerID string)
}

// Config carries the session-flow tunables.
type Config struct {
	// SilencePolicy selects the prolonged-silence behaviour. Default manual:
	// a question ends only on an explicit completion signal.
	SilencePolicy config.SilencePolicy

	// SilenceTimeout applies when SilencePolicy is auto. Default 60 s.
	SilenceTimeout time.Duration

	// CodingProblems is how many problems the code phase presents. Default 3.
	CodingProblems int

	// ASRConnectRetries bounds transcription connect attempts. Default 3.
	ASRConnectRetries int

	// ASRRetryInterval is the pause between connect attempts. Default 2 s.
	ASRRetryInterval time.Duration
}

// Deps bundles the collaborators a session needs. Store, Questions, Coding
// and Queue are required; the rest degrade gracefully when nil.
type Deps struct {
	Store     store.Store
	Questions *planner.QuestionPlanner
	Coding    *planner.CodingPlanner
	Queue     scorer.Queue

	// Muxer finalises per-question clips. Nil means no clips.
	Muxer ClipFinalizer

	// Proctor inspects keyframes. Nil disables inspection.
	Proctor FrameInspector

	// ASR opens the live transcription stream. Nil runs the session in
	// degraded mode from the start.
	ASR asr.Client

	// Hub provides stream groups and signalling relay. Nil degrades to a
	// private group.
	Hub Hub

	// Registry is where the session registers itself for scoring callbacks.
	// Nil skips registration.
	Registry *session.Registry

	Metrics *observe.Metrics
	Log     *slog.Logger
}

// currentQuestion is the question the candidate is answering right now.
// Index 0 is the self-introduction; planned question i maps to index i+1.
type currentQuestion struct {
	index  int
	text   string
	points []string
}

// Session is the per-connection orchestrator. Create with [New], drive with
// [Session.Run], feed with [Session.Deliver].
type Session struct {
	id     string
	userID int64
	send   Sender
	deps   Deps
	cfg    Config
	log    *slog.Logger

	inbox chan any
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	// Registry-visible state, readable from any goroutine.
	phase       atomic.Value // interview.Phase
	interviewID atomic.Int64

	// Everything below is owned by the run loop.
	started  bool
	finished bool
	iv       interview.Interview
	resume   interview.Resume

	streamID string
	peerID   string

	nextQ   int // next unasked queue position
	current *currentQuestion

	sentences []string
	buffers   *media.Buffers

	stream asr.Stream

	silenceGen   uint64
	silenceTimer *time.Timer

	problems   []interview.CodingProblem
	problemPos int
}

var _ session.Handle = (*Session)(nil)

// New creates a session for one authenticated client connection. id must be
// unique per connection; userID is the authenticated candidate.
func New(id string, userID int64, send Sender, deps Deps, cfg Config) *Session {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.CodingProblems <= 0 {
		cfg.CodingProblems = defaultCodingProblems
	}
	if cfg.ASRConnectRetries <= 0 {
		cfg.ASRConnectRetries = defaultASRRetries
	}
	if cfg.ASRRetryInterval <= 0 {
		cfg.ASRRetryInterval = defaultASRRetryInterval
	}
	if !cfg.SilencePolicy.IsValid() {
		cfg.SilencePolicy = config.SilenceManual
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Session{
		id:      id,
		userID:  userID,
		send:    send,
		deps:    deps,
		cfg:     cfg,
		log:     log.With("session_id", id),
		inbox:   make(chan any, inboxSize),
		done:    make(chan struct{}),
		buffers: media.NewBuffers(),
	}
	s.phase.Store(interview.PhaseIntro)
	return s
}

// ID implements [session.Handle].
func (s *Session) ID() string { return s.id }

// InterviewID implements [session.Handle]. Zero until create_stream bound an
// interview.
func (s *Session) InterviewID() int64 { return s.interviewID.Load() }

// Phase implements [session.Handle].
func (s *Session) Phase() interview.Phase { return s.phase.Load().(interview.Phase) }

// Deliver implements [session.Handle]. It never blocks: events are dropped
// when the session is shutting down or its inbox is full.
func (s *Session) Deliver(ev any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Run executes the session until the interview finishes, the client
// disconnects, or ctx is cancelled. It is the inbox's only consumer.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.deps.Registry != nil {
		if err := s.deps.Registry.Register(s); err != nil {
			return fmt.Errorf("orchestrator: register session: %w", err)
		}
		defer s.deps.Registry.Remove(s.id)
	}
	s.deps.Metrics.ActiveSessions.Add(ctx, 1)
	defer s.deps.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	defer s.teardown()

	s.emit(ctx, connectionEstablished(s.id))

	var runErr error
	for !s.finished && runErr == nil {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		case ev := <-s.inbox:
			runErr = s.handle(ctx, ev)
		}
	}
	if errors.Is(runErr, errDisconnected) || errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// errDisconnected ends the run loop on client-initiated teardown.
var errDisconnected = errors.New("orchestrator: client disconnected")

func (s *Session) teardown() {
	s.once.Do(func() { close(s.done) })
	s.stopSilenceTimer()
	if s.stream != nil {
		s.stream.Close()
	}
	if s.deps.Hub != nil && s.streamID != "" {
		s.deps.Hub.Leave(s.streamID, s.peerID)
	}
	s.wg.Wait()
}

func (s *Session) handle(ctx context.Context, ev any) error {
	switch ev := ev.(type) {
	case InboundFrame:
		return s.handleFrame(ctx, ev.Data)
	case Disconnected:
		if ev.Err != nil {
			s.log.Info("client transport closed", "error", ev.Err)
		}
		return errDisconnected
	case asrConnected:
		s.stream = ev.stream
		s.startPump(ev.stream)
		s.emit(ctx, asrStatus("connected", textASRConnected))
	case asrFragment:
		s.handleASRFragment(ctx, ev.text)
	case asrFailed:
		if s.stream != nil {
			// The vendor socket and its write loop outlive the error event
			// unless the stream is torn down here.
			s.stream.Close()
			s.stream = nil
		}
		s.emit(ctx, asrStatus("failed", textASRDegraded))
		s.log.Warn("transcription unavailable, continuing degraded", "reason", ev.reason)
	case silenceTimeout:
		return s.handleSilence(ctx, ev.gen)
	case scorer.Completed:
		// Informational only; scoring never gates phase advance.
		s.log.Debug("answer scored", "answer_id", ev.AnswerID, "error", ev.Err)
	default:
		s.log.Warn("dropping unknown inbox event", "event", fmt.Sprintf("%T", ev))
	}
	return nil
}

func (s *Session) handleFrame(ctx context.Context, data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		s.emit(ctx, errorFrame("无效的JSON格式"))
		return nil
	}
	s.deps.Metrics.RecordInbound(ctx, msg.Type)

	switch msg.Type {
	case MsgCreateStream:
		return s.handleCreateStream(ctx, msg)
	case MsgJoinStream:
		s.handleJoinStream(ctx, msg)
	case MsgOffer:
		s.relay(msg.TargetPeer, OfferFrame{Type: MsgOffer, Offer: msg.Offer, PeerID: s.peerID})
	case MsgAnswer:
		s.relay(msg.TargetPeer, AnswerFrame{Type: MsgAnswer, Answer: msg.Answer, PeerID: s.peerID})
	case MsgICECandidate:
		s.relay(msg.TargetPeer, ICECandidateFrame{Type: MsgICECandidate, Candidate: msg.Candidate, PeerID: s.peerID})
	case MsgAudioFrame:
		s.handleAudioFrame(ctx, msg)
	case MsgVideoFrame:
		s.handleVideoFrame(ctx, msg)
	case MsgRequestNextQuestion:
		s.handleSkipQuestion(ctx)
	case MsgAnswerCompleted:
		s.handleAnswerCompleted(ctx, msg.AnswerText)
	case MsgManualAnswerText:
		s.handleManualText(ctx, msg.Text)
	case MsgRequestNextCodingProblem:
		s.handleNextProblem(ctx)
	case MsgSubmitCodingAnswer:
		s.handleCodingSubmission(ctx, msg)
	case MsgDisconnect:
		return errDisconnected
	default:
		s.emit(ctx, errorFrame(fmt.Sprintf("未知的消息类型: %s", msg.Type)))
	}
	return nil
}

// handleCreateStream binds the session to an interview, plans the question
// queue when the stored one is empty, starts the transcription connector, and
// opens the intro phase.
func (s *Session) handleCreateStream(ctx context.Context, msg ClientMessage) error {
	if s.started {
		s.emit(ctx, errorFrame("面试已开始"))
		return nil
	}
	if msg.InterviewID == 0 {
		s.emit(ctx, errorFrame("缺少面试ID"))
		return nil
	}

	iv, err := s.deps.Store.GetInterview(ctx, msg.InterviewID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.emit(ctx, errorFrame("面试记录不存在"))
			return nil
		}
		return fmt.Errorf("orchestrator: load interview: %w", err)
	}
	if iv.UserID != s.userID {
		s.emit(ctx, errorFrame("该面试不属于当前用户"))
		return fmt.Errorf("%w: interview %d not owned by user %d", ErrAuthorization, iv.ID, s.userID)
	}

	resume, err := s.deps.Store.GetResume(ctx, iv.ResumeID)
	if err != nil {
		// Planners fall back to position templates without a résumé.
		s.log.Warn("résumé unavailable, planning without it", "resume_id", iv.ResumeID, "error", err)
	}

	if len(iv.Questions) == 0 {
		pos := planner.Position{
			Name:         iv.PositionName,
			Company:      iv.CompanyName,
			Description:  iv.PositionDescription,
			Requirements: iv.PositionRequirements,
			Type:         iv.PositionType,
		}
		iv.Questions = s.deps.Questions.Plan(ctx, pos, resume)
		if err := s.deps.Store.SetQuestions(ctx, iv.ID, iv.Questions); err != nil {
			s.log.Warn("persisting planned questions failed", "error", err)
		}
	}

	s.started = true
	s.iv = iv
	s.resume = resume
	s.interviewID.Store(iv.ID)

	if s.deps.Hub != nil {
		s.streamID, s.peerID = s.deps.Hub.Create(s.send, msg.Title, msg.Description)
	} else {
		s.streamID, s.peerID = uuid.NewString(), uuid.NewString()
	}

	s.wg.Add(1)
	go s.connectASR(ctx)

	s.emit(ctx, streamCreated(s.streamID, s.peerID))
	s.current = &currentQuestion{index: 0, text: textIntroPrompt}
	s.emit(ctx, interviewMessage(interview.PhaseIntro, textIntroPrompt))
	s.resetSilenceTimer()
	return nil
}

func (s *Session) handleJoinStream(ctx context.Context, msg ClientMessage) {
	if s.deps.Hub == nil {
		s.emit(ctx, errorFrame("面试流不存在"))
		return
	}
	title, peerID, err := s.deps.Hub.Join(msg.StreamID, s.send)
	if err != nil {
		s.emit(ctx, errorFrame("面试流不存在"))
		return
	}
	s.streamID, s.peerID = msg.StreamID, peerID
	s.emit(ctx, streamJoined(msg.StreamID, title))
}

func (s *Session) relay(targetPeer string, frame any) {
	if s.deps.Hub == nil || s.streamID == "" {
		return
	}
	s.deps.Hub.Relay(s.streamID, s.peerID, targetPeer, frame)
}

func (s *Session) handleAudioFrame(ctx context.Context, msg ClientMessage) {
	if !s.answering(ctx) {
		return
	}
	if msg.End {
		if s.stream != nil {
			if err := s.stream.SendEnd(); err != nil {
				s.log.Warn("audio terminator send failed", "error", err)
			}
		}
		return
	}
	chunk, err := base64.StdEncoding.Strict().DecodeString(msg.AudioData)
	if err != nil {
		s.emit(ctx, errorFrame("音频数据编码无效"))
		return
	}
	s.buffers.AppendAudio(chunk)
	if s.stream != nil {
		if err := s.stream.SendAudio(chunk); err != nil {
			s.log.Warn("audio forward failed", "error", err)
		}
	}
}

func (s *Session) handleVideoFrame(ctx context.Context, msg ClientMessage) {
	if !s.started {
		s.emit(ctx, errorFrame("面试尚未开始"))
		return
	}
	frame, err := base64.StdEncoding.Strict().DecodeString(msg.FrameData)
	if err != nil {
		s.emit(ctx, errorFrame("视频帧编码无效"))
		return
	}

	// Observer fan-out sees every frame; only keyframes are snapshotted for
	// the clip and inspected.
	s.relay("", VideoFrameFrame{Type: MsgVideoFrame, FrameData: msg.FrameData, PeerID: s.peerID})
	if msg.FrameType != "" && msg.FrameType != "keyframe" {
		return
	}

	if s.deps.Proctor != nil {
		verdict := s.deps.Proctor.Inspect(ctx, frame)
		s.deps.Metrics.ProctorInspections.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("verdict", verdict.String())))
		switch verdict {
		case proctor.VerdictDecodeError:
			s.emit(ctx, errorFrame("视频帧解码失败"))
			return
		case proctor.VerdictMultiPerson:
			s.deps.Metrics.CheatEvents.Add(ctx, 1)
			s.emit(ctx, cheatDetected())
		}
	}
	s.buffers.AppendFrame(frame)
}

func (s *Session) handleASRFragment(ctx context.Context, text string) {
	s.deps.Metrics.ASRFragments.Add(ctx, 1)
	s.resetSilenceTimer()

	trimmed := strings.TrimSpace(text)
	if trimmed != "" && s.current != nil {
		s.sentences = append(s.sentences, trimmed)
	}
	s.emit(ctx, asrResult(text))

	if asr.DetectCompletion(text) {
		s.completeAnswer(ctx, "")
	}
}

func (s *Session) handleAnswerCompleted(ctx context.Context, manualText string) {
	if !s.answering(ctx) {
		return
	}
	s.completeAnswer(ctx, manualText)
}

func (s *Session) handleManualText(ctx context.Context, text string) {
	if !s.answering(ctx) {
		return
	}
	if strings.TrimSpace(text) == "" {
		s.emit(ctx, errorFrame("缺少回答内容"))
		return
	}
	s.sentences = append(s.sentences, text)
	s.resetSilenceTimer()
	s.emit(ctx, manualAnswerReceived())
}

// handleSkipQuestion advances the queue without writing an answer.
func (s *Session) handleSkipQuestion(ctx context.Context) {
	if !s.answering(ctx) {
		return
	}
	s.clearAnswerState()
	if s.nextQ >= len(s.iv.Questions) {
		s.enterCode(ctx)
		return
	}
	q := s.iv.Questions[s.nextQ]
	s.current = &currentQuestion{index: s.nextQ + 1, text: q.Question, points: q.KnowledgePoints}
	s.nextQ++
	s.setPhase(interview.PhaseQuestion)
	s.emit(ctx, nextQuestion(q.Question))
	s.resetSilenceTimer()
}

func (s *Session) handleSilence(ctx context.Context, gen uint64) error {
	if gen != s.silenceGen || s.cfg.SilencePolicy != config.SilenceAuto {
		return nil
	}
	switch s.Phase() {
	case interview.PhaseIntro, interview.PhaseQuestion:
		s.completeAnswer(ctx, "")
	}
	return nil
}

// completeAnswer flushes the current answer and advances: next question, or
// the code phase when the queue is exhausted. manualText, when non-empty,
// overrides the accumulated fragments.
func (s *Session) completeAnswer(ctx context.Context, manualText string) {
	if s.current == nil {
		return
	}
	s.flushAnswer(ctx, manualText)
	s.askNext(ctx)
}

// flushAnswer persists the current answer, finalises its clip, and enqueues
// the scoring job, then clears all per-question state. The store write and
// the enqueue happen back to back on the run loop, so a worker can never see
// a job whose answer is missing.
func (s *Session) flushAnswer(ctx context.Context, manualText string) {
	cur := s.current
	defer s.clearAnswerState()

	text := manualText
	if text == "" {
		text = strings.Join(s.sentences, "\n")
	}
	if strings.TrimSpace(text) == "" {
		text = placeholderAnswer
	}

	audio, frames := s.buffers.Flush()
	var clipPath string
	if s.deps.Muxer != nil && (len(audio) > 0 || len(frames) > 0) {
		start := time.Now()
		path, err := s.deps.Muxer.Finalize(ctx, s.id, cur.index, audio, frames)
		s.deps.Metrics.MuxDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			s.log.Warn("clip finalisation failed", "question_index", cur.index, "error", err)
		}
		clipPath = path
	}

	a := interview.Answer{
		ID:              uuid.New(),
		InterviewID:     s.iv.ID,
		QuestionIndex:   cur.index,
		Question:        cur.text,
		Text:            text,
		KnowledgePoints: cur.points,
		ClipPath:        clipPath,
		Scores:          interview.NeutralRubric(),
	}
	stored, created, err := s.deps.Store.CreateAnswer(ctx, a)
	if err != nil {
		// The phase still advances: trapping the candidate on a dead store
		// helps nobody.
		s.log.Error("answer write failed", "question_index", cur.index, "error", err)
		s.emit(ctx, errorFrame("回答保存失败"))
		return
	}
	if !created {
		return
	}
	s.deps.Metrics.AnswersFlushed.Add(ctx, 1)

	job := scorer.Job{AnswerID: stored.ID, ClipPath: stored.ClipPath, SessionID: s.id}
	if err := s.deps.Queue.Enqueue(ctx, job); err != nil {
		s.log.Warn("scoring enqueue failed, answer keeps neutral scores", "answer_id", stored.ID, "error", err)
	}
}

func (s *Session) clearAnswerState() {
	s.current = nil
	s.sentences = nil
	s.buffers.Flush()
	s.stopSilenceTimer()
}

// askNext emits the next planned question, or enters the code phase when the
// queue is exhausted. Buffers must already be clear.
func (s *Session) askNext(ctx context.Context) {
	if s.nextQ >= len(s.iv.Questions) {
		s.enterCode(ctx)
		return
	}
	q := s.iv.Questions[s.nextQ]
	s.current = &currentQuestion{index: s.nextQ + 1, text: q.Question, points: q.KnowledgePoints}
	s.nextQ++
	s.setPhase(interview.PhaseQuestion)
	s.emit(ctx, interviewMessage(interview.PhaseQuestion, q.Question))
	s.resetSilenceTimer()
}

func (s *Session) enterCode(ctx context.Context) {
	s.setPhase(interview.PhaseCode)
	s.emit(ctx, interviewMessage(interview.PhaseCode, textCodePhase))

	problems, err := s.deps.Coding.Select(ctx, s.iv.PositionType, s.resume, s.cfg.CodingProblems)
	if err != nil {
		s.log.Error("coding problem selection failed", "error", err)
	}
	s.problems = problems
	s.problemPos = 0
	if len(s.problems) == 0 {
		s.finish(ctx)
		return
	}
	s.emit(ctx, codingProblem(s.problems[0]))
}

func (s *Session) handleNextProblem(ctx context.Context) {
	if s.Phase() != interview.PhaseCode {
		s.emit(ctx, errorFrame("当前阶段没有代码题"))
		return
	}
	s.problemPos++
	if s.problemPos >= len(s.problems) {
		s.finish(ctx)
		return
	}
	s.emit(ctx, codingProblem(s.problems[s.problemPos]))
}

func (s *Session) handleCodingSubmission(ctx context.Context, msg ClientMessage) {
	if s.Phase() != interview.PhaseCode || s.problemPos >= len(s.problems) {
		s.emit(ctx, errorFrame("当前阶段无法提交代码"))
		return
	}
	if strings.TrimSpace(msg.Code) == "" {
		s.emit(ctx, errorFrame("缺少代码内容"))
		return
	}
	ca := interview.CodingAnswer{
		ID:          uuid.New(),
		InterviewID: s.iv.ID,
		ProblemID:   s.problems[s.problemPos].ID,
		Code:        msg.Code,
		Language:    msg.Language,
	}
	if _, _, err := s.deps.Store.CreateCodingAnswer(ctx, ca); err != nil {
		s.log.Error("coding answer write failed", "problem_id", ca.ProblemID, "error", err)
		s.emit(ctx, errorFrame("代码保存失败"))
		return
	}
	s.emit(ctx, codingAnswerSubmitted())
}

func (s *Session) finish(ctx context.Context) {
	s.setPhase(interview.PhaseFinished)
	s.finished = true
	if err := s.deps.Store.MarkCompleted(ctx, s.iv.ID); err != nil {
		s.log.Error("marking interview completed failed", "interview_id", s.iv.ID, "error", err)
	}
	s.emit(ctx, interviewFinished())
}

// answering reports whether the session is in a phase that accepts answer
// material, emitting the protocol error when it is not.
func (s *Session) answering(ctx context.Context) bool {
	if !s.started {
		s.emit(ctx, errorFrame("面试尚未开始"))
		return false
	}
	switch s.Phase() {
	case interview.PhaseIntro, interview.PhaseQuestion:
		return true
	}
	s.emit(ctx, errorFrame("当前阶段无法作答"))
	return false
}

// setPhase advances the observable phase. Backwards transitions are a bug;
// they are refused and logged rather than corrupting the monotone chain.
func (s *Session) setPhase(next interview.Phase) {
	cur := s.Phase()
	if !cur.CanAdvanceTo(next) {
		s.log.Error("refusing backwards phase transition", "from", cur, "to", next)
		return
	}
	s.phase.Store(next)
}

func (s *Session) emit(ctx context.Context, frame any) {
	if err := s.send.Send(ctx, frame); err != nil {
		s.log.Warn("frame send failed", "error", err)
	}
}

// connectASR dials the transcription vendor with bounded retries, handing the
// stream to the run loop on success. All retries exhausted means degraded
// mode for the rest of the session.
func (s *Session) connectASR(ctx context.Context) {
	defer s.wg.Done()
	if s.deps.ASR == nil {
		s.Deliver(asrFailed{reason: "no transcription vendor configured"})
		return
	}
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ASRConnectRetries; attempt++ {
		stream, err := s.deps.ASR.Connect(ctx)
		if err == nil {
			s.deps.Metrics.ASRConnectAttempts.Add(ctx, 1, metric.WithAttributes(observe.Attr("status", "ok")))
			if !s.Deliver(asrConnected{stream: stream}) {
				stream.Close()
			}
			return
		}
		s.deps.Metrics.ASRConnectAttempts.Add(ctx, 1, metric.WithAttributes(observe.Attr("status", "failed")))
		lastErr = err
		s.log.Warn("transcription connect failed", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-time.After(s.cfg.ASRRetryInterval):
		}
	}
	s.Deliver(asrFailed{reason: fmt.Sprintf("connect failed after %d attempts: %v", s.cfg.ASRConnectRetries, lastErr)})
}

// startPump drains the stream's events into the inbox until the stream ends.
func (s *Session) startPump(stream asr.Stream) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range stream.Events() {
			if ev.Err != nil {
				s.Deliver(asrFailed{reason: ev.Err.Error()})
				return
			}
			s.Deliver(asrFragment{text: ev.Text})
		}
	}()
}

func (s *Session) resetSilenceTimer() {
	if s.cfg.SilencePolicy != config.SilenceAuto {
		return
	}
	s.stopSilenceTimer()
	s.silenceGen++
	gen := s.silenceGen
	s.silenceTimer = time.AfterFunc(s.cfg.SilenceTimeout, func() {
		s.Deliver(silenceTimeout{gen: gen})
	})
}

func (s *Session) stopSilenceTimer() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.silenceGen++
}
