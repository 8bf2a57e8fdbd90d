package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mianlab/koushi/internal/interview"
)

// Sentinel error kinds for the message channel. ErrClientProtocol covers
// malformed frames the session answers with an error frame and survives;
// ErrAuthorization closes the session.
var (
	ErrClientProtocol = errors.New("orchestrator: client protocol error")
	ErrAuthorization  = errors.New("orchestrator: authorization error")
)

// Client → server message types.
const (
	MsgCreateStream             = "create_stream"
	MsgJoinStream               = "join_stream"
	MsgOffer                    = "offer"
	MsgAnswer                   = "answer"
	MsgICECandidate             = "ice_candidate"
	MsgAudioFrame               = "audio_frame"
	MsgVideoFrame               = "video_frame"
	MsgRequestNextQuestion      = "request_next_question"
	MsgAnswerCompleted          = "answer_completed"
	MsgManualAnswerText         = "manual_answer_text"
	MsgRequestNextCodingProblem = "request_next_coding_problem"
	MsgSubmitCodingAnswer       = "submit_coding_answer"
	MsgDisconnect               = "disconnect"
)

// Interviewer scripted texts. All candidate-visible strings are Chinese.
const (
	textIntroPrompt   = "请开始自我介绍吧"
	textCodePhase     = "问答环节结束，下面进入代码题环节。"
	textFinished      = "面试已结束,感谢你的参与!"
	textCheatDetected = "检测到画面中出现多人，请独立完成面试。"
	textASRDegraded   = "语音识别暂不可用，请使用文字作答。"
	textASRConnected  = "语音识别已连接"
	textManualAck     = "已收到你的文字回答"

	// placeholderAnswer stands in when a question completes with neither
	// transcription fragments nor manual text.
	placeholderAnswer = "（未作答）"
)

// ClientMessage is the union of every client → server frame. Type selects
// which of the remaining fields are meaningful.
type ClientMessage struct {
	Type string `json:"type"`

	// create_stream / join_stream
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	InterviewID int64  `json:"interview_id,omitempty"`
	StreamID    string `json:"stream_id,omitempty"`

	// WebRTC signalling. Payloads are opaque; the server never parses SDP.
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	TargetPeer string          `json:"target_peer,omitempty"`

	// audio_frame
	AudioData string `json:"audio_data,omitempty"`
	End       bool   `json:"end,omitempty"`

	// video_frame
	FrameData string `json:"frame_data,omitempty"`
	FrameType string `json:"frame_type,omitempty"`

	// answer_completed
	AnswerText string `json:"answer_text,omitempty"`

	// manual_answer_text
	Text string `json:"text,omitempty"`

	// submit_coding_answer
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

// ParseClientMessage decodes one inbound frame. Malformed JSON and frames
// without a type are [ErrClientProtocol] errors.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: invalid JSON: %v", ErrClientProtocol, err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing message type", ErrClientProtocol)
	}
	return msg, nil
}

// Server → client frames. Each frame carries its own type tag so senders can
// marshal them directly.

// ConnectionEstablishedFrame greets a freshly accepted client.
type ConnectionEstablishedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func connectionEstablished(sessionID string) ConnectionEstablishedFrame {
	return ConnectionEstablishedFrame{Type: "connection_established", SessionID: sessionID, Text: "连接已建立"}
}

// StreamCreatedFrame acknowledges create_stream with the allocated IDs.
type StreamCreatedFrame struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	PeerID   string `json:"peer_id"`
}

func streamCreated(streamID, peerID string) StreamCreatedFrame {
	return StreamCreatedFrame{Type: "stream_created", StreamID: streamID, PeerID: peerID}
}

// StreamJoinedFrame acknowledges join_stream.
type StreamJoinedFrame struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

func streamJoined(streamID, title string) StreamJoinedFrame {
	return StreamJoinedFrame{Type: "stream_joined", StreamID: streamID, Title: title, Text: "已加入面试流"}
}

// InterviewMessageFrame carries interviewer speech: the intro prompt, each
// question, and phase-transition notices.
type InterviewMessageFrame struct {
	Type  string `json:"type"`
	Phase string `json:"phase"`
	Text  string `json:"text"`
}

func interviewMessage(phase interview.Phase, text string) InterviewMessageFrame {
	return InterviewMessageFrame{Type: "interview_message", Phase: string(phase), Text: text}
}

// NextQuestionFrame answers an explicit request_next_question skip.
type NextQuestionFrame struct {
	Type     string `json:"type"`
	Question string `json:"question"`
}

func nextQuestion(question string) NextQuestionFrame {
	return NextQuestionFrame{Type: "next_question", Question: question}
}

// ASRResultFrame echoes one transcription fragment to the client.
type ASRResultFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func asrResult(text string) ASRResultFrame {
	return ASRResultFrame{Type: "asr_result", Text: text}
}

// ASRStatusFrame reports transcription connectivity.
type ASRStatusFrame struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func asrStatus(status, message string) ASRStatusFrame {
	return ASRStatusFrame{Type: "asr_status", Status: status, Message: message}
}

// CheatDetectedFrame warns the candidate about a proctoring violation.
type CheatDetectedFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func cheatDetected() CheatDetectedFrame {
	return CheatDetectedFrame{Type: "cheat_detected", Text: textCheatDetected}
}

// ProblemPayload is the client-visible projection of a coding problem.
type ProblemPayload struct {
	ID          int64                     `json:"id"`
	Number      int                       `json:"number"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Difficulty  string                    `json:"difficulty"`
	Tags        []string                  `json:"tags"`
	Example     *interview.ProblemExample `json:"example,omitempty"`
}

// CodingProblemFrame presents one coding problem.
type CodingProblemFrame struct {
	Type    string         `json:"type"`
	Phase   string         `json:"phase"`
	Problem ProblemPayload `json:"problem"`
}

func codingProblem(p interview.CodingProblem) CodingProblemFrame {
	payload := ProblemPayload{
		ID:          p.ID,
		Number:      p.Number,
		Title:       p.Title,
		Description: p.Description,
		Difficulty:  string(p.Difficulty),
		Tags:        p.Tags,
	}
	if len(p.Examples) > 0 {
		payload.Example = &p.Examples[0]
	}
	return CodingProblemFrame{Type: "coding_problem", Phase: string(interview.PhaseCode), Problem: payload}
}

// CodingAnswerSubmittedFrame acknowledges a coding submission.
type CodingAnswerSubmittedFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func codingAnswerSubmitted() CodingAnswerSubmittedFrame {
	return CodingAnswerSubmittedFrame{Type: "coding_answer_submitted", Text: "代码已提交"}
}

// ManualAnswerReceivedFrame acknowledges manual_answer_text.
type ManualAnswerReceivedFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func manualAnswerReceived() ManualAnswerReceivedFrame {
	return ManualAnswerReceivedFrame{Type: "manual_answer_received", Text: textManualAck}
}

// InterviewFinishedFrame ends the interview.
type InterviewFinishedFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func interviewFinished() InterviewFinishedFrame {
	return InterviewFinishedFrame{Type: "interview_finished", Text: textFinished}
}

// ErrorFrame reports a recoverable problem to the client.
type ErrorFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func errorFrame(text string) ErrorFrame {
	return ErrorFrame{Type: "error", Text: text}
}

// Signalling relay frames. Payloads pass through verbatim; PeerID names the
// originating peer so receivers can route their replies.

// OfferFrame relays a WebRTC offer.
type OfferFrame struct {
	Type   string          `json:"type"`
	Offer  json.RawMessage `json:"offer"`
	PeerID string          `json:"peer_id"`
}

// AnswerFrame relays a WebRTC answer.
type AnswerFrame struct {
	Type   string          `json:"type"`
	Answer json.RawMessage `json:"answer"`
	PeerID string          `json:"peer_id"`
}

// ICECandidateFrame relays one ICE candidate.
type ICECandidateFrame struct {
	Type      string          `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
	PeerID    string          `json:"peer_id"`
}

// VideoFrameFrame fans a candidate's video frame out to observers.
type VideoFrameFrame struct {
	Type      string `json:"type"`
	FrameData string `json:"frame_data"`
	PeerID    string `json:"peer_id"`
}

// PeerLeftFrame notifies remaining group members of a departure.
type PeerLeftFrame struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}
