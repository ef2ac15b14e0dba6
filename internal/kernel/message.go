package kernel

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Channels multiplexed over the kernel pipe. The shell channel carries
// requests and replies; iopub carries streamed output, rich display data,
// errors, and status transitions.
const (
	ChannelShell = "shell"
	ChannelIOPub = "iopub"
)

// Message types understood by the session pump.
const (
	MsgTypeKernelInfoRequest = "kernel_info_request"
	MsgTypeKernelInfoReply   = "kernel_info_reply"
	MsgTypeExecuteRequest    = "execute_request"
	MsgTypeExecuteReply      = "execute_reply"
	MsgTypeStream            = "stream"
	MsgTypeError             = "error"
	MsgTypeExecuteResult     = "execute_result"
	MsgTypeDisplayData       = "display_data"
	MsgTypeStatus            = "status"
)

// Header identifies a message and its type.
type Header struct {
	MsgID   string `json:"msg_id"`
	MsgType string `json:"msg_type"`
}

// Message is one frame on the kernel wire. Replies and published output
// reference the request that caused them through Parent; that reference
// is the only thing tying asynchronous iopub traffic to a submission.
type Message struct {
	Channel string          `json:"channel"`
	Header  Header          `json:"header"`
	Parent  Header          `json:"parent_header"`
	Content json.RawMessage `json:"content"`
}

// ParentID returns the msg_id of the originating request, or "".
func (m *Message) ParentID() string {
	return m.Parent.MsgID
}

// StreamContent is the payload of a stream message.
type StreamContent struct {
	Name string `json:"name"` // "stdout" or "stderr"
	Text string `json:"text"`
}

// ErrorContent is the payload of an error message.
type ErrorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// MimeData is one media representation inside a display payload. Data is
// a string for text and base64 image types and arbitrary JSON otherwise.
type MimeData struct {
	Mime string `json:"mime"`
	Data any    `json:"data"`
}

// DisplayContent is the payload of execute_result and display_data
// messages. The kernel emits Data as an array so that the emission order
// of media representations survives transport.
type DisplayContent struct {
	Data []MimeData `json:"data"`
}

// StatusContent is the payload of a status message.
type StatusContent struct {
	ExecutionState string `json:"execution_state"`
}

// ExecuteReplyContent is the payload of an execute_reply message.
type ExecuteReplyContent struct {
	Status string `json:"status"`
}

// ExecuteRequestContent is the payload of an execute_request message.
// Silent submissions skip history, the display hook, and the kernel-side
// execution counter.
type ExecuteRequestContent struct {
	Code   string `json:"code"`
	Silent bool   `json:"silent"`
}

func (m *Message) decodeContent(v any) error {
	if len(m.Content) == 0 {
		return fmt.Errorf("kernel: %s message has no content", m.Header.MsgType)
	}
	if err := json.Unmarshal(m.Content, v); err != nil {
		return fmt.Errorf("kernel: decode %s content: %w", m.Header.MsgType, err)
	}
	return nil
}

// Stream decodes the message as a stream payload.
func (m *Message) Stream() (StreamContent, error) {
	var c StreamContent
	err := m.decodeContent(&c)
	return c, err
}

// Err decodes the message as an error payload.
func (m *Message) Err() (ErrorContent, error) {
	var c ErrorContent
	err := m.decodeContent(&c)
	return c, err
}

// Display decodes the message as an execute_result or display_data
// payload.
func (m *Message) Display() (DisplayContent, error) {
	var c DisplayContent
	err := m.decodeContent(&c)
	return c, err
}

// Status decodes the message as a status payload.
func (m *Message) Status() (StatusContent, error) {
	var c StatusContent
	err := m.decodeContent(&c)
	return c, err
}

func newRequest(msgType string, content any) (Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Message{}, fmt.Errorf("kernel: marshal %s content: %w", msgType, err)
	}
	return Message{
		Channel: ChannelShell,
		Header:  Header{MsgID: uuid.NewString(), MsgType: msgType},
		Content: raw,
	}, nil
}

// NewExecuteRequest builds an execute_request with a fresh message id.
func NewExecuteRequest(code string, silent bool) (Message, error) {
	return newRequest(MsgTypeExecuteRequest, ExecuteRequestContent{Code: code, Silent: silent})
}

// NewKernelInfoRequest builds the readiness-probe request.
func NewKernelInfoRequest() (Message, error) {
	return newRequest(MsgTypeKernelInfoRequest, struct{}{})
}
