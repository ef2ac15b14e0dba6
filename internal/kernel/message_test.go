package kernel

import (
	"encoding/json"
	"testing"
)

func TestDecodeStreamFrame(t *testing.T) {
	raw := `{"channel":"iopub","header":{"msg_id":"m1","msg_type":"stream"},"parent_header":{"msg_id":"p1"},"content":{"name":"stdout","text":"hello\n"}}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}

	if msg.Channel != ChannelIOPub {
		t.Errorf("expected channel iopub, got %s", msg.Channel)
	}
	if msg.ParentID() != "p1" {
		t.Errorf("expected parent p1, got %s", msg.ParentID())
	}

	stream, err := msg.Stream()
	if err != nil {
		t.Fatalf("decode stream content: %v", err)
	}
	if stream.Name != "stdout" || stream.Text != "hello\n" {
		t.Errorf("unexpected stream content: %+v", stream)
	}
}

func TestDecodeDisplayPreservesOrder(t *testing.T) {
	raw := `{"channel":"iopub","header":{"msg_id":"m2","msg_type":"execute_result"},"parent_header":{"msg_id":"p1"},"content":{"data":[{"mime":"text/plain","data":"1"},{"mime":"text/html","data":"<b>1</b>"}]}}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}

	display, err := msg.Display()
	if err != nil {
		t.Fatalf("decode display content: %v", err)
	}
	if len(display.Data) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(display.Data))
	}
	if display.Data[0].Mime != "text/plain" || display.Data[1].Mime != "text/html" {
		t.Errorf("mime order not preserved: %+v", display.Data)
	}
}

func TestDecodeErrorFrame(t *testing.T) {
	raw := `{"channel":"iopub","header":{"msg_id":"m3","msg_type":"error"},"parent_header":{"msg_id":"p1"},"content":{"ename":"ZeroDivisionError","evalue":"division by zero","traceback":["line1","line2"]}}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}

	ec, err := msg.Err()
	if err != nil {
		t.Fatalf("decode error content: %v", err)
	}
	if ec.EName != "ZeroDivisionError" || ec.EValue != "division by zero" {
		t.Errorf("unexpected error content: %+v", ec)
	}
	if len(ec.Traceback) != 2 {
		t.Errorf("expected 2 traceback lines, got %d", len(ec.Traceback))
	}
}

func TestNewExecuteRequest(t *testing.T) {
	msg, err := NewExecuteRequest("x = 1", false)
	if err != nil {
		t.Fatalf("NewExecuteRequest: %v", err)
	}

	if msg.Channel != ChannelShell {
		t.Errorf("expected shell channel, got %s", msg.Channel)
	}
	if msg.Header.MsgType != MsgTypeExecuteRequest {
		t.Errorf("expected execute_request, got %s", msg.Header.MsgType)
	}
	if msg.Header.MsgID == "" {
		t.Error("expected a message id")
	}

	var content ExecuteRequestContent
	if err := json.Unmarshal(msg.Content, &content); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	if content.Code != "x = 1" || content.Silent {
		t.Errorf("unexpected content: %+v", content)
	}

	other, err := NewExecuteRequest("x = 1", false)
	if err != nil {
		t.Fatalf("NewExecuteRequest: %v", err)
	}
	if other.Header.MsgID == msg.Header.MsgID {
		t.Error("expected distinct message ids per request")
	}
}
