package gorpc

import (
	"bytes"
	"errors"
	"testing"
)

func TestParamRoundTrip(t *testing.T) {
	cases := []Param{
		{Type: 1, Data: nil},
		{Type: 2, Data: []byte{}},
		{Type: 3, Data: []byte("x")},
		{Type: 4, Data: []byte("four")},
		{Type: 5, Data: bytes.Repeat([]byte("ab"), 1000)},
	}
	for _, p := range cases {
		var buf bytes.Buffer
		if err := EncodeParam(&buf, p); err != nil {
			t.Fatalf("EncodeParam(%+v): %v", p, err)
		}
		got, err := DecodeParam(&buf, 0)
		if err != nil {
			t.Fatalf("DecodeParam after Encode(%+v): %v", p, err)
		}
		if got.Type != p.Type || !bytes.Equal(got.Data, p.Data) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
		}
	}
}

func TestDecodeParamRejectsOversizedFragment(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeParam(&buf, Param{Type: 1, Data: bytes.Repeat([]byte("z"), 100)}); err != nil {
		t.Fatalf("EncodeParam: %v", err)
	}
	_, err := DecodeParam(&buf, 8)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("got %v, want ErrDecode", err)
	}
}

func TestDecodeParamRejectsTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeParam(&buf, Param{Type: 1, Data: []byte("hello")}); err != nil {
		t.Fatalf("EncodeParam: %v", err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	if _, err := DecodeParam(truncated, 0); err == nil {
		t.Fatal("expected error decoding truncated frame")
	}
}

func TestCallReplyEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	call := callEnvelope{Proc: ProcCall, In: Param{Type: 7, Data: []byte("payload")}}
	if err := encodeCall(&buf, call); err != nil {
		t.Fatalf("encodeCall: %v", err)
	}
	got, err := decodeCall(&buf, 0)
	if err != nil {
		t.Fatalf("decodeCall: %v", err)
	}
	if got.Proc != call.Proc || got.In.Type != call.In.Type || !bytes.Equal(got.In.Data, call.In.Data) {
		t.Fatalf("call round trip mismatch: got %+v, want %+v", got, call)
	}

	buf.Reset()
	reply := replyEnvelope{Stat: acceptSuccess, Out: Param{Type: 7, Data: []byte("reply")}}
	if err := encodeReply(&buf, reply); err != nil {
		t.Fatalf("encodeReply: %v", err)
	}
	gotReply, err := decodeReply(&buf, 0)
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if gotReply.Stat != reply.Stat || !bytes.Equal(gotReply.Out.Data, reply.Out.Data) {
		t.Fatalf("reply round trip mismatch: got %+v, want %+v", gotReply, reply)
	}
}
