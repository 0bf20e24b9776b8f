package gorpc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vkardon/proto-rpc/adapter"
)

// Program identity and procedure numbers. Only the procedure number is
// carried on the wire (see callEnvelope); ProgramNumber and ProgramVersion
// are not transmitted or checked by either side. No portmapper is involved.
const (
	ProgramNumber  int32 = 0x2FFFFFFF
	ProgramVersion int32 = 1

	ProcNull int32 = 0 // null-probe, replies with an empty body
	ProcCall int32 = 1 // carries the user Param
)

// acceptStat mirrors ONC RPC's accept_stat: how the server disposed of a
// call, distinct from the Param payload itself.
type acceptStat int32

const (
	acceptSuccess     acceptStat = 0
	acceptProcUnavail acceptStat = 1 // "no such procedure"
	acceptSystemErr   acceptStat = 2 // user OnCall returned false
)

// callEnvelope is one client->server message: the procedure number
// followed by the user Param, carried as a single XDR record.
type callEnvelope struct {
	Proc int32
	In   Param
}

func encodeCall(w io.Writer, c callEnvelope) error {
	body := binary.BigEndian.AppendUint32(nil, uint32(c.Proc))
	body, err := marshalParam(body, c.In)
	if err != nil {
		return err
	}
	return writeRecord(w, body)
}

func decodeCall(r io.Reader, maxFragmentSize uint32) (callEnvelope, error) {
	body, err := readRecord(r, maxFragmentSize)
	if err != nil {
		return callEnvelope{}, err
	}
	if len(body) < 4 {
		return callEnvelope{}, fmt.Errorf("%w: truncated call header", ErrDecode)
	}
	proc := int32(binary.BigEndian.Uint32(body[0:4]))
	in, consumed, err := unmarshalParam(body[4:])
	if err != nil {
		return callEnvelope{}, err
	}
	if consumed != len(body)-4 {
		return callEnvelope{}, fmt.Errorf("%w: trailing bytes after call", ErrDecode)
	}
	return callEnvelope{Proc: proc, In: in}, nil
}

// replyEnvelope is one server->client message: the accept status followed
// by the user Param (empty on any non-success status).
type replyEnvelope struct {
	Stat acceptStat
	Out  Param
}

func encodeReply(w io.Writer, r replyEnvelope) error {
	body := binary.BigEndian.AppendUint32(nil, uint32(r.Stat))
	body, err := marshalParam(body, r.Out)
	if err != nil {
		return err
	}
	return writeRecord(w, body)
}

func decodeReply(r io.Reader, maxFragmentSize uint32) (replyEnvelope, error) {
	body, err := readRecord(r, maxFragmentSize)
	if err != nil {
		return replyEnvelope{}, err
	}
	if len(body) < 4 {
		return replyEnvelope{}, fmt.Errorf("%w: truncated reply header", ErrDecode)
	}
	stat := acceptStat(int32(binary.BigEndian.Uint32(body[0:4])))
	out, consumed, err := unmarshalParam(body[4:])
	if err != nil {
		return replyEnvelope{}, err
	}
	if consumed != len(body)-4 {
		return replyEnvelope{}, fmt.Errorf("%w: trailing bytes after reply", ErrDecode)
	}
	return replyEnvelope{Stat: stat, Out: out}, nil
}

// Status is the client-visible outcome of a call. It is defined in
// adapter (which gorpc already depends on for DialerFunc) so that
// adapter.Client's CallBytes signature and gorpc's own callers share one
// type without adapter importing gorpc back.
type Status = adapter.Status

const (
	StatusSuccess     = adapter.StatusSuccess
	StatusCantSend    = adapter.StatusCantSend
	StatusCantRecv    = adapter.StatusCantRecv
	StatusTimedOut    = adapter.StatusTimedOut
	StatusDecodeError = adapter.StatusDecodeError
	StatusFailed      = adapter.StatusFailed
)
