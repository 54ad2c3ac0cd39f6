package dispatcher

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/registry"
	"parley/pkg/protocol"
)

// Recorder appends lifecycle events to the advisory journal. Implementations
// must not block; routing never waits on the journal.
type Recorder interface {
	Record(kind, user, detail string)
}

// Dispatcher applies the protocol state machine to inbound frames: register,
// relay, query, presence, disconnect. It owns no session state of its own;
// everything lives in the registry and is reached through lookups keyed by
// the transport handle, never by the frame's sender field.
type Dispatcher struct {
	registry *registry.Registry
	journal  Recorder
	logger   *slog.Logger
}

// New builds a dispatcher. journal may be nil to run without the lifecycle
// journal.
func New(reg *registry.Registry, journal Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		journal:  journal,
		logger:   logger,
	}
}

// Dispatch handles one inbound text frame from conn and reports whether the
// transport should be closed afterwards. Frames that fail to decode are
// dropped without a reply, the sender field of a broken frame cannot be
// trusted.
func (d *Dispatcher) Dispatch(conn registry.Conn, data []byte) bool {
	req, err := protocol.Decode(data)
	if err != nil {
		d.logger.Debug("dropping malformed frame", "remote", conn.RemoteAddr(), "error", err)
		return false
	}

	sess, registered := d.registry.LookupConn(conn)

	if req.Type == protocol.KindRegister {
		if registered {
			// The frame is dropped; the live session is untouched.
			d.sendError(conn, protocol.ErrTextAlreadyRegistered)
			return false
		}
		return d.handleRegister(conn, req)
	}

	if !registered {
		d.sendError(conn, protocol.ErrTextNotRegistered)
		return true
	}

	// Any decodable frame from a registered session counts as activity,
	// including unknown kinds. Activity never re-promotes status.
	sess.Touch(time.Now())

	switch req.Type {
	case protocol.KindBroadcast:
		d.handleBroadcast(sess, req)
	case protocol.KindPrivate:
		d.handlePrivate(sess, req)
	case protocol.KindListUsers:
		d.handleListUsers(sess)
	case protocol.KindUserInfo:
		d.handleUserInfo(sess, req)
	case protocol.KindChangeStatus:
		d.handleChangeStatus(sess, req)
	case protocol.KindDisconnect:
		d.handleDisconnect(conn)
		return true
	default:
		d.sendError(conn, protocol.ErrTextUnknownCommand)
	}
	return false
}

// Drop tears down whatever session conn still carries. It is the cleanup
// path for transports that died without a disconnect frame and is idempotent
// with handleDisconnect, so a session departs at most once.
func (d *Dispatcher) Drop(conn registry.Conn) {
	sess, ok := d.registry.Remove(conn)
	if !ok {
		return
	}
	d.logger.Info("session closed", "user", sess.Name, "remote", sess.RemoteAddr)
	d.record("disconnect", sess.Name, "transport closed")
	d.fanOut(&protocol.Response{
		Type:    protocol.KindUserDisconnected,
		Sender:  protocol.SenderServer,
		Content: fmt.Sprintf(protocol.NoticeUserLeftFmt, sess.Name),
	}, nil)
}

// handleRegister creates the session and announces it. The reply carries the
// full name list, self included; everyone else gets the arrival notice.
// Registration failures answer with an error frame and close the transport.
func (d *Dispatcher) handleRegister(conn registry.Conn, req *protocol.Request) bool {
	name := req.Sender
	if !protocol.IsValidName(name) {
		d.sendError(conn, protocol.ErrTextInvalidName)
		return true
	}

	sess, err := d.registry.Register(name, conn)
	if errors.Is(err, registry.ErrAlreadyRegistered) {
		d.sendError(conn, protocol.ErrTextAlreadyRegistered)
		return false
	}
	if err != nil {
		if errors.Is(err, registry.ErrNameTaken) {
			d.sendError(conn, protocol.ErrTextNameTaken)
		} else {
			d.logger.Error("register failed", "user", name, "error", err)
			d.sendError(conn, protocol.ErrTextInvalidName)
		}
		return true
	}

	d.logger.Info("session registered", "user", name, "remote", sess.RemoteAddr)
	d.record("register", name, sess.RemoteAddr)

	d.send(conn, &protocol.Response{
		Type:    protocol.KindRegisterSuccess,
		Sender:  protocol.SenderServer,
		Content: d.registry.Names(),
	})
	d.fanOut(&protocol.Response{
		Type:    protocol.KindBroadcast,
		Sender:  protocol.SenderServer,
		Content: protocol.NoticeNewUser,
	}, conn)
	return false
}

// handleBroadcast relays the payload to every live session, the sender
// included. The outbound sender is the session name, not the frame field.
func (d *Dispatcher) handleBroadcast(sess *registry.Session, req *protocol.Request) {
	d.fanOut(&protocol.Response{
		Type:    protocol.KindBroadcast,
		Sender:  sess.Name,
		Content: req.Text(),
	}, nil)
}

// handlePrivate delivers to the named target only. Loopback to oneself is
// allowed; an unknown target answers the sender with an error frame and the
// session continues.
func (d *Dispatcher) handlePrivate(sess *registry.Session, req *protocol.Request) {
	target, ok := d.registry.LookupName(req.Target)
	if !ok {
		d.sendError(sess.Conn, protocol.ErrTextUserNotFound)
		return
	}
	d.send(target.Conn, &protocol.Response{
		Type:    protocol.KindPrivate,
		Sender:  sess.Name,
		Target:  target.Name,
		Content: req.Text(),
	})
}

func (d *Dispatcher) handleListUsers(sess *registry.Session) {
	d.send(sess.Conn, &protocol.Response{
		Type:    protocol.KindListUsersResponse,
		Sender:  protocol.SenderServer,
		Content: d.registry.Names(),
	})
}

// handleUserInfo answers with the target's address and status. An unknown
// target still gets a user_info_response, with the not-found text as
// content; that is the shape deployed clients parse.
func (d *Dispatcher) handleUserInfo(sess *registry.Session, req *protocol.Request) {
	resp := &protocol.Response{
		Type:   protocol.KindUserInfoResponse,
		Sender: protocol.SenderServer,
		Target: req.Target,
	}
	if target, ok := d.registry.LookupName(req.Target); ok {
		resp.Content = protocol.UserInfo{IP: target.RemoteAddr, Status: target.Status()}
	} else {
		resp.Content = protocol.ErrTextUserNotFound
	}
	d.send(sess.Conn, resp)
}

// handleChangeStatus overwrites the session status and fans the transition
// out to everyone, the changer included. Unrecognised literals answer with
// an error frame and change nothing.
func (d *Dispatcher) handleChangeStatus(sess *registry.Session, req *protocol.Request) {
	status := req.Text()
	if !protocol.IsValidStatus(status) {
		d.sendError(sess.Conn, protocol.ErrTextInvalidStatus)
		return
	}

	sess.SetStatus(status)
	d.logger.Info("status changed", "user", sess.Name, "status", status)
	d.record("status", sess.Name, status)

	d.fanOut(&protocol.Response{
		Type:    protocol.KindStatusUpdate,
		Sender:  protocol.SenderServer,
		Content: protocol.StatusChange{User: sess.Name, Status: status},
	}, nil)
}

// handleDisconnect removes the session and tells the others. The caller
// closes the transport; a repeated disconnect finds nothing to remove and
// stays silent.
func (d *Dispatcher) handleDisconnect(conn registry.Conn) {
	sess, ok := d.registry.Remove(conn)
	if !ok {
		return
	}
	d.logger.Info("session disconnected", "user", sess.Name, "remote", sess.RemoteAddr)
	d.record("disconnect", sess.Name, "client request")
	d.fanOut(&protocol.Response{
		Type:    protocol.KindUserDisconnected,
		Sender:  protocol.SenderServer,
		Content: fmt.Sprintf(protocol.NoticeUserLeftFmt, sess.Name),
	}, nil)
}

// fanOut encodes resp once and sends it to every live session except the
// one bound to skip. Sends iterate a snapshot outside the registry lock and
// are best-effort: a transport that died since the snapshot is ignored.
func (d *Dispatcher) fanOut(resp *protocol.Response, skip registry.Conn) {
	frame, err := protocol.Encode(resp, time.Now())
	if err != nil {
		d.logger.Error("encode failed", "kind", resp.Type, "error", err)
		return
	}
	for _, sess := range d.registry.Sessions() {
		if skip != nil && sess.Conn == skip {
			continue
		}
		if err := sess.Conn.Send(frame); err != nil {
			d.logger.Debug("fan-out send failed", "to", sess.Name, "error", err)
		}
	}
}

func (d *Dispatcher) send(conn registry.Conn, resp *protocol.Response) {
	frame, err := protocol.Encode(resp, time.Now())
	if err != nil {
		d.logger.Error("encode failed", "kind", resp.Type, "error", err)
		return
	}
	if err := conn.Send(frame); err != nil {
		d.logger.Debug("send failed", "remote", conn.RemoteAddr(), "error", err)
	}
}

func (d *Dispatcher) sendError(conn registry.Conn, content string) {
	d.send(conn, &protocol.Response{
		Type:    protocol.KindError,
		Sender:  protocol.SenderServer,
		Content: content,
	})
}

func (d *Dispatcher) record(kind, user, detail string) {
	if d.journal == nil {
		return
	}
	d.journal.Record(kind, user, detail)
}
