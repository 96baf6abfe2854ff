package socket

import (
	"context"
	"strings"
	"time"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

// TypeName is the operator's registry typename.
const TypeName = "MpdExecutor"

// Version is the operator's registry version.
const Version = "1.0"

const defaultMaxBuffer = 10 * 1024 * 1024

// Operator sends line-oriented MPD commands over a pooled socket
// connection.
type Operator struct {
	base operator.Base

	name      string
	readLimit time.Duration
}

// Register installs the MPD executor factory into reg.
func Register(reg *registry.Registry) {
	reg.Register(TypeName, Version, func(name string, config map[string]any) (any, error) {
		network, address := addressFromConfig(config)
		maxConnections := 4
		if mc, ok := config["max_connections"].(int); ok && mc > 0 {
			maxConnections = mc
		}
		maxTasks := 4
		if mt, ok := config["max_tasks"].(int); ok && mt > 0 {
			maxTasks = mt
		}
		registerPool(name, network, address, maxConnections)

		o := &Operator{name: name, readLimit: 5 * time.Second}
		o.base = operator.Base{Impl: o, MaxTasks: maxTasks}
		return o, nil
	})
}

// Do acquires a pooled connection, dispatches data["op"] ("add",
// "playlist", "playlistsearch"), and always releases the connection.
// Error codes: 101 connection acquisition failure, 102 protocol/socket
// error, 103 command reported incomplete (no trailing "OK").
func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	data, ok := value.(map[string]any)
	if !ok {
		return state, envelope.Fail(envelope.CodeBadInput)
	}

	conn, err := connPool.Get(ctx, o.name)
	if err != nil {
		return state, envelope.Fail(envelope.CodeBadInput)
	}
	defer connPool.Release(o.name, conn)

	op, _ := data["op"].(string)
	if op == "" {
		return state, envelope.New(map[string]any{"result": nil})
	}

	var (
		result  any
		completed bool
	)
	switch op {
	case "add":
		result, completed, err = o.add(conn, data)
	case "playlist":
		result, completed, err = o.playlist(conn)
	case "playlistsearch":
		result, completed, err = o.playlistSearch(conn, data)
	default:
		return state, envelope.Fail(envelope.CodeBadInput)
	}
	if err != nil {
		return state, envelope.Fail(envelope.CodeTargetFailure)
	}
	if !completed {
		return state, envelope.Fail(envelope.CodeBadPayload)
	}

	return state, envelope.New(map[string]any{"result": result})
}

func (o *Operator) send(conn *mpdConn, cmd string) (completed bool, body string, err error) {
	if err := conn.SetDeadline(time.Now().Add(o.readLimit)); err != nil {
		return false, "", err
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return false, "", err
	}

	var sb strings.Builder
	for {
		line, err := conn.r.ReadString('\n')
		sb.WriteString(line)
		if err != nil {
			return false, sb.String(), err
		}
		trimmed := strings.TrimRight(line, "\n")
		if trimmed == "OK" || strings.HasPrefix(trimmed, "ACK ") {
			return trimmed == "OK", sb.String(), nil
		}
	}
}

func (o *Operator) add(conn *mpdConn, data map[string]any) (any, bool, error) {
	uri, _ := data["uri"].(string)
	if uri == "" {
		return map[string]any{}, true, nil
	}
	pos, _ := data["pos"].(string)

	cmd := `add "` + strings.ReplaceAll(uri, `"`, `\"`) + `" ` + pos
	completed, _, err := o.send(conn, cmd)
	return map[string]any{}, completed, err
}

func (o *Operator) playlist(conn *mpdConn) (any, bool, error) {
	completed, body, err := o.send(conn, "playlist")
	if err != nil {
		return nil, false, err
	}
	lines := splitLines(body)
	items := make([]string, 0, len(lines))
	for _, line := range lines {
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		items = append(items, m[2])
	}
	return items, completed, nil
}

func (o *Operator) playlistSearch(conn *mpdConn, data map[string]any) (any, bool, error) {
	filter, _ := data["filter"].(string)
	if filter == "" {
		return map[string]any{}, true, nil
	}

	cmd := `playlistsearch "` + strings.ReplaceAll(filter, `"`, `\"`) + `"`
	completed, body, err := o.send(conn, cmd)
	if err != nil {
		return nil, false, err
	}

	track := map[string]any{}
	lines := splitLines(body)
	if completed && len(lines) > 0 {
		for _, line := range lines {
			m := fieldRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			track[m[1]] = m[2]
		}
	}
	return track, completed, nil
}

// splitLines returns body's lines with the trailing "OK"/status line
// dropped, mirroring the Python source's `LINER(...)[:-2]` slice (the
// response's final line is the status marker, preceded by a blank).
func splitLines(body string) []string {
	all := strings.Split(body, "\n")
	if len(all) <= 2 {
		return nil
	}
	return all[:len(all)-2]
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
