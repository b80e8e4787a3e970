// depthcamctl - command line client for the depthcam control console
//
// Usage:
//
//	depthcamctl [-addr URL] methods
//	depthcamctl [-addr URL] select NAME
//	depthcamctl [-addr URL] start_color|start_depth|start_infrared|stop
//	depthcamctl [-addr URL] status
//	depthcamctl [-addr URL] camera [key=value ...]
//	depthcamctl [-addr URL] logs [-f]
//	depthcamctl [-addr URL] watch
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-depthcam/internal/httpc"
	"github.com/teslashibe/go-depthcam/pkg/tracking"
)

func main() {
	addr := flag.String("addr", envOr("DEPTHCAM_ADDR", "http://localhost:8181"), "Control console URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &client{base: strings.TrimRight(*addr, "/")}
	if err := c.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "error: %s\n", se.Body)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: depthcamctl [-addr URL] <command> [args]")
	fmt.Fprintln(os.Stderr, "commands: methods, select NAME, start_color, start_depth, start_infrared, stop,")
	fmt.Fprintln(os.Stderr, "          status, camera [key=value ...], logs [-f], watch")
	flag.PrintDefaults()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type client struct {
	base string
}

func (c *client) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "methods":
		var methods []tracking.MethodInfo
		if err := httpc.GetJSON(ctx, c.base+"/api/methods", &methods); err != nil {
			return err
		}
		for _, m := range methods {
			marker := " "
			if m.Selected {
				marker = "*"
			}
			fmt.Printf("%s %-12s %v\n", marker, m.Name, m.Actions)
		}
		return nil

	case "select":
		if len(args) != 1 {
			return errors.New("select needs a method name")
		}
		return c.print(ctx, http.MethodPost, "/api/methods/"+url.PathEscape(args[0])+"/select", nil)

	case "status":
		return c.print(ctx, http.MethodGet, "/api/status", nil)

	case "camera":
		if len(args) == 0 {
			return c.print(ctx, http.MethodGet, "/api/camera", nil)
		}
		params, err := parseParams(args)
		if err != nil {
			return err
		}
		return c.print(ctx, http.MethodPut, "/api/camera", params)

	case "logs":
		if len(args) > 0 && args[0] == "-f" {
			return c.tail(ctx, "/ws/logs", printLog)
		}
		var logs []logEntry
		if err := httpc.GetJSON(ctx, c.base+"/api/logs", &logs); err != nil {
			return err
		}
		for _, l := range logs {
			l.print()
		}
		return nil

	case "watch":
		return c.tail(ctx, "/ws/status", printJSON)

	default:
		action, err := tracking.ParseAction(cmd)
		if err != nil {
			return fmt.Errorf("unknown command %q", cmd)
		}
		return c.print(ctx, http.MethodPost, "/api/actions/"+string(action), nil)
	}
}

// print sends a request and pretty-prints the JSON response.
func (c *client) print(ctx context.Context, method, path string, body any) error {
	var out json.RawMessage
	if err := httpc.SendJSON(ctx, method, c.base+path, body, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

// tail streams websocket messages until ctx is cancelled.
func (c *client) tail(ctx context.Context, path string, handle func([]byte)) error {
	u, err := url.Parse(c.base + path)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		handle(data)
	}
}

type logEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (l logEntry) print() {
	fmt.Printf("%s %-5s %s\n", l.Time, l.Level, l.Message)
}

func printLog(data []byte) {
	var l logEntry
	if err := json.Unmarshal(data, &l); err != nil {
		fmt.Println(string(data))
		return
	}
	l.print()
}

func printJSON(data []byte) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Println(string(data))
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

// parseParams turns key=value arguments into a camera update. Numbers and
// booleans are sent as JSON numbers and booleans.
func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if b, err := strconv.ParseBool(value); err == nil {
			params[key] = b
		} else if n, err := strconv.ParseFloat(value, 64); err == nil {
			params[key] = n
		} else {
			params[key] = value
		}
	}
	return params, nil
}
