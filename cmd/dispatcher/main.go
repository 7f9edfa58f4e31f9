// Package main is the entrypoint for the apiview-dispatcher.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/morezero/apiview-dispatcher/internal/config"
	"github.com/morezero/apiview-dispatcher/internal/server"
	"github.com/morezero/apiview-dispatcher/pkg/commsutil"
	"github.com/morezero/apiview-dispatcher/pkg/dispatcher"
)

const usage = `Usage: dispatcher [command]
       dispatcher serve             Start the dispatcher (COMMS subscription, HTTP adapter).
       dispatcher routes            List the handlers reachable for API_GENERATION and MS_PATH.
       dispatcher request [file]    Send a dispatch request (file or stdin) over COMMS and print the reply.

Commands:
  serve           (default) Start the dispatcher.
  routes          Print one handler path per line.
  request [file]  Validate the request locally, then send it to DISPATCH_SUBJECT.

Environment: COMMS_URL, SERVICE_NAME, DISPATCH_SUBJECT, DISPATCH_EVENT_SUBJECT, PUBLISH_EVENTS,
API_GENERATION (api-view or api), MS_PATH, REQUEST_TIMEOUT, HTTP_ADDR, HTTP_PORT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "routes":
		if err := runRoutes(os.Stdout); err != nil {
			log.Fatalf("dispatcher routes: %v", err)
		}
		return
	case "request":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runRequest(file, os.Stdout); err != nil {
			log.Fatalf("dispatcher request: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("dispatcher: %v", err)
	}
}

func runRoutes(w io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	s := server.NewServer(server.NewServerParams{Config: cfg})
	out := s.HandlerRoutes()
	for _, k := range out.Routes {
		fmt.Fprintf(w, "%s %s/%s/%s\n", out.Generation, k.Entity, k.Action, k.Method)
	}
	return nil
}

func runRequest(file string, w io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var raw []byte
	if file == "" || file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if _, err := dispatcher.ParseRequest(raw); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	opts := cfg.CommsOptions()
	opts.Name = cfg.COMMSName + "-cli"
	nc, err := commsutil.Connect(cfg.COMMSURL, opts)
	if err != nil {
		return err
	}
	defer nc.Close()

	msg, err := nc.Request(cfg.DispatchSubject, raw, cfg.RequestTimeout+5*time.Second)
	if err != nil {
		return fmt.Errorf("request %s: %w", cfg.DispatchSubject, err)
	}
	_, err = fmt.Fprintln(w, string(msg.Data))
	return err
}
