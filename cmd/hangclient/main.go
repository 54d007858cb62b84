// Command hangclient is a headless driver for the Client Synchronization
// Core: it has no Presentation Host (GUI), but exercises the
// Connection Supervisor, Sync Client, and Playback Controller exactly
// as a real front end would, reading commands from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/hangsync/hang/client/connsupervisor"
	"github.com/hangsync/hang/client/ipc"
	"github.com/hangsync/hang/client/mediaengine"
	"github.com/hangsync/hang/client/persist"
	"github.com/hangsync/hang/client/playback"
	"github.com/hangsync/hang/client/syncclient"
	"github.com/hangsync/hang/internal/fingerprint"
	"github.com/hangsync/hang/internal/inviteurl"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:3005/ws", "coordination service websocket URL")
	healthzURL := flag.String("healthz", "http://localhost:3005/healthz", "coordination service health-check URL")
	inviteArg := flag.String("invite", "", "invite link to join on startup (hang://join?...)")
	flag.Parse()

	if ln, ok := ipc.TryBecomePrimary(); ok {
		go ipc.Serve(ln, func(url string) {
			fmt.Println("received invite from secondary launch:", url)
		})
	} else if *inviteArg != "" {
		if err := ipc.SendToPrimary(*inviteArg); err == nil {
			fmt.Println("forwarded invite to running instance")
			return
		}
	}

	execPath, err := os.Executable()
	if err != nil {
		execPath = "."
	}
	store, err := persist.New(execPath)
	if err != nil {
		fmt.Println("warning: persisted session unavailable:", err)
	}

	engine := mediaengine.NewStub(0)

	// syncclient.Client needs the controller's inbound handler, and the
	// controller needs the Sync Client to send through: construct both,
	// then bind the Sync Client's inbound callback to the controller.
	sc := syncclient.New(nil)
	controller := playback.New(engine, sc, store, func(msg string) {
		fmt.Println("error:", msg)
	})
	sc.SetInbound(controller.HandleInbound)

	supervisor := connsupervisor.New(
		[]connsupervisor.Endpoint{{Label: "configured", WSURL: *serverURL, HealthzURL: *healthzURL}},
		func(ctx context.Context, wsURL string) error {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			if err != nil {
				return err
			}
			sc.Connect(conn)
			return nil
		},
		func(status string) { fmt.Println(status) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		label, err := supervisor.Run(ctx)
		if err != nil {
			fmt.Println("connection supervisor stopped:", err)
			return
		}
		sc.MarkConnected(label)
		controller.OnConnected()
	}()

	if *inviteArg != "" {
		if inv, err := inviteurl.Decode(*inviteArg); err == nil {
			fmt.Printf("pending invite: room=%s file=%s\n", inv.Room, inv.File)
		}
	}

	runCommandLoop(controller)
}

// runCommandLoop reads simple line commands from stdin, standing in for
// a Presentation Host in this headless driver.
func runCommandLoop(controller *playback.Controller) {
	fmt.Println("commands: loadfile <path> | loadurl <url> | create <file_hash> [passcode] | join <room_id> <file_hash> [passcode] | play | pause | seek <seconds> | leave | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "loadfile":
			if len(fields) < 2 {
				continue
			}
			hash := localFileFingerprint(fields[1])
			controller.LoadMedia(playback.MediaIdentity{
				SourceKind:  fingerprint.LocalFile,
				Fingerprint: hash,
				DisplayName: fields[1],
			})
			fmt.Println("loaded, fingerprint:", hash)
		case "loadurl":
			if len(fields) < 2 {
				continue
			}
			hash, err := directURLFingerprint(fields[1])
			if err != nil {
				fmt.Println("invalid url:", err)
				continue
			}
			controller.LoadMedia(playback.MediaIdentity{
				SourceKind:  fingerprint.DirectURL,
				Fingerprint: hash,
				DisplayName: fields[1],
			})
			fmt.Println("loaded, fingerprint:", hash)
		case "create":
			if len(fields) < 2 {
				continue
			}
			passcode := ""
			if len(fields) >= 3 {
				passcode = fields[2]
			}
			controller.CreateRoom(fields[1], passcode, "", 0)
		case "join":
			if len(fields) < 3 {
				continue
			}
			passcode := ""
			if len(fields) >= 4 {
				passcode = fields[3]
			}
			controller.JoinRoom(fields[1], fields[2], passcode, "")
		case "play":
			controller.TogglePlay()
		case "pause":
			controller.TogglePlay()
		case "seek":
			if len(fields) < 2 {
				continue
			}
			if secs, err := strconv.ParseFloat(fields[1], 64); err == nil {
				controller.Seek(secs)
			}
		case "leave":
			controller.LeaveRoom()
		case "quit":
			return
		default:
			fmt.Println("unknown command")
		}
	}
}

// localFileFingerprint is a convenience used by the Presentation Host
// contract: computing the fingerprint for a file loaded from disk.
func localFileFingerprint(path string) string {
	return fingerprint.Of(fingerprint.LocalFile, path)
}

// directURLFingerprint mirrors localFileFingerprint for a DirectURL
// media source; kept alongside it since both feed CreateRoom/JoinRoom's
// file_hash argument in the same way from the caller's perspective.
func directURLFingerprint(raw string) (string, error) {
	if _, err := url.Parse(raw); err != nil {
		return "", err
	}
	return fingerprint.Of(fingerprint.DirectURL, raw), nil
}
