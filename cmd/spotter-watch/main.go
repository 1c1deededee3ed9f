// spotter-watch prints capture state changes from a running spotter and
// sends the capture command when Enter is pressed.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-spotter/pkg/capture"
	"github.com/teslashibe/go-spotter/pkg/web"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "Dashboard host:port")
	once := flag.Bool("capture", false, "Send one capture command and exit")
	verbose := flag.Bool("v", false, "Print every status update, not only state changes")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := web.Dial(ctx, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if *once {
		code := captureOnce(c)
		c.Close()
		os.Exit(code)
	}

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	go readCommands(c)

	fmt.Printf("👀 Watching %s (Enter = capture, Ctrl+C = quit)\n", *addr)
	last := capture.State(-1)
	for {
		msg, err := c.Next()
		if err != nil {
			if ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "❌ connection lost: %v\n", err)
				os.Exit(1)
			}
			return
		}
		switch m := msg.(type) {
		case web.Status:
			if m.Capture.State != last || *verbose {
				printStatus(m)
				last = m.Capture.State
			}
		case web.CaptureReply:
			printReply(m)
		}
	}
}

func captureOnce(c *web.Client) int {
	if err := c.Capture(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	for {
		msg, err := c.Next()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			return 1
		}
		if r, ok := msg.(web.CaptureReply); ok {
			printReply(r)
			if !r.Accepted {
				return 3
			}
			return 0
		}
	}
}

func readCommands(c *web.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if cmd := strings.TrimSpace(scanner.Text()); cmd == "" || cmd == web.CommandCapture {
			if err := c.Capture(); err != nil {
				fmt.Fprintf(os.Stderr, "❌ %v\n", err)
				return
			}
		}
	}
}

func printStatus(st web.Status) {
	line := fmt.Sprintf("📷 %-9s processed=%d skipped=%d dropped=%d",
		st.Capture.State, st.Pipeline.Processed, st.Pipeline.Skipped, st.Pipeline.Dropped)
	if !st.Capture.FrozenUntil.IsZero() {
		line += " until=" + st.Capture.FrozenUntil.Format("15:04:05.000")
	}
	for _, d := range st.Pipeline.LastDetections {
		line += " [" + d.Caption() + "]"
	}
	if st.CaptureError != "" {
		line += " error=" + st.CaptureError
	}
	fmt.Println(line)
}

func printReply(r web.CaptureReply) {
	if r.Accepted {
		fmt.Println("✅ capture accepted")
		return
	}
	msg := fmt.Sprintf("⚠️  capture ignored (state %s)", r.State)
	if r.Error != "" {
		msg += ": " + r.Error
	}
	fmt.Println(msg)
}
