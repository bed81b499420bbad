// Command chat is a terminal chat client: it prints the live stream and
// sends each stdin line as a message.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prgf87/socket-io-chat/clients/go/chat"
)

func main() {
	baseURL := os.Getenv("CHAT_URL")
	client := chat.NewClient(baseURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		err := client.Listen(ctx, func(ev chat.Event) {
			fmt.Printf("[%d] %s\n", ev.ID, ev.Content)
		})
		if err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "stream error:", err)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		id, err := client.Send(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "send failed:", err)
			continue
		}
		fmt.Printf("[%d] (you) %s\n", id, line)
	}
}
