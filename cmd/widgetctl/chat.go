package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhouzirui/z-support/backend/internal/chatsync"
	"github.com/zhouzirui/z-support/backend/internal/client"
)

// runRoom opens room, mirrors it into the terminal and sends stdin lines
// until EOF, /quit or ctx is done.
func runRoom(ctx context.Context, room *chatsync.Room, c *client.Client, view *transcript, in io.Reader) error {
	defer room.Close()

	session, err := room.Open(ctx)
	if err != nil {
		return fmt.Errorf("open chat: %w", err)
	}
	view.update(room.Messages())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-room.Changes():
				view.update(room.Messages())
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, room, c, view, session.ID, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, room *chatsync.Room, c *client.Client, view *transcript, sessionID, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/up":
		view.scrollBy(-view.rows / 2)
		return false, nil
	case "/down":
		view.scrollBy(view.rows / 2)
		return false, nil
	case "/bottom":
		view.scrollToBottom()
		return false, nil
	case "/image":
		url, err := uploadFile(ctx, c, sessionID, strings.TrimSpace(arg))
		if err != nil {
			return false, err
		}
		_, err = room.Send(ctx, chatsync.Draft{ImageURL: url})
		return false, err
	}

	_, err := room.Send(ctx, chatsync.Draft{Content: line})
	if errors.Is(err, chatsync.ErrSendInFlight) {
		return false, fmt.Errorf("still sending the previous message")
	}
	return false, err
}

func uploadFile(ctx context.Context, c *client.Client, sessionID, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("usage: /image <path>")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return c.UploadImage(ctx, sessionID, filepath.Base(path), contentType, f)
}
