package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/widget/scroll"
)

// lineThreshold is the terminal counterpart of the widget's 100px.
const lineThreshold = 3

// transcript renders messages into a fixed-height window and acts as the
// scroll controller's viewport.
type transcript struct {
	out     io.Writer
	rows    int
	asAdmin bool
	title   string

	mu    sync.Mutex
	lines []string
	top   int

	scroll *scroll.Controller
}

func newTranscript(out io.Writer, rows int, asAdmin bool, title string) *transcript {
	t := &transcript{out: out, rows: rows, asAdmin: asAdmin, title: title}
	t.scroll = scroll.New(t)
	t.scroll.Threshold = lineThreshold
	return t
}

func (t *transcript) ScrollHeight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

func (t *transcript) ScrollTop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.top
}

func (t *transcript) ClientHeight() int {
	return t.rows
}

func (t *transcript) ScrollTo(top int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.top = t.clamp(top)
}

func (t *transcript) clamp(top int) int {
	if limit := len(t.lines) - t.rows; top > limit {
		top = limit
	}
	if top < 0 {
		top = 0
	}
	return top
}

// update re-renders the message lines and follows the bottom if enabled.
func (t *transcript) update(messages []chat.Message) {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, t.renderMessage(m)...)
	}

	t.mu.Lock()
	t.lines = lines
	t.top = t.clamp(t.top)
	t.mu.Unlock()

	t.scroll.OnMessagesChanged()
	t.draw()
}

// scrollBy moves the window like a manual scroll.
func (t *transcript) scrollBy(delta int) {
	t.mu.Lock()
	t.top = t.clamp(t.top + delta)
	t.mu.Unlock()

	t.scroll.OnScroll()
	t.draw()
}

func (t *transcript) scrollToBottom() {
	t.scroll.ScrollToBottom()
	t.draw()
}

func (t *transcript) renderMessage(m chat.Message) []string {
	mine := m.IsAdmin == t.asAdmin
	who := "Support"
	style := peerStyle
	if !m.IsAdmin {
		who = "Visitor"
	}
	if mine {
		who = "You"
		style = selfStyle
	}

	head := fmt.Sprintf("%s %s", timestampStyle.Render(m.CreatedAt.Local().Format("15:04")), style.Render(who+":"))
	var out []string
	if text := m.Text(); text != "" {
		parts := strings.Split(text, "\n")
		out = append(out, head+" "+parts[0])
		for _, p := range parts[1:] {
			out = append(out, "       "+p)
		}
	}
	if img := m.Image(); img != "" {
		if len(out) == 0 {
			out = append(out, head+" "+imageStyle.Render("[image] "+img))
		} else {
			out = append(out, "       "+imageStyle.Render("[image] "+img))
		}
	}
	return out
}

func (t *transcript) draw() {
	following := t.scroll.AutoScroll()

	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	b.WriteString(headerStyle.Render(t.title))
	b.WriteString("\n")

	end := min(t.top+t.rows, len(t.lines))
	for _, line := range t.lines[t.top:end] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(t.lines) == 0 {
		b.WriteString(metaStyle.Render("No messages yet. Say hello!"))
		b.WriteString("\n")
	}
	if !following {
		b.WriteString(warningStyle.Render(fmt.Sprintf("-- %d more below, /bottom to jump --", len(t.lines)-end)))
		b.WriteString("\n")
	}
	b.WriteString(metaStyle.Render("/image <path>  /up  /down  /bottom  /quit"))
	b.WriteString("\n> ")
	fmt.Fprint(t.out, b.String())
}
