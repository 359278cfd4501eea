package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"

	pageHello    = "hello.html"
	pageNotFound = "404.html"

	// maxRequestLine bounds how much of a request line is buffered.
	maxRequestLine = 8 << 10
)

var errRequestLineTooLong = errors.New("request line too long")

// route is the response chosen for a request line.
type route struct {
	status string
	page   string
	slow   bool
}

// routeFor maps a raw request line to its response. Only exact matches are
// recognised; everything else is a 404.
func routeFor(requestLine string) route {
	switch requestLine {
	case "GET / HTTP/1.1":
		return route{status: statusOK, page: pageHello}
	case "GET /sleep HTTP/1.1":
		return route{status: statusOK, page: pageHello, slow: true}
	default:
		return route{status: statusNotFound, page: pageNotFound}
	}
}

// pageHandler answers one connection with a static page.
type pageHandler struct {
	dir         string
	sleepDelay  time.Duration
	readTimeout time.Duration
	sleep       func(time.Duration)
}

func newPageHandler(cfg *Config) *pageHandler {
	return &pageHandler{
		dir:         cfg.PagesDir,
		sleepDelay:  cfg.SleepDelay,
		readTimeout: cfg.ReadTimeout,
		sleep:       time.Sleep,
	}
}

// serve reads the request line from conn, writes the matching page and closes
// the connection. Failures are logged, never panicked on.
func (h *pageHandler) serve(conn net.Conn, log *slog.Logger) {
	defer func() { _ = conn.Close() }()

	if h.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
	line, err := readRequestLine(conn)
	if err != nil {
		log.Warn("read request line", "error", err)
		return
	}

	rt := routeFor(line)
	log.Debug("request", "line", line, "status", rt.status)
	if rt.slow {
		h.sleep(h.sleepDelay)
	}

	body, err := os.ReadFile(filepath.Join(h.dir, rt.page))
	if err != nil {
		log.Error("read page", "page", rt.page, "error", err)
		return
	}

	if _, err := conn.Write(formatResponse(rt.status, body)); err != nil {
		log.Warn("write response", "error", err)
		return
	}
	log.Info("served", "line", line, "status", rt.status, "bytes", len(body))
}

// readRequestLine returns the first line of an HTTP request with the trailing
// CRLF removed.
func readRequestLine(r io.Reader) (string, error) {
	br := bufio.NewReaderSize(io.LimitReader(r, maxRequestLine+1), 512)
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			if len(line) > maxRequestLine {
				return "", errRequestLineTooLong
			}
			return strings.TrimRight(line, "\r"), nil
		}
		return "", fmt.Errorf("read: %w", err)
	}
	if len(line) > maxRequestLine {
		return "", errRequestLineTooLong
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// formatResponse renders a status line, a Content-Length header and body.
func formatResponse(status string, body []byte) []byte {
	buf := make([]byte, 0, len(status)+len(body)+32)
	buf = append(buf, status...)
	buf = append(buf, "\r\nContent-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, "\r\n\r\n"...)
	return append(buf, body...)
}
